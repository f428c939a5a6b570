package server

import (
	"context"
	"io"
	"log"

	"github.com/w1xm/derot/wire"
)

// ReadRequest reads exactly one request packet.
func ReadRequest(r io.Reader) (*wire.RequestPacket, error) {
	buf := make([]byte, wire.RequestSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	rq := &wire.RequestPacket{}
	if err := rq.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return rq, nil
}

// WriteFull writes all of b, retrying after short writes.
func WriteFull(w io.Writer, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// WriteChunked writes b in pieces of at most chunk bytes.
func WriteChunked(w io.Writer, b []byte, chunk int) error {
	if chunk <= 0 {
		chunk = len(b)
	}
	for len(b) > 0 {
		n := chunk
		if n > len(b) {
			n = len(b)
		}
		if _, err := WriteFull(w, b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// serve answers requests read from conn until a read fails. chunk limits
// the size of each write; 0 writes replies whole.
func serve(ctx context.Context, name string, conn io.ReadWriter, q *Queue, chunk int) error {
	for {
		rq, err := ReadRequest(conn)
		if err != nil {
			return err
		}
		reply, err := q.Submit(ctx, rq)
		if err != nil {
			return err
		}
		if err := WriteChunked(conn, reply, chunk); err != nil {
			log.Printf("%s: writing %v reply: %v", name, rq.Command, err)
		}
	}
}
