package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
)

// ListenTCP accepts protocol connections on addr until ctx is done. Each
// connection is served in its own goroutine; requests are answered in turn
// through q.
func ListenTCP(ctx context.Context, addr string, q *Queue) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	log.Printf("listening for protocol connections on %v", ln.Addr())
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing protocol socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("failed to accept: %v", err)
				}
				continue
			}
			go handleTCP(ctx, conn, q)
		}
	}()
	return ln.Addr(), nil
}

func handleTCP(ctx context.Context, conn net.Conn, q *Queue) {
	defer conn.Close()
	log.Printf("accepted connection from %v", conn.RemoteAddr())
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	err := serve(ctx, conn.RemoteAddr().String(), conn, q, 0)
	if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}
