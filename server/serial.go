package server

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/tarm/serial"
	"golang.org/x/sync/errgroup"
)

// Serial serves the protocol on a serial port, reopening it whenever it
// fails.
type Serial struct {
	Port string
	// Baud defaults to 115200.
	Baud int
	// Chunk is the largest single write. Defaults to 64.
	Chunk int
	Queue *Queue
}

func (s *Serial) Run(ctx context.Context) {
	if s.Baud == 0 {
		s.Baud = 115200
	}
	if s.Chunk == 0 {
		s.Chunk = 64
	}
	s.reconnectLoop(ctx)
}

func (s *Serial) reconnectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		port, err := serial.OpenPort(&serial.Config{Name: s.Port, Baud: s.Baud})
		if err != nil {
			log.Printf("opening %q: %v", s.Port, err)
			continue
		}
		log.Printf("serving protocol on %q", s.Port)
		if err := s.watch(ctx, port); err != nil && ctx.Err() == nil {
			log.Printf("watching %q: %v", s.Port, err)
		}
	}
}

func (s *Serial) watch(ctx context.Context, conn io.ReadWriteCloser) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Wait for context to be canceled, then close connection.
		<-ctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		err := serve(ctx, s.Port, conn, s.Queue, s.Chunk)
		conn.Close()
		return err
	})
	return g.Wait()
}
