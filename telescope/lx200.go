package telescope

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tarm/serial"
	"golang.org/x/sync/errgroup"
)

// LX200 polls a Meade LX200 compatible mount over a serial port. The last
// pointing read is cached, so AltAz never blocks on the port.
type LX200 struct {
	// PollInterval defaults to 250ms.
	PollInterval time.Duration

	mu       sync.RWMutex
	latitude float64
	alt, az  float64
	valid    bool
	updated  time.Time
}

// ConnectLX200 starts polling port in the background. latitude is used until
// the mount reports its site.
func ConnectLX200(ctx context.Context, port string, baud int, latitude float64) *LX200 {
	t := &LX200{latitude: latitude}
	go t.reconnectLoop(ctx, port, baud)
	return t
}

func (t *LX200) Latitude() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latitude
}

func (t *LX200) AltAz(time.Time) (float64, float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.valid {
		return 0, 0, ErrNoPosition
	}
	return t.alt, t.az, nil
}

// Updated returns when the pointing was last read.
func (t *LX200) Updated() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updated
}

func (t *LX200) reconnectLoop(ctx context.Context, port string, baud int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		c := &serial.Config{Name: port, Baud: baud, ReadTimeout: 2 * time.Second}
		s, err := serial.OpenPort(c)
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		log.Printf("opened %q", port)
		if err := t.watch(ctx, s); err != nil && ctx.Err() == nil {
			log.Printf("watching %q: %v", port, err)
		}
		t.mu.Lock()
		t.valid = false
		t.mu.Unlock()
	}
}

func (t *LX200) watch(ctx context.Context, conn io.ReadWriteCloser) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Wait for context to be canceled, then close connection.
		<-ctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		err := t.session(ctx, conn)
		conn.Close()
		return err
	})
	return g.Wait()
}

func (t *LX200) session(ctx context.Context, conn io.ReadWriter) error {
	interval := t.PollInterval
	if interval == 0 {
		interval = 250 * time.Millisecond
	}
	r := bufio.NewReader(conn)
	if _, err := query(r, conn, "#:GC#"); err != nil {
		return fmt.Errorf("detecting mount: %w", err)
	}
	if err := highPrecision(r, conn); err != nil {
		return err
	}
	if reply, err := query(r, conn, "#:Gt#"); err != nil {
		return fmt.Errorf("reading site: %w", err)
	} else if lat, err := ParseLatitude(reply); err != nil {
		log.Printf("site latitude %q: %v", reply, err)
	} else {
		t.mu.Lock()
		t.latitude = lat
		t.mu.Unlock()
		log.Printf("site latitude %.4f", lat)
	}
	for {
		alt, az, err := pointing(r, conn)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.alt, t.az, t.valid, t.updated = alt, az, true, time.Now()
		t.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// highPrecision toggles the mount into DDD*MM'SS output. Low precision
// altitude replies are at most 7 bytes.
func highPrecision(r *bufio.Reader, w io.Writer) error {
	for i := 0; i < 3; i++ {
		reply, err := query(r, w, "#:GA#")
		if err != nil {
			return fmt.Errorf("reading altitude: %w", err)
		}
		if len(reply) > 7 {
			return nil
		}
		if _, err := io.WriteString(w, "#:U#"); err != nil {
			return err
		}
	}
	return fmt.Errorf("mount did not switch to high precision")
}

func pointing(r *bufio.Reader, w io.Writer) (float64, float64, error) {
	reply, err := query(r, w, "#:GA#")
	if err != nil {
		return 0, 0, fmt.Errorf("reading altitude: %w", err)
	}
	alt, err := ParseAltitude(reply)
	if err != nil {
		return 0, 0, err
	}
	reply, err = query(r, w, "#:GZ#")
	if err != nil {
		return 0, 0, fmt.Errorf("reading azimuth: %w", err)
	}
	az, err := ParseAzimuth(reply)
	if err != nil {
		return 0, 0, err
	}
	return alt, az, nil
}

// query sends cmd and returns the reply including its terminating '#'.
func query(r *bufio.Reader, w io.Writer, cmd string) (string, error) {
	if _, err := io.WriteString(w, cmd); err != nil {
		return "", err
	}
	return r.ReadString('#')
}

// ParseAltitude parses sDD*MM'SS#.
func ParseAltitude(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "#")
	if len(s) < 1 {
		return 0, fmt.Errorf("empty altitude")
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	v, err := parseDMS(s)
	if err != nil {
		return 0, fmt.Errorf("altitude %q: %w", s, err)
	}
	return sign * v, nil
}

// ParseAzimuth parses DDD*MM'SS#.
func ParseAzimuth(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "#")
	v, err := parseDMS(s)
	if err != nil {
		return 0, fmt.Errorf("azimuth %q: %w", s, err)
	}
	return v, nil
}

// ParseLatitude parses sDD*MM#.
func ParseLatitude(s string) (float64, error) {
	return ParseAltitude(s)
}

// parseDMS parses D*MM'SS or D*MM. The mount may send the degree sign as
// '*' or as 0xdf.
func parseDMS(s string) (float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '*' || r == '\'' || r == ':' || r == 0xdf || r == utf8.RuneError
	})
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("malformed angle")
	}
	var v float64
	scale := 1.0
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return 0, err
		}
		v += float64(n) / scale
		scale *= 60
	}
	return v, nil
}
