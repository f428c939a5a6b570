// Package web serves the derotator status and accepts commands over HTTP
// and websockets.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/derot/host"
	"github.com/w1xm/derot/server"
	"github.com/w1xm/derot/stepper"
	"github.com/w1xm/derot/wire"
)

type Server struct {
	queue *server.Queue
	jog   func(stepper.Direction) bool

	statusMu      sync.RWMutex
	statusCond    *sync.Cond
	status        host.Status
	statusVersion int
}

// NewServer submits commands to q. jog may be nil to disable jogging.
func NewServer(q *server.Queue, jog func(stepper.Direction) bool) *Server {
	s := &Server{queue: q, jog: jog}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler returns the API routes. Files in staticDir, if set, are served
// at the root.
func (s *Server) Handler(staticDir string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods("GET")
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	r.HandleFunc("/api/command", s.CommandHandler).Methods("POST")
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	return r
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

// Command is a protocol request in JSON form. Command is a name understood
// by wire.ParseCommand, or "jog-cw" / "jog-ccw".
type Command struct {
	Command string  `json:"command"`
	IValue  int16   `json:"ivalue"`
	Value   float32 `json:"value"`
	Text    string  `json:"text"`
}

type Reply struct {
	Reply  int16      `json:"reply"`
	IValue int16      `json:"ivalue"`
	FValue [4]float32 `json:"fvalue"`
	// State is set for query-state.
	State *State `json:"state,omitempty"`
}

// State is the JSON form of wire.StatusPacket.
type State struct {
	CorrectionClockwise bool    `json:"correction_clockwise"`
	HomePos             int16   `json:"home_pos"`
	MaxCW               int16   `json:"max_cw"`
	MaxCCW              int16   `json:"max_ccw"`
	LimitsEnabled       bool    `json:"limits_enabled"`
	AngleDeg            float32 `json:"angle_deg"`
	AccumulatedAngleDeg float32 `json:"accumulated_angle_deg"`
	SSID                string  `json:"ssid"`
	Security            int16   `json:"security"`
	EarthOmega          float32 `json:"earth_omega"`
}

// Do runs one command through the queue.
func (s *Server) Do(ctx context.Context, msg Command) (*Reply, error) {
	switch msg.Command {
	case "jog-cw", "jog-ccw":
		if s.jog == nil {
			return nil, fmt.Errorf("jogging disabled")
		}
		dir := stepper.CW
		if msg.Command == "jog-ccw" {
			dir = stepper.CCW
		}
		if !s.jog(dir) {
			return &Reply{Reply: wire.ReplyRejected}, nil
		}
		return &Reply{}, nil
	}
	cmd, ok := wire.ParseCommand(msg.Command)
	if !ok {
		return nil, fmt.Errorf("unknown command %q", msg.Command)
	}
	rq := &wire.RequestPacket{Command: cmd, IValue: msg.IValue}
	rq.FValue[0] = msg.Value
	rq.SetBuf(msg.Text)
	b, err := s.queue.Submit(ctx, rq)
	if err != nil {
		return nil, err
	}
	if cmd == wire.QueryState {
		var sp wire.StatusPacket
		if err := sp.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return &Reply{Reply: sp.Reply, State: &State{
			CorrectionClockwise: sp.CorrectionClockwise != 0,
			HomePos:             sp.HomePos,
			MaxCW:               sp.MaxCW,
			MaxCCW:              sp.MaxCCW,
			LimitsEnabled:       sp.LimitsEnabled != 0,
			AngleDeg:            sp.AngleDeg,
			AccumulatedAngleDeg: sp.AccumulatedAngleDeg,
			SSID:                sp.SSID(),
			Security:            sp.WLANSecurity,
			EarthOmega:          sp.EarthOmega,
		}}, nil
	}
	var rp wire.ReplyPacket
	if err := rp.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return &Reply{Reply: rp.Reply, IValue: rp.IValue, FValue: rp.FValue}, nil
}

func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var msg Command
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := s.Do(r.Context(), msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		log.Print(err)
	}
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				conn.Close()
				break
			}
			if _, err := s.Do(ctx, msg); err != nil {
				log.Printf("websocket command %q: %v", msg.Command, err)
			}
		}
	}()
	// Wake the status loop below when the socket goes away.
	go func() {
		<-ctx.Done()
		s.statusMu.Lock()
		s.statusCond.Broadcast()
		s.statusMu.Unlock()
	}()

	send := func(status host.Status) error {
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.statusMu.RLock()
	status, seen := s.status, s.statusVersion
	s.statusMu.RUnlock()
	if err := send(status); err != nil {
		log.Print(err)
		return
	}

	for {
		s.statusMu.RLock()
		for s.statusVersion == seen && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status, seen = s.status, s.statusVersion
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if err := send(status); err != nil {
			log.Print(err)
			return
		}
	}
}

// StatusCallback publishes a new status to every client.
func (s *Server) StatusCallback(status host.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.statusVersion++
	s.statusCond.Broadcast()
}
