// Package server exposes the local HTTP/WebSocket surface: a snapshot
// stream at /ws that also accepts "start"/"stop" text frames, a
// disassembly lookup at /disassemble, and an observation-target switch at
// /observe. It binds the first free port in [4000, 5000) on loopback,
// grounded on the original server's fixed port 4000 but made resilient to
// that port already being taken.
package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/apilar-sim/apilar/internal/logging"
	"github.com/apilar-sim/apilar/internal/world"
)

const (
	portRangeStart = 4000
	portRangeEnd   = 5000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DisassembleResult is the /disassemble response envelope: exactly one of
// Success or Failure is populated.
type DisassembleResult struct {
	Success *DisassembleSuccess `json:"Success,omitempty"`
	Failure *DisassembleFailure `json:"Failure,omitempty"`
}

// DisassembleSuccess carries the disassembled mnemonic text.
type DisassembleSuccess struct {
	Code string `json:"code"`
}

// DisassembleFailure carries a human-readable failure message.
type DisassembleFailure struct {
	Message string `json:"message"`
}

// DisassembleLookup resolves a Habitat coordinate to the Computer's
// disassembled memory, or an error if the cell is empty or invalid.
type DisassembleLookup func(x, y int) (string, error)

// broadcaster fans a snapshot out to every currently connected /ws socket.
// World.Run's snapshotFn calls Publish; each handleWS goroutine registers
// its own channel for the duration of the connection.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan world.Snapshot]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan world.Snapshot]struct{})}
}

func (b *broadcaster) subscribe() (chan world.Snapshot, func()) {
	ch := make(chan world.Snapshot, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

// Publish delivers snap to every subscriber, dropping it for any socket
// whose channel is still full rather than blocking the simulation's
// snapshot task.
func (b *broadcaster) Publish(snap world.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Server is the HTTP/WebSocket adapter over one running World.
type Server struct {
	world       *world.World
	lookup      DisassembleLookup
	log         *logging.Logger
	mux         *http.ServeMux
	listener    net.Listener
	broadcaster *broadcaster
}

// New wires handlers for /ws, /disassemble, and /observe against w, using
// lookup to resolve disassembly requests. The returned Server's Publish
// method should be passed as World.Run's snapshotFn.
func New(w *world.World, lookup DisassembleLookup, log *logging.Logger) *Server {
	s := &Server{world: w, lookup: lookup, log: log, mux: http.NewServeMux(), broadcaster: newBroadcaster()}
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/disassemble", s.handleDisassemble)
	s.mux.HandleFunc("/observe", s.handleObserve)
	return s
}

// Publish forwards a snapshot to every connected /ws client.
func (s *Server) Publish(snap world.Snapshot) {
	s.broadcaster.Publish(snap)
}

// Listen binds the first free port in [4000, 5000) on loopback and returns
// its address; it does not yet serve requests (call Serve for that).
func (s *Server) Listen() (string, error) {
	for port := portRangeStart; port < portRangeEnd; port++ {
		addr := "127.0.0.1:" + strconv.Itoa(port)
		l, err := net.Listen("tcp", addr)
		if err == nil {
			s.listener = l
			return addr, nil
		}
	}
	return "", fmt.Errorf("server: no free port in [%d, %d)", portRangeStart, portRangeEnd)
}

// Serve blocks running the HTTP server over the listener established by
// Listen.
func (s *Server) Serve() error {
	return http.Serve(s.listener, s.mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warn().Err(err).Msg("websocket upgrade failed")
		}
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go s.readCommands(conn, done)

	ch, unsubscribe := s.broadcaster.subscribe()
	defer unsubscribe()

	for {
		select {
		case <-done:
			return
		case snap := <-ch:
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}

func (s *Server) readCommands(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch string(msg) {
		case "start":
			for _, h := range s.world.Islands {
				h.SetRunning(true)
			}
		case "stop":
			for _, h := range s.world.Islands {
				h.SetRunning(false)
			}
		}
	}
}

func (s *Server) handleDisassemble(w http.ResponseWriter, r *http.Request) {
	xs, ys := r.URL.Query().Get("x"), r.URL.Query().Get("y")
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		writeJSON(w, DisassembleResult{Failure: &DisassembleFailure{Message: "invalid coordinates"}})
		return
	}

	code, err := s.lookup(x, y)
	if err != nil {
		writeJSON(w, DisassembleResult{Failure: &DisassembleFailure{Message: err.Error()}})
		return
	}
	writeJSON(w, DisassembleResult{Success: &DisassembleSuccess{Code: code}})
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("island_id"))
	if err != nil {
		http.Error(w, "invalid island_id", http.StatusBadRequest)
		return
	}
	s.world.Observe(id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
