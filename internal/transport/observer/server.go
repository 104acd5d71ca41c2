// Package observer serves the live event feed over WebSocket. Clients
// fetch /observer/bootstrap for run parameters, then connect to
// /observer/ws and send a SUBSCRIBE message; every simulation event is
// pushed as one JSON text frame.
package observer

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reliefnet/internal/sim/agents"
)

// Version is the observer protocol version; bumped on breaking changes.
const Version = 1

// SubscribeMsg is the client handshake. Types narrows the feed to the
// listed event types; empty means everything.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion int      `json:"protocol_version"`
	Types           []string `json:"types,omitempty"`
}

// BootstrapResponse describes the run an observer is about to watch.
type BootstrapResponse struct {
	ProtocolVersion int      `json:"protocol_version"`
	RunID           string   `json:"run_id"`
	Seed            int64    `json:"seed"`
	MaxTicks        int      `json:"max_ticks"`
	Locations       []string `json:"locations"`
}

type client struct {
	out   chan []byte
	types map[string]bool
}

func (c *client) wants(eventType string) bool {
	return len(c.types) == 0 || c.types[eventType]
}

type Server struct {
	info BootstrapResponse
	log  *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	nextID  uint64
	dropped int
}

func NewServer(info BootstrapResponse, logger *log.Logger) *Server {
	info.ProtocolVersion = Version
	return &Server{
		info:    info,
		log:     logger,
		clients: map[string]*client{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Publish implements agents.EventSink. Slow clients lose frames rather
// than stalling the simulation.
func (s *Server) Publish(ev agents.Event) {
	eventType, _ := ev["type"].(string)
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if !c.wants(eventType) {
			continue
		}
		select {
		case c.out <- b:
		default:
			s.dropped++
		}
	}
}

// Dropped reports frames discarded because a client could not keep up.
func (s *Server) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Shutdown disconnects all clients.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		close(c.out)
		delete(s.clients, id)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.info)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != Version {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"),
				time.Now().Add(time.Second))
			return
		}

		id, c := s.register(sub)
		defer s.unregister(id)

		// Writer goroutine: drains the client's queue.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for b := range c.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
				time.Now().Add(time.Second))
		}()

		// Reader loop: allow SUBSCRIBE updates to change the filter.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var update SubscribeMsg
			if err := json.Unmarshal(msg, &update); err != nil {
				continue
			}
			if update.Type != "SUBSCRIBE" || update.ProtocolVersion != Version {
				continue
			}
			s.refilter(id, update)
		}

		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) register(sub SubscribeMsg) (string, *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("O%d", s.nextID)
	c := &client{out: make(chan []byte, 4096), types: typeSet(sub.Types)}
	s.clients[id] = c
	if s.log != nil {
		s.log.Printf("observer %s connected (filter: %v)", id, sub.Types)
	}
	return id, c
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		close(c.out)
		delete(s.clients, id)
		if s.log != nil {
			s.log.Printf("observer %s disconnected", id)
		}
	}
}

func (s *Server) refilter(id string, sub SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		c.types = typeSet(sub.Types)
	}
}

func typeSet(types []string) map[string]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
