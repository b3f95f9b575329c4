package dispatch

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is the websocket wire envelope: every frame in either direction is
// {event, data}.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ErrNoSession reports that the target client has no live connection.
var ErrNoSession = errors.New("no ws session")

// WSSession wraps a connection with a write lock; gorilla allows only one
// concurrent writer.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(Event{Event: event, Data: payload})
}

// WSRegistry holds live sessions for riders and drivers alike, keyed by
// client id. At-most-once delivery, no cross-event ordering.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession)}
}

func (r *WSRegistry) Add(clientID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[clientID] = &WSSession{conn: conn}
}

// Remove drops the session only if conn still owns it; a client that
// reconnected keeps its fresh session.
func (r *WSRegistry) Remove(clientID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[clientID]; ok && s.conn == conn {
		delete(r.sessions, clientID)
	}
}

func (r *WSRegistry) Send(clientID, event string, payload any) error {
	r.mu.RLock()
	s, ok := r.sessions[clientID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(event, payload)
}
