package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// wsMessage is one inbound frame: {event, data}.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleDriverWS owns one driver connection: register the session, pump
// events, mark the driver offline when the socket dies.
func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader already wrote the response
	}
	connID := uuid.NewString()
	s.WSReg.Add(driverID, conn)
	defer func() {
		s.WSReg.Remove(driverID, conn)
		if _, err := s.Registry.MarkOffline(context.Background(), connID); err != nil {
			s.logger.Warn("mark offline failed", "driver_id", driverID, "error", err)
		}
		_ = conn.Close()
	}()

	s.logger.Info("driver connected", "driver_id", driverID, "conn_id", connID)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("driver socket error", "driver_id", driverID, "error", err)
			}
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.reply(driverID, "error", map[string]string{"message": "invalid message format"})
			continue
		}
		s.handleDriverEvent(driverID, connID, msg)
	}
}

// handleRiderWS owns one rider connection.
func (s *Server) handleRiderWS(w http.ResponseWriter, r *http.Request) {
	riderID := mux.Vars(r)["rider_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	connID := uuid.NewString()
	s.WSReg.Add(riderID, conn)
	defer func() {
		s.WSReg.Remove(riderID, conn)
		_ = conn.Close()
	}()

	s.logger.Info("rider connected", "rider_id", riderID, "conn_id", connID)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("rider socket error", "rider_id", riderID, "error", err)
			}
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.reply(riderID, "error", map[string]string{"message": "invalid message format"})
			continue
		}
		s.handleRiderEvent(riderID, connID, msg)
	}
}

// reply routes an answer back through the session registry so it shares
// the per-connection write lock with engine fan-out.
func (s *Server) reply(clientID, event string, payload any) {
	if err := s.WSReg.Send(clientID, event, payload); err != nil {
		s.logger.Warn("ws reply failed", "client_id", clientID, "event", event, "error", err)
	}
}
