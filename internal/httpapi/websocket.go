package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleProgressWebSocket streams every Bus event to one client for the
// lifetime of the connection.
func (s *Server) handleProgressWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	var writeMu sync.Mutex
	done := make(chan struct{})
	go readPump(conn, done)

	for {
		select {
		case <-done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := conn.WriteJSON(evt)
			writeMu.Unlock()
			if err != nil {
				s.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// readPump drains and ignores client frames (the protocol is
// server-push only; a client may send "ping" keepalives) and closes
// done once the connection is gone.
func readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
