package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamEvents upgrades the request and relays the session's event stream
// until the session closes or the client goes away. The stream is live
// only; a reconnecting client fetches history over the REST route.
func (s *Server) streamEvents(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.registry.Snapshot(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.broadcaster.Subscribe(sessionID)
	defer s.broadcaster.Unsubscribe(sub)

	// Greet the observer so it knows the stream is live before any tool
	// call happens.
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(contractx.Event{
		Type:      contractx.EventStatus,
		SessionID: sessionID,
		Payload:   map[string]any{"status": "connected"},
	}); err != nil {
		return
	}

	// Read pump: we expect no client frames, but reading is how we learn
	// the peer closed, and it services pong frames.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == contractx.EventSessionClosed {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
