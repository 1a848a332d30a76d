package web

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// eventWriteTimeout bounds one websocket write
const eventWriteTimeout = 5 * time.Second

// handleEvents streams the browser's session events as JSON over a websocket
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, unsubscribe := b.session.Subscribe()
	defer unsubscribe()

	// Incoming messages are discarded; ctx ends when the client disconnects
	ctx := conn.CloseRead(r.Context())

	s.logger.Debug().Str("browser", b.id).Msg("WebSocket client connected")
	defer s.logger.Debug().Str("browser", b.id).Msg("WebSocket client disconnected")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}

			wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(wctx, conn, event)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
