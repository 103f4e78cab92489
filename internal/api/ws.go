package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// websocket streams the activity feed. Every text message received is
// answered through the pipeline; the reply arrives as a response event.
func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	l := hlog.FromRequest(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.deps.Activity.Subscribe()
	defer unsubscribe()

	go func() {
		for e := range events {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				l.Debug().Err(err).Msg("websocket write failed")
				conn.Close()
				return
			}
		}
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			l.Debug().Err(err).Msg("websocket closed")
			return
		}
		if typ != websocket.TextMessage || len(msg) == 0 {
			continue
		}
		s.Converse(r.Context(), string(msg), "websocket")
	}
}
