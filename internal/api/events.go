package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type eventMessage struct {
	Event string `json:"event"`
}

// Events streams change notifications over a websocket. Each time the
// pending set moves the client receives {"event":"changed"}; bursts of
// updates between writes coalesce into a single message, so clients
// should re-fetch the change list rather than count notifications.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := h.logger.WithRequestID(r.Context())

	// Coalescing signal: a notification that arrives while one is
	// already queued is folded into it.
	notify := make(chan struct{}, 1)
	unsubscribe := h.svc.OnChange(func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// The client never sends application messages; the read loop only
	// services pongs and detects the peer going away.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Prime the client so it fetches the current state on connect.
	select {
	case notify <- struct{}{}:
	default:
	}

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		case <-notify:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(eventMessage{Event: "changed"}); err != nil {
				log.Debug("event push ended", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
