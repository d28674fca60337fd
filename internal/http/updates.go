package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type updateMessage struct {
	Type      string    `json:"type"`
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

// Updates streams one message per completed cycle to a websocket client.
// Notifications that arrive while a message is pending are merged.
func (a *API) Updates(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	notify := make(chan struct{}, 1)
	id := a.controller.Subscribe(func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer a.controller.Unsubscribe(id)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-notify:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := updateMessage{Type: "update", Connected: a.controller.Connected(), At: time.Now().UTC()}
			if err := conn.WriteJSON(msg); err != nil {
				a.logger.Debug("websocket write failed", "err", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
