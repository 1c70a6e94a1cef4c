package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ServeWS upgrades the request. Authentication happens later, per join message.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
    ws, err := h.upgrader.Upgrade(w, r, nil)
    if err != nil {
        h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
        return
    }

    c := h.register(ws)
    h.logger.Debug("connection opened", "conn", c.id, "remote", r.RemoteAddr)

    go c.writePump(h)
    c.readPump(h)
}

func (c *Connection) readPump(h *Hub) {
    defer func() {
        h.unregister(c)
        c.ws.Close()
    }()

    c.ws.SetReadLimit(h.opts.MaxMessageSize)
    c.ws.SetPongHandler(func(string) error {
        c.alive.Store(true)
        return nil
    })

    for {
        _, message, err := c.ws.ReadMessage()
        if err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
                h.logger.Debug("read failed", "conn", c.id, "error", err)
            }
            return
        }
        h.processMessage(c, message)
    }
}

// writePump is the only writer of data frames. It also runs the heartbeat:
// a connection that did not answer the previous ping is terminated.
func (c *Connection) writePump(h *Hub) {
    ticker := time.NewTicker(h.opts.HeartbeatInterval)
    defer func() {
        ticker.Stop()
        c.ws.Close()
    }()

    for {
        select {
        case message, ok := <-c.send:
            c.ws.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
            if !ok {
                c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeReason))
                return
            }
            if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
                h.logger.Debug("write failed", "conn", c.id, "error", err)
                return
            }
        case <-ticker.C:
            if !c.alive.Swap(false) {
                h.logger.Info("heartbeat missed, terminating", "conn", c.id)
                return
            }
            if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteWait)); err != nil {
                return
            }
        }
    }
}
