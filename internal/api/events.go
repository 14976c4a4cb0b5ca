package api

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// StreamEvents pushes every operation event to a WebSocket client until it
// disconnects.
func (h *Handler) StreamEvents(c *websocket.Conn) {
	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)

	// Reads only detect the close; clients have nothing to send.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				h.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		case <-gone:
			return
		}
	}
}
