package api

import (
	"context"
	"time"

	"vifd/pkg/lifecycle"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const eventWriteTimeout = 5 * time.Second

// StreamEvents upgrades to a websocket and pushes lifecycle events as JSON.
// The first message is a snapshot of the current state.
func (h *Handlers) StreamEvents(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket accept failed", map[string]any{"error": err})
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := conn.CloseRead(c.Request.Context())
	events, cancel := h.Interfaces.Events().Subscribe(32)
	defer cancel()

	hello := lifecycle.Event{
		Type:      lifecycle.EventSnapshot,
		State:     h.Interfaces.State().String(),
		Timestamp: time.Now().Unix(),
	}
	if desc, err := h.Interfaces.Status(); err == nil {
		hello.Interface = desc.Name
		hello.Error = desc.Error
	}
	if err := writeEvent(c, conn, hello); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := writeEvent(c, conn, ev); err != nil {
				return
			}
		}
	}
}

func writeEvent(c *gin.Context, conn *websocket.Conn, ev lifecycle.Event) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
