package httpserver

import (
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/service/cart"
)

const keepAliveInterval = 25 * time.Second

// cartEvents streams cart events as server-sent events. The first event is
// a snapshot of the current cart.
func (h *handlers) cartEvents(c *gin.Context) {
	sc := h.cartFor(c)
	events := make(chan cart.Event, 16)
	unsubscribe := sc.Subscribe(func(ev cart.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("snapshot", snapshot(sc))
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			payload := gin.H{"type": ev.Type, "items": ev.Items}
			if ev.Err != nil {
				payload["error"] = ev.Err.Error()
			}
			c.SSEvent(string(ev.Type), payload)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent("ping", gin.H{})
			c.Writer.Flush()
		}
	}
}
