// internal/api/sse.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StreamEvents serves the status feed over server-sent events. Each client
// gets its own broadcaster subscription and the current status on connect.
func (h *Handler) StreamEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	id, events := h.bcast.Subscribe()
	defer h.bcast.Unsubscribe(id)

	h.log.Debug("sse client connected", map[string]interface{}{"subscriber": id})

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("sse client disconnected", map[string]interface{}{"subscriber": id})
			return
		case ev, open := <-events:
			if !open {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", raw)
			flusher.Flush()
		}
	}
}
