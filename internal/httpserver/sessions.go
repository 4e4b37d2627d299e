package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// newSession hands out an anonymous session id for clients that have none.
// Carts and orders are keyed by it.
func (h *handlers) newSession(c *gin.Context) {
	id := uuid.NewString()
	h.logger.Debug("issued session", zapSession(id))
	c.Header(sessionHeader, id)
	c.JSON(http.StatusCreated, gin.H{"sessionId": id})
}
