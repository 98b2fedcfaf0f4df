package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
)

// ListRoomsController handles the room-listing endpoint only (one controller
// per endpoint).
type ListRoomsController struct {
	eng *engine.Engine
}

func NewListRoomsController(eng *engine.Engine) *ListRoomsController {
	return &ListRoomsController{eng: eng}
}

// Handle returns the room catalogue with live member counts.
func (h *ListRoomsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": h.eng.Rooms()})
	}
}
