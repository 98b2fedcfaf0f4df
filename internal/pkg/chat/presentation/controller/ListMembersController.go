package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
)

// ListMembersController handles the room-membership endpoint only.
type ListMembersController struct {
	eng *engine.Engine
}

func NewListMembersController(eng *engine.Engine) *ListMembersController {
	return &ListMembersController{eng: eng}
}

func (h *ListMembersController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")
		members, err := h.eng.MembersOf(roomID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "members": members})
	}
}
