package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
)

// GetHistoryController handles the room-history endpoint only. It serves the
// bounded in-memory buffer; older messages live in the durable log.
type GetHistoryController struct {
	eng *engine.Engine
}

func NewGetHistoryController(eng *engine.Engine) *GetHistoryController {
	return &GetHistoryController{eng: eng}
}

func (h *GetHistoryController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= chat.HistoryCapacity {
				limit = n
			}
		}

		var messages []chat.Message
		var err error
		if before := c.Query("before"); before != "" {
			messages, err = h.eng.Before(roomID, before, limit)
		} else {
			messages, err = h.eng.Recent(roomID, limit)
		}
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": messages})
	}
}
