package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
)

// UserStatusController reports one identity's standing: rank, sanctions and
// whether it is online.
type UserStatusController struct {
	eng *engine.Engine
}

func NewUserStatusController(eng *engine.Engine) *UserStatusController {
	return &UserStatusController{eng: eng}
}

func (h *UserStatusController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Param("username")
		if username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
			return
		}
		c.JSON(http.StatusOK, h.eng.StatusOf(username))
	}
}
