package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
)

// CanActController answers the authority predicate for a pair of identities.
type CanActController struct {
	eng *engine.Engine
}

func NewCanActController(eng *engine.Engine) *CanActController {
	return &CanActController{eng: eng}
}

func (h *CanActController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.Query("actor")
		target := c.Query("target")
		if actor == "" || target == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "actor and target are required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"actor":   actor,
			"target":  target,
			"can_act": h.eng.CanAct(actor, target),
		})
	}
}
