package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	cacheport "github.com/yasser311511/chat-app2/internal/infrastructure/cache/port"
	"github.com/yasser311511/chat-app2/internal/infrastructure/realtime"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
	httpHandler "github.com/yasser311511/chat-app2/internal/pkg/chat/presentation/http"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1.
func RegisterRoutes(r *gin.Engine, pool *pgxpool.Pool, cache cacheport.Cache, router *realtime.Router, eng *engine.Engine) {
	v1 := r.Group("/api/v1")
	httpHandler.RegisterRoutes(v1, pool, cache, router, eng)
}
