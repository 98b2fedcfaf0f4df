package http

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	cacheport "github.com/yasser311511/chat-app2/internal/infrastructure/cache/port"
	"github.com/yasser311511/chat-app2/internal/infrastructure/realtime"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/engine"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/presentation/controller"
)

// RegisterRoutes registers chat-related HTTP endpoints under the given router
// group. It constructs per-endpoint controllers and binds them directly to
// routes.
func RegisterRoutes(g *gin.RouterGroup, pool *pgxpool.Pool, cache cacheport.Cache, router *realtime.Router, eng *engine.Engine) {
	roomsCtl := controller.NewListRoomsController(eng)
	membersCtl := controller.NewListMembersController(eng)
	historyCtl := controller.NewGetHistoryController(eng)
	canActCtl := controller.NewCanActController(eng)
	statusCtl := controller.NewUserStatusController(eng)
	socketCtl := controller.NewChatSocketController(pool, cache, router, eng)

	// GET /api/v1/rooms -> room catalogue with live member counts
	g.GET("/rooms", roomsCtl.Handle())

	// GET /api/v1/rooms/:roomId/members -> membership snapshot
	g.GET("/rooms/:roomId/members", membersCtl.Handle())

	// GET /api/v1/rooms/:roomId/messages -> buffered history
	g.GET("/rooms/:roomId/messages", historyCtl.Handle())

	// GET /api/v1/moderation/can-act -> authority predicate
	g.GET("/moderation/can-act", canActCtl.Handle())

	// GET /api/v1/moderation/status/:username -> sanction and rank standing
	g.GET("/moderation/status/:username", statusCtl.Handle())

	// GET /api/v1/chat/ws -> websocket endpoint for realtime chat
	g.GET("/chat/ws", socketCtl.Handle())
}
