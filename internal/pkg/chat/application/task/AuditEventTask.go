package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	qport "github.com/yasser311511/chat-app2/internal/infrastructure/queue/port"
	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	repoAdapter "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/adapter"
)

// AuditEventTaskType is the queue task name for recording a privileged action
// in the audit trail.
const AuditEventTaskType = "chat:audit_event"

// RegisterAuditEventTask binds the audit-trail handler to the server.
func RegisterAuditEventTask(srv qport.Server, pool *pgxpool.Pool) {
	srv.Register(AuditEventTaskType, func(ctx context.Context, t qport.Task) error {
		var ev chat.AuditEvent
		if err := json.Unmarshal(t.Payload, &ev); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		return repoAdapter.NewPgStore(pool).InsertAuditEvent(ctx, ev)
	})
}
