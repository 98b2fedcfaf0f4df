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

// PersistMessageTaskType is the queue task name for appending a room message
// to the durable log.
const PersistMessageTaskType = "chat:persist_message"

// RegisterPersistMessageTask binds the durable-log handler to the server. The
// payload is a JSON-encoded chat.Message; the insert is idempotent on the
// message id, so retries are safe.
func RegisterPersistMessageTask(srv qport.Server, pool *pgxpool.Pool) {
	srv.Register(PersistMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var m chat.Message
		if err := json.Unmarshal(t.Payload, &m); err != nil {
			// malformed payload: retrying cannot help
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		return repoAdapter.NewPgStore(pool).InsertMessage(ctx, m)
	})
}
