package usecase

import (
	"context"
	"fmt"

	cache "github.com/yasser311511/chat-app2/internal/infrastructure/cache/port"
	repository "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/port"
)

// LogoutUseCase invalidates one session token, durable record first.
type LogoutUseCase struct {
	Sessions repository.SessionRepository
	Cache    cache.Cache
}

func NewLogoutUseCase(sess repository.SessionRepository, c cache.Cache) *LogoutUseCase {
	return &LogoutUseCase{Sessions: sess, Cache: c}
}

func (uc *LogoutUseCase) Execute(ctx context.Context, token string) error {
	if err := uc.Sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if uc.Cache != nil {
		_, _ = uc.Cache.Del(ctx, sessionCacheKey(token))
	}
	return nil
}
