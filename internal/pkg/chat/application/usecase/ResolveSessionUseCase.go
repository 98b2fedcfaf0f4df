package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	cache "github.com/yasser311511/chat-app2/internal/infrastructure/cache/port"
	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	repository "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/port"
)

// ResolveSessionUseCase turns an opaque token back into an identity. The
// cache only short-circuits the session lookup; the identity itself is always
// re-read so a rename, password change or site ban fails the resolve closed
// even against a stale cache entry.
type ResolveSessionUseCase struct {
	Identities repository.IdentityRepository
	Sessions   repository.SessionRepository
	Cache      cache.Cache
	Bans       SiteBanChecker
}

func NewResolveSessionUseCase(ids repository.IdentityRepository, sess repository.SessionRepository, c cache.Cache, bans SiteBanChecker) *ResolveSessionUseCase {
	return &ResolveSessionUseCase{Identities: ids, Sessions: sess, Cache: c, Bans: bans}
}

// Execute resolves token to its identity or fails with chat.ErrSessionInvalid
// (or chat.ErrSiteBanned for a banned account).
func (uc *ResolveSessionUseCase) Execute(ctx context.Context, token string) (*chat.Identity, error) {
	if token == "" {
		return nil, chat.ErrSessionInvalid
	}

	var session chat.Session
	found := false
	if uc.Cache != nil {
		if raw, err := uc.Cache.Get(ctx, sessionCacheKey(token)); err == nil {
			if json.Unmarshal([]byte(raw), &session) == nil && session.Token == token {
				found = true
			}
		}
	}
	if !found {
		s, err := uc.Sessions.GetSession(ctx, token)
		if err != nil {
			if errors.Is(err, chat.ErrSessionInvalid) {
				return nil, chat.ErrSessionInvalid
			}
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		session = s
	}

	identity, err := uc.Identities.GetIdentity(ctx, session.Username)
	if err != nil {
		if errors.Is(err, chat.ErrIdentityNotFound) {
			// renamed or deleted since issuance
			uc.drop(ctx, token)
			return nil, chat.ErrSessionInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if identity.PasswordHash != session.PasswordHash {
		// credential changed since issuance
		uc.drop(ctx, token)
		return nil, chat.ErrSessionInvalid
	}
	if uc.Bans != nil && uc.Bans.IsSiteBanned(identity.Username) {
		return nil, chat.ErrSiteBanned
	}
	return &identity, nil
}

func (uc *ResolveSessionUseCase) drop(ctx context.Context, token string) {
	if uc.Cache != nil {
		_, _ = uc.Cache.Del(ctx, sessionCacheKey(token))
	}
	_ = uc.Sessions.DeleteSession(ctx, token)
}
