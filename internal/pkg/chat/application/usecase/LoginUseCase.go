package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	cache "github.com/yasser311511/chat-app2/internal/infrastructure/cache/port"
	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	repository "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/port"
)

// sessionCacheTTL bounds how long a resolved session may be served from the
// cache fast path before going back to the durable store.
const sessionCacheTTL = 15 * time.Minute

func sessionCacheKey(token string) string { return "session:" + token }

// SiteBanChecker answers whether an identity is currently site banned. The
// engine implements it.
type SiteBanChecker interface {
	IsSiteBanned(username string) bool
}

// LoginInput carries credentials for session issuance.
type LoginInput struct {
	Username string
	Password string
}

// LoginUseCase verifies credentials and issues an opaque session token.
// The session is durable before it is cached or returned.
type LoginUseCase struct {
	Identities repository.IdentityRepository
	Sessions   repository.SessionRepository
	Cache      cache.Cache
	Bans       SiteBanChecker
}

func NewLoginUseCase(ids repository.IdentityRepository, sess repository.SessionRepository, c cache.Cache, bans SiteBanChecker) *LoginUseCase {
	return &LoginUseCase{Identities: ids, Sessions: sess, Cache: c, Bans: bans}
}

// Execute authenticates and returns a fresh session. Wrong username and wrong
// password are indistinguishable to the caller.
func (uc *LoginUseCase) Execute(ctx context.Context, in LoginInput) (*chat.Session, error) {
	identity, err := uc.Identities.GetIdentity(ctx, in.Username)
	if err != nil {
		if errors.Is(err, chat.ErrIdentityNotFound) {
			return nil, chat.ErrBadCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(in.Password)) != nil {
		return nil, chat.ErrBadCredentials
	}
	if uc.Bans != nil && uc.Bans.IsSiteBanned(identity.Username) {
		return nil, chat.ErrSiteBanned
	}

	session := chat.Session{
		Token:        chat.NewSessionToken(),
		Username:     identity.Username,
		PasswordHash: identity.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := uc.Sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if uc.Cache != nil {
		if buf, err := json.Marshal(session); err == nil {
			// best effort; the durable record is authoritative
			_ = uc.Cache.Set(ctx, sessionCacheKey(session.Token), string(buf), sessionCacheTTL)
		}
	}
	return &session, nil
}
