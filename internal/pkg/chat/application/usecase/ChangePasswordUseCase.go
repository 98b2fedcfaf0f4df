package usecase

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	repository "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/port"
)

// ChangePasswordInput carries a credential rotation request.
type ChangePasswordInput struct {
	Username    string
	OldPassword string
	NewPassword string
}

// ChangePasswordUseCase rotates a credential and invalidates every session of
// the identity. Cached session entries need no purge: the resolve path
// compares the hash snapshot and fails them closed.
type ChangePasswordUseCase struct {
	Identities repository.IdentityRepository
	Sessions   repository.SessionRepository
}

func NewChangePasswordUseCase(ids repository.IdentityRepository, sess repository.SessionRepository) *ChangePasswordUseCase {
	return &ChangePasswordUseCase{Identities: ids, Sessions: sess}
}

func (uc *ChangePasswordUseCase) Execute(ctx context.Context, in ChangePasswordInput) error {
	if len(in.NewPassword) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}

	identity, err := uc.Identities.GetIdentity(ctx, in.Username)
	if err != nil {
		if errors.Is(err, chat.ErrIdentityNotFound) {
			return chat.ErrBadCredentials
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(in.OldPassword)) != nil {
		return chat.ErrBadCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := uc.Identities.UpdatePassword(ctx, in.Username, string(hash)); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := uc.Sessions.DeleteSessionsFor(ctx, in.Username); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
