package usecase

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	repository "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/port"
)

// RegisterUserInput carries the data needed to create an account.
type RegisterUserInput struct {
	Username string
	Password string
	Gender   string
}

// RegisterUserUseCase creates a new identity with a bcrypt credential.
// One class per use case (own file).
type RegisterUserUseCase struct {
	Repo repository.IdentityRepository
}

func NewRegisterUserUseCase(repo repository.IdentityRepository) *RegisterUserUseCase {
	return &RegisterUserUseCase{Repo: repo}
}

// Execute validates the username, hashes the password and persists the
// identity. A duplicate username surfaces as chat.ErrNameTaken.
func (uc *RegisterUserUseCase) Execute(ctx context.Context, in RegisterUserInput) (*chat.Identity, error) {
	if err := chat.ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if len(in.Password) < 6 {
		return nil, fmt.Errorf("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	identity := chat.Identity{
		Username:     in.Username,
		PasswordHash: string(hash),
		Gender:       in.Gender,
	}
	if err := uc.Repo.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, chat.ErrNameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &identity, nil
}
