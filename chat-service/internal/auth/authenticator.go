package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/repository"
	"github.com/Sumit-1011/CampusXchange/pkg/jwt"
	"github.com/Sumit-1011/CampusXchange/pkg/middleware"
)

var ErrUnknownUser = errors.New("token subject does not match a user")

// Authenticator resolves bearer tokens issued by the user service into
// identities backed by an existing account.
type Authenticator struct {
	tokens *jwt.Manager
	users  repository.UserRepository
}

func NewAuthenticator(tokens *jwt.Manager, users repository.UserRepository) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// ValidateToken verifies the signature and expiry, then loads the account
// by user id or, for tokens that only carry an email, by email.
func (a *Authenticator) ValidateToken(ctx context.Context, token string) (*middleware.Identity, error) {
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	var lookupErr error
	identity := &middleware.Identity{UserID: claims.UserID, Email: claims.Email, Username: claims.Username}
	if claims.UserID != "" {
		user, err := a.users.GetByID(ctx, claims.UserID)
		if err == nil {
			identity.Username = user.Username
			identity.Email = user.Email
			return identity, nil
		}
		lookupErr = err
	} else {
		user, err := a.users.GetByEmail(ctx, claims.Email)
		if err == nil {
			identity.UserID = user.ID
			identity.Username = user.Username
			return identity, nil
		}
		lookupErr = err
	}

	if errors.Is(lookupErr, repository.ErrUserNotFound) {
		return nil, ErrUnknownUser
	}
	return nil, fmt.Errorf("failed to resolve token subject: %w", lookupErr)
}
