package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

// Resolver turns bearer tokens into active users. It implements
// interfaces.IdentityResolver.
type Resolver struct {
	tokens *TokenManager
	users  interfaces.UserStore
}

// NewResolver creates a resolver that verifies tokens with tokens and looks
// users up in users.
func NewResolver(tokens *TokenManager, users interfaces.UserStore) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Authenticate verifies the token and returns the active user it names.
func (r *Resolver) Authenticate(ctx context.Context, token string) (*types.User, error) {
	claims, err := r.tokens.ParseToken(token)
	if err != nil {
		return nil, err
	}

	user, err := r.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("failed to load user %s: %w", claims.Subject, err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// ResolveIdentity authenticates a websocket peer and records that it was
// seen.
func (r *Resolver) ResolveIdentity(ctx context.Context, token string) (*types.Identity, error) {
	user, err := r.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := r.users.TouchLastSeen(ctx, user.ID); err != nil {
		log.Printf("Failed to update last_seen for user %s: %v", user.ID, err)
	}

	return &types.Identity{
		UserID:    user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		Role:      user.Role,
	}, nil
}

// RequireAdmin authenticates the token and checks the admin role.
func (r *Resolver) RequireAdmin(ctx context.Context, token string) (*types.User, error) {
	user, err := r.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, ErrForbidden
	}
	return user, nil
}
