// Package identity resolves an opaque user id to a profile.
package identity

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vietgrow/askgate/internal/logging"
	"github.com/vietgrow/askgate/internal/types"
)

// Store looks up and registers users
type Store interface {
	GetUser(ctx context.Context, id string) (*types.UserProfile, error)
	UpsertUser(ctx context.Context, u *types.UserProfile) error
}

// Resolver turns user ids into profiles
type Resolver struct {
	store Store
	log   *zap.Logger
}

// NewResolver creates a Resolver. A nil store resolves nobody.
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, log: logging.OrNop(logger).Named("identity")}
}

// Resolve returns the profile for userID, or nil when the caller should be
// treated as anonymous. Lookup failures are logged and also yield nil.
func (r *Resolver) Resolve(ctx context.Context, userID string) *types.UserProfile {
	userID = strings.TrimSpace(userID)
	if userID == "" || r.store == nil {
		return nil
	}

	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		r.log.Warn("user lookup failed, falling back to IP", zap.String("user", userID), zap.Error(err))
		return nil
	}
	if user == nil {
		r.log.Debug("unknown user, falling back to IP", zap.String("user", userID))
	}
	return user
}

// Identify builds the request identity from an IP and an optional user id
func (r *Resolver) Identify(ctx context.Context, ip, userID string) types.Identity {
	return types.Identity{IP: ip, User: r.Resolve(ctx, userID)}
}

// Register creates the profile for userID, or updates the email of an
// existing one. Quota usage already recorded for the user is kept.
func (r *Resolver) Register(ctx context.Context, userID, email string) (*types.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", types.ErrInvalidInput)
	}
	if r.store == nil {
		return nil, fmt.Errorf("no user store configured")
	}

	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", userID, err)
	}
	created := user == nil
	if created {
		user = &types.UserProfile{ID: userID}
	}
	if email = strings.TrimSpace(email); email != "" {
		user.Email = email
	}

	if err := r.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to register user %s: %w", userID, err)
	}
	r.log.Info("user registered", zap.String("user", userID), zap.Bool("created", created))
	return user, nil
}
