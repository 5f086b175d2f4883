package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vietgrow/askgate/internal/storage/sqlite"
	"github.com/vietgrow/askgate/internal/types"
)

type failingStore struct{}

func (failingStore) GetUser(context.Context, string) (*types.UserProfile, error) {
	return nil, errors.New("connection reset")
}

func (failingStore) UpsertUser(context.Context, *types.UserProfile) error {
	return errors.New("connection reset")
}

func TestResolve(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "askgate.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, &types.UserProfile{ID: "u1", QuotaUsed: 2, LastResetDate: "2026-10-16"}))

	r := NewResolver(store, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		store  Store
		userID string
		want   string
	}{
		{"known user", store, "u1", "u1"},
		{"padded id", store, "  u1 ", "u1"},
		{"unknown user", store, "u9", ""},
		{"empty id", store, "", ""},
		{"store failure", failingStore{}, "u1", ""},
		{"no store", nil, "u1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.store, zaptest.NewLogger(t))
			user := r.Resolve(ctx, tt.userID)
			if tt.want == "" {
				assert.Nil(t, user)
				return
			}
			require.NotNil(t, user)
			assert.Equal(t, tt.want, user.ID)
		})
	}

	id := r.Identify(ctx, "1.2.3.4", "u1")
	assert.Equal(t, "user:u1", id.Key())
	assert.Equal(t, 2, id.User.QuotaUsed)

	id = r.Identify(ctx, "1.2.3.4", "")
	assert.Equal(t, "ip:1.2.3.4", id.Key())
}

func TestRegister(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "askgate.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	r := NewResolver(store, zaptest.NewLogger(t))

	// Unknown ids resolve to nobody until registered
	assert.Equal(t, "ip:1.2.3.4", r.Identify(ctx, "1.2.3.4", "alice").Key())

	user, err := r.Register(ctx, " alice ", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, "user:alice", r.Identify(ctx, "1.2.3.4", "alice").Key())

	// Re-registering keeps recorded usage and the email unless a new one is given
	require.NoError(t, store.UpdateUserQuota(ctx, "alice", 2, "2026-10-16"))
	user, err = r.Register(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 2, user.QuotaUsed)
	assert.Equal(t, "alice@example.com", user.Email)

	stored, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-16", stored.LastResetDate)
	assert.Equal(t, "alice@example.com", stored.Email)

	tests := []struct {
		name    string
		store   Store
		userID  string
		wantErr error
	}{
		{"blank id", store, "  ", types.ErrInvalidInput},
		{"store failure", failingStore{}, "bob", nil},
		{"no store", nil, "bob", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.store, zaptest.NewLogger(t)).Register(ctx, tt.userID, "")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
