package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"expensehub/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	users  map[string]core.User
	orgs   []core.Organisation
	tokens []core.AuthToken
}

func (m *memStore) UserByUsername(_ context.Context, username string) (core.User, error) {
	u, ok := m.users[username]
	if !ok {
		return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	return u, nil
}

func (m *memStore) UserByID(_ context.Context, id int64) (core.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
}

func (m *memStore) TokenByKey(_ context.Context, key string) (core.AuthToken, error) {
	for _, t := range m.tokens {
		if t.Key == key {
			return t, nil
		}
	}
	return core.AuthToken{}, fmt.Errorf("token: %w", core.ErrNotFound)
}

func (m *memStore) SiteTokenForUser(_ context.Context, userID int64) (core.AuthToken, error) {
	for _, t := range m.tokens {
		if t.UserID == userID && t.SiteToken {
			return t, nil
		}
	}
	return core.AuthToken{}, fmt.Errorf("site token: %w", core.ErrNotFound)
}

func (m *memStore) CreateToken(_ context.Context, t core.AuthToken) (core.AuthToken, error) {
	t.ID = int64(len(m.tokens) + 1)
	m.tokens = append(m.tokens, t)
	return t, nil
}

func (m *memStore) OrganisationByID(_ context.Context, id int64) (core.Organisation, error) {
	for _, o := range m.orgs {
		if o.ID == id {
			return o, nil
		}
	}
	return core.Organisation{}, core.ErrNotFound
}

func (m *memStore) OrganisationByTitle(_ context.Context, title string) (core.Organisation, error) {
	for _, o := range m.orgs {
		if o.Title == title {
			return o, nil
		}
	}
	return core.Organisation{}, core.ErrNotFound
}

func newStore(t *testing.T) *memStore {
	t.Helper()
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	return &memStore{
		users: map[string]core.User{"ada": {ID: 1, Username: "ada", PasswordHash: hash}},
		orgs:  []core.Organisation{{ID: 1, Title: "Home"}, {ID: 2, Title: "Acme"}},
	}
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("long enough")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "long enough"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestAuthenticate(t *testing.T) {
	svc := NewTokenService(newStore(t), DefaultOrganisation{ID: 1})
	ctx := context.Background()

	u, err := svc.Authenticate(ctx, "ada", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	_, err = svc.Authenticate(ctx, "ada", "wrong password")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
}

func TestUser(t *testing.T) {
	svc := NewTokenService(newStore(t), DefaultOrganisation{ID: 1})

	u, err := svc.User(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Username)

	_, err = svc.User(context.Background(), 42)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGetOrCreateSiteTokenIsStable(t *testing.T) {
	store := newStore(t)
	svc := NewTokenService(store, DefaultOrganisation{Title: "Acme"})
	ctx := context.Background()
	user := store.users["ada"]

	first, err := svc.GetOrCreateSiteToken(ctx, user)
	require.NoError(t, err)
	second, err := svc.GetOrCreateSiteToken(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.SiteToken)
	assert.Equal(t, int64(2), first.OrganisationID)
	assert.Len(t, store.tokens, 1)
}

func TestCreateLoginTokenAlwaysCreates(t *testing.T) {
	store := newStore(t)
	svc := NewTokenService(store, DefaultOrganisation{ID: 1})
	ctx := context.Background()
	user := store.users["ada"]

	a, err := svc.CreateLoginToken(ctx, user)
	require.NoError(t, err)
	b, err := svc.CreateLoginToken(ctx, user)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Key, b.Key)
	assert.False(t, a.SiteToken)
	assert.Equal(t, int64(1), a.OrganisationID)

	got, err := svc.Resolve(ctx, b.Key)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestResolveUnknownKey(t *testing.T) {
	svc := NewTokenService(newStore(t), DefaultOrganisation{ID: 1})
	_, err := svc.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDefaultOrganisationMissing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := NewTokenService(store, DefaultOrganisation{Title: "Ghost"}).CreateLoginToken(ctx, store.users["ada"])
	assert.ErrorIs(t, err, ErrNoDefaultOrganisation)
	assert.False(t, errors.Is(err, core.ErrNotFound))

	_, err = NewTokenService(store, DefaultOrganisation{}).DefaultOrganisation(ctx)
	assert.ErrorIs(t, err, ErrNoDefaultOrganisation)
}

func TestSessionManager(t *testing.T) {
	_, err := NewSessionManager("", time.Hour)
	assert.Error(t, err)

	m, err := NewSessionManager("secret", time.Hour)
	require.NoError(t, err)

	tok, err := m.Issue(42, "ada")
	require.NoError(t, err)

	claims, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ada", claims.Username)

	other, err := NewSessionManager("other", time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(tok)
	assert.Error(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.Parse(tok)
	assert.Error(t, err)
}
