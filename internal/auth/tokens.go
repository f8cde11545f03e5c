package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expensehub/internal/core"

	"github.com/google/uuid"
)

// Store is the persistence the token service depends on.
type Store interface {
	UserByUsername(ctx context.Context, username string) (core.User, error)
	UserByID(ctx context.Context, id int64) (core.User, error)
	TokenByKey(ctx context.Context, key string) (core.AuthToken, error)
	SiteTokenForUser(ctx context.Context, userID int64) (core.AuthToken, error)
	CreateToken(ctx context.Context, t core.AuthToken) (core.AuthToken, error)
	OrganisationByID(ctx context.Context, id int64) (core.Organisation, error)
	OrganisationByTitle(ctx context.Context, title string) (core.Organisation, error)
}

// DefaultOrganisation names the organisation new tokens are bound to, either
// by title or by id. Title wins when both are set.
type DefaultOrganisation struct {
	Title string
	ID    int64
}

// ErrNoDefaultOrganisation means the configured default organisation is
// missing from the store.
var ErrNoDefaultOrganisation = errors.New("default organisation unavailable")

type TokenService struct {
	store      Store
	defaultOrg DefaultOrganisation
	newKey     func() string
}

func NewTokenService(store Store, defaultOrg DefaultOrganisation) *TokenService {
	return &TokenService{
		store:      store,
		defaultOrg: defaultOrg,
		newKey:     func() string { return uuid.NewString() },
	}
}

// Authenticate checks username and password. Unknown users and wrong
// passwords both yield core.ErrInvalidCredentials.
func (s *TokenService) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		burnComparison(password)
		return core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("authenticate: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return core.User{}, core.ErrInvalidCredentials
	}
	return user, nil
}

// User reloads a signed-in user. Users removed since the session was issued
// yield core.ErrNotFound.
func (s *TokenService) User(ctx context.Context, id int64) (core.User, error) {
	return s.store.UserByID(ctx, id)
}

// Resolve looks a token up by its exact key.
func (s *TokenService) Resolve(ctx context.Context, key string) (core.AuthToken, error) {
	if key == "" {
		return core.AuthToken{}, fmt.Errorf("token: %w", core.ErrNotFound)
	}
	return s.store.TokenByKey(ctx, key)
}

// GetOrCreateSiteToken returns the user's site token, creating it on first use.
func (s *TokenService) GetOrCreateSiteToken(ctx context.Context, user core.User) (core.AuthToken, error) {
	t, err := s.store.SiteTokenForUser(ctx, user.ID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.AuthToken{}, fmt.Errorf("get site token: %w", err)
	}

	org, err := s.DefaultOrganisation(ctx)
	if err != nil {
		return core.AuthToken{}, err
	}
	t, err = s.store.CreateToken(ctx, core.AuthToken{
		Key:            s.newKey(),
		UserID:         user.ID,
		OrganisationID: org.ID,
		SiteToken:      true,
	})
	if err != nil {
		return core.AuthToken{}, fmt.Errorf("create site token: %w", err)
	}
	slog.InfoContext(ctx, "Site token created", "user_id", user.ID, "token_id", t.ID)
	return t, nil
}

// CreateLoginToken issues a fresh mobile token bound to the default organisation.
func (s *TokenService) CreateLoginToken(ctx context.Context, user core.User) (core.AuthToken, error) {
	org, err := s.DefaultOrganisation(ctx)
	if err != nil {
		return core.AuthToken{}, err
	}
	t, err := s.store.CreateToken(ctx, core.AuthToken{
		Key:            s.newKey(),
		UserID:         user.ID,
		OrganisationID: org.ID,
	})
	if err != nil {
		return core.AuthToken{}, fmt.Errorf("create login token: %w", err)
	}
	return t, nil
}

// DefaultOrganisation resolves the configured default organisation.
func (s *TokenService) DefaultOrganisation(ctx context.Context) (core.Organisation, error) {
	var (
		org core.Organisation
		err error
	)
	switch {
	case s.defaultOrg.Title != "":
		org, err = s.store.OrganisationByTitle(ctx, s.defaultOrg.Title)
	case s.defaultOrg.ID != 0:
		org, err = s.store.OrganisationByID(ctx, s.defaultOrg.ID)
	default:
		return core.Organisation{}, fmt.Errorf("%w: not configured", ErrNoDefaultOrganisation)
	}
	if err != nil {
		return core.Organisation{}, fmt.Errorf("%w: %v", ErrNoDefaultOrganisation, err)
	}
	return org, nil
}
