package services

import (
	"context"
	"fmt"

	"expensehub/internal/core"
	"expensehub/internal/mobile"

	"golang.org/x/sync/errgroup"
)

// SyncStore loads the data described by a sync blob.
type SyncStore interface {
	ListOrganisationProjects(ctx context.Context, orgID int64) ([]core.Project, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	locationStore
	LastBillID(ctx context.Context, userID int64) (string, error)
}

// LoginTokens authenticates mobile users and issues their tokens.
type LoginTokens interface {
	Authenticate(ctx context.Context, username, password string) (core.User, error)
	CreateLoginToken(ctx context.Context, user core.User) (core.AuthToken, error)
	Resolve(ctx context.Context, key string) (core.AuthToken, error)
}

// SyncService answers mobile login and sync requests with a sync blob.
type SyncService struct {
	store  SyncStore
	tokens LoginTokens
}

func NewSyncService(store SyncStore, tokens LoginTokens) *SyncService {
	return &SyncService{store: store, tokens: tokens}
}

// Login authenticates the user, issues a new token and returns its blob.
func (s *SyncService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.tokens.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	token, err := s.tokens.CreateLoginToken(ctx, user)
	if err != nil {
		return "", err
	}
	return s.BuildSyncBlob(ctx, token)
}

// Sync returns the blob for an existing token key.
func (s *SyncService) Sync(ctx context.Context, key string) (string, error) {
	token, err := s.tokens.Resolve(ctx, key)
	if err != nil {
		return "", err
	}
	return s.BuildSyncBlob(ctx, token)
}

// BuildSyncBlob loads the token's projects, categories, locations and last
// bill id concurrently and encodes them. Locations fall back to every
// location like the organisation form does.
func (s *SyncService) BuildSyncBlob(ctx context.Context, token core.AuthToken) (string, error) {
	data := mobile.SyncData{UserID: token.UserID, TokenKey: token.Key}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data.Projects, err = s.store.ListOrganisationProjects(gctx, token.OrganisationID)
		return err
	})
	g.Go(func() error {
		var err error
		data.Categories, err = s.store.ListCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		data.Locations, err = organisationLocations(gctx, s.store, token.OrganisationID)
		return err
	})
	g.Go(func() error {
		var err error
		data.LastBillID, err = s.store.LastBillID(gctx, token.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("build sync blob: %w", err)
	}
	return mobile.EncodeSyncBlob(data), nil
}
