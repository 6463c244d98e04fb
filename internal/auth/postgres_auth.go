package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/triage-ai/toolbox/internal/store"
)

// ClientStore abstracts the prefix lookup for testability. *store.Store
// satisfies it.
type ClientStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*store.APIClient, error)
}

// PostgresAuthenticator validates API keys against the api_clients table.
// Uses AuthCache with stale-while-revalidate to avoid DB + bcrypt on the hot path.
type PostgresAuthenticator struct {
	store  ClientStore
	cache  *AuthCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	Store    ClientStore
	CacheTTL time.Duration // Default: 30s
	MaxStale time.Duration // Default: 5m
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new authenticator backed by PostgreSQL.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	maxStale := cfg.MaxStale
	if maxStale == 0 {
		maxStale = 5 * time.Minute
	}
	return &PostgresAuthenticator{
		store:  cfg.Store,
		cache:  NewAuthCache(ttl, maxStale),
		logger: cfg.Logger,
	}
}

// Authenticate validates the API key against the database.
//
// Flow:
//  1. Format check (tbx_ prefix)
//  2. Cache lookup (stale-while-revalidate):
//     - Fresh hit: return immediately
//     - Stale hit: return stale client, spawn background refresh
//     - Miss: do full DB + bcrypt lookup synchronously
//  3. DB errors surface as ErrAuthUnavailable, never as success.
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Client, error) {
	if err := checkFormat(apiKey); err != nil {
		return nil, err
	}

	result := a.cache.Get(apiKey)
	if result.Hit {
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Client, nil
	}

	client, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return nil, a.handleLookupError(err)
	}

	a.cache.Set(apiKey, client)
	return client, nil
}

// backgroundRefresh repeats the lookup outside the request path. A failure
// evicts the entry so the next request re-authenticates synchronously;
// this is how revocations take effect.
func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background cache refresh failed",
			zap.Error(err),
		)
		a.cache.Delete(apiKey)
		return
	}

	a.cache.Set(apiKey, client)
}

// lookupAndVerify does the DB prefix lookup and bcrypt verification.
func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*Client, error) {
	row, err := a.store.LookupByPrefix(ctx, apiKey[:store.PrefixLength])
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if row == nil || row.Revoked {
		return nil, ErrInvalidAPIKey
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	return &Client{ID: row.ID, Name: row.Name}, nil
}

func (a *PostgresAuthenticator) handleLookupError(lookupErr error) error {
	if errors.Is(lookupErr, ErrInvalidAPIKey) {
		return ErrInvalidAPIKey
	}

	a.logger.Warn("auth DB unreachable",
		zap.Error(lookupErr),
	)
	return fmt.Errorf("%w: %v", ErrAuthUnavailable, lookupErr)
}
