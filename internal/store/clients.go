package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix starts every API key issued by this service.
	KeyPrefix = "tbx_"
	// PrefixLength is how many leading key characters are stored in
	// clear for lookup ("tbx_" plus 8 hex digits).
	PrefixLength = 12
)

// ErrClientNotFound is returned when no client matches the given ID.
var ErrClientNotFound = errors.New("api client not found")

// keyCost is the bcrypt cost for new keys.
var keyCost = bcrypt.DefaultCost

// APIClient represents a row in the api_clients table.
type APIClient struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	Revoked      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const clientColumns = `id, name, api_key_hash, api_key_prefix, revoked, created_at, updated_at`

func (c *APIClient) scanTargets() []any {
	return []any{&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.Revoked, &c.CreatedAt, &c.UpdatedAt}
}

// GenerateAPIKey creates a new tbx_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := KeyPrefix + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), keyCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	return fullKey, string(hashBytes), fullKey[:PrefixLength], nil
}

// CreateClient inserts a new client with a freshly generated key.
// Returns the client and the plaintext API key (shown once).
func (s *Store) CreateClient(ctx context.Context, name string) (*APIClient, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateClient: %w", err)
	}

	var c APIClient
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_clients (id, name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3, $4)
		RETURNING `+clientColumns,
		uuid.NewString(), name, keyHash, keyPrefix,
	).Scan(c.scanTargets()...)
	if err != nil {
		return nil, "", fmt.Errorf("CreateClient: %w", err)
	}
	return &c, fullKey, nil
}

// ListClients returns all clients ordered by created_at DESC.
func (s *Store) ListClients(ctx context.Context) ([]*APIClient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM api_clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListClients: %w", err)
	}
	defer rows.Close()

	var clients []*APIClient
	for rows.Next() {
		var c APIClient
		if err := rows.Scan(c.scanTargets()...); err != nil {
			return nil, fmt.Errorf("ListClients: %w", err)
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

// GetClient returns a client by ID, or nil if not found.
func (s *Store) GetClient(ctx context.Context, id string) (*APIClient, error) {
	var c APIClient
	err := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM api_clients WHERE id = $1`, id,
	).Scan(c.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetClient: %w", err)
	}
	return &c, nil
}

// RevokeClient marks a client's key as revoked. Revoked keys fail auth
// once cached entries expire.
func (s *Store) RevokeClient(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_clients SET revoked = true, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("RevokeClient: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrClientNotFound
	}
	return nil
}

// RotateAPIKey generates a new API key for a client.
// Returns the updated client and the plaintext key (shown once).
func (s *Store) RotateAPIKey(ctx context.Context, id string) (*APIClient, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	var c APIClient
	err = s.db.QueryRowContext(ctx, `
		UPDATE api_clients SET
			api_key_hash   = $2,
			api_key_prefix = $3,
			revoked        = false,
			updated_at     = now()
		WHERE id = $1
		RETURNING `+clientColumns,
		id, keyHash, keyPrefix,
	).Scan(c.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrClientNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	return &c, fullKey, nil
}

// LookupByPrefix finds a client by API key prefix, or nil if none matches.
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*APIClient, error) {
	var c APIClient
	err := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM api_clients WHERE api_key_prefix = $1`, prefix,
	).Scan(c.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &c, nil
}
