package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/triage-ai/toolbox/internal/store"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("authentication backend unavailable")
)

// Client identifies the caller an API key belongs to.
type Client struct {
	ID   string
	Name string
}

// Authenticator validates a bearer API key and returns its client.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*Client, error)
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>"
// header value.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAPIKey
	}
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(header) <= 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", ErrMissingAPIKey
	}
	token := strings.TrimSpace(header[7:])
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

// FromMetadata extracts the bearer API key from incoming gRPC metadata.
func FromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrMissingAPIKey
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrMissingAPIKey
	}
	return ExtractBearer(values[0])
}

// checkFormat rejects keys that were not issued by this service.
func checkFormat(apiKey string) error {
	if len(apiKey) < store.PrefixLength || !strings.HasPrefix(apiKey, store.KeyPrefix) {
		return ErrInvalidAPIKey
	}
	return nil
}

type contextKey int

const clientCtxKey contextKey = iota

// WithClient returns a context carrying the authenticated client.
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientCtxKey, c)
}

// ClientFromContext returns the authenticated client, or nil.
func ClientFromContext(ctx context.Context) *Client {
	c, _ := ctx.Value(clientCtxKey).(*Client)
	return c
}

// StaticAuthenticator accepts a fixed list of keys from configuration.
// No database lookup; keys are compared in constant time.
type StaticAuthenticator struct {
	keys [][]byte
}

// NewStaticAuthenticator creates an authenticator over the given keys.
// Blank entries are ignored.
func NewStaticAuthenticator(keys []string) *StaticAuthenticator {
	a := &StaticAuthenticator{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, apiKey string) (*Client, error) {
	if err := checkFormat(apiKey); err != nil {
		return nil, err
	}
	candidate := []byte(apiKey)
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(k, candidate) == 1 {
			sum := sha256.Sum256(k)
			return &Client{
				ID:   "static-" + hex.EncodeToString(sum[:4]),
				Name: apiKey[:store.PrefixLength],
			}, nil
		}
	}
	return nil, ErrInvalidAPIKey
}
