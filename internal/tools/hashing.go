package tools

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"strings"

	"github.com/google/uuid"

	"github.com/triage-ai/toolbox/internal/registry"
)

type hmacArgs struct {
	Text string `json:"text"`
	Key  string `json:"key"`
}

type uuidArgs struct {
	Version   json.Number `json:"version"`
	Name      string      `json:"name"`
	Namespace string      `json:"namespace"`
}

func (a *uuidArgs) Defaults() { a.Namespace = "dns" }

var uuidNamespaces = map[string]uuid.UUID{
	"dns":  uuid.NameSpaceDNS,
	"url":  uuid.NameSpaceURL,
	"oid":  uuid.NameSpaceOID,
	"x500": uuid.NameSpaceX500,
}

// Hashing returns the hashing tool group.
func Hashing() []registry.Tool {
	return []registry.Tool{
		digestTool("md5_hash", "MD5", md5.New),
		digestTool("sha1_hash", "SHA1", sha1.New),
		digestTool("sha256_hash", "SHA256", sha256.New),
		digestTool("sha512_hash", "SHA512", sha512.New),
		{
			Name:        "hmac_sha256",
			Description: "Generate an HMAC-SHA256 signature of text with a secret key",
			Parameters: registry.Params(
				textParam("Text to sign"),
				registry.Param{Name: "key", Type: "string", Description: "Secret key", Required: true},
			),
			Handler: registry.Typed(func(_ context.Context, a hmacArgs) (registry.Result, error) {
				mac := hmac.New(sha256.New, []byte(a.Key))
				mac.Write([]byte(a.Text))
				return registry.Result{"hash": hex.EncodeToString(mac.Sum(nil))}, nil
			}),
		},
		{
			Name:        "generate_uuid",
			Description: "Generate a UUID (v1, v4, v5 or v7)",
			Parameters: registry.Params(
				registry.Param{Name: "version", Type: "integer", Description: "UUID version: 1, 4, 5 or 7 (default: 4). Other values produce a v4 UUID"},
				registry.Param{Name: "name", Type: "string", Description: "Name to hash (required for v5)"},
				registry.Param{
					Name:        "namespace",
					Type:        "string",
					Description: "Namespace for v5 (default: dns)",
					Enum:        []any{"dns", "url", "oid", "x500"},
				},
			),
			Handler: registry.Typed(generateUUID),
		},
	}
}

func digestTool(name, algo string, newHash func() hash.Hash) registry.Tool {
	return registry.Tool{
		Name:        name,
		Description: fmt.Sprintf("Generate the %s hash of text", algo),
		Parameters:  registry.Params(textParam("Text to hash")),
		Handler: registry.Typed(func(_ context.Context, a textArgs) (registry.Result, error) {
			h := newHash()
			h.Write([]byte(a.Text))
			return registry.Result{"hash": hex.EncodeToString(h.Sum(nil))}, nil
		}),
	}
}

func generateUUID(_ context.Context, a uuidArgs) (registry.Result, error) {
	var (
		id  uuid.UUID
		err error
	)

	// Versions that do not fit an int fall through to v4 like any other
	// unsupported value.
	version, _ := intArg(a.Version, 4)

	switch version {
	case 1:
		id, err = uuid.NewUUID()
	case 5:
		if a.Name == "" {
			return registry.Result{"error": "UUID v5 requires 'name' parameter"}, nil
		}
		ns, ok := uuidNamespaces[strings.ToLower(a.Namespace)]
		if !ok {
			return registry.Result{"error": fmt.Sprintf("Unknown namespace '%s'", a.Namespace)}, nil
		}
		id = uuid.NewSHA1(ns, []byte(a.Name))
	case 7:
		id, err = uuid.NewV7()
	default:
		id, err = uuid.NewRandom()
	}
	if err != nil {
		return nil, fmt.Errorf("generateUUID: %w", err)
	}

	return registry.Result{"uuid": id.String(), "version": int(id.Version())}, nil
}
