package store

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	keyCost = bcrypt.MinCost
	t.Cleanup(func() { keyCost = bcrypt.DefaultCost })

	key, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !strings.HasPrefix(key, KeyPrefix) {
		t.Errorf("key %q missing %s prefix", key, KeyPrefix)
	}
	if len(key) != len(KeyPrefix)+64 {
		t.Errorf("expected key length %d, got %d", len(KeyPrefix)+64, len(key))
	}
	if len(prefix) != PrefixLength || !strings.HasPrefix(key, prefix) {
		t.Errorf("prefix %q does not match key %q", prefix, key)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	keyCost = bcrypt.MinCost
	t.Cleanup(func() { keyCost = bcrypt.DefaultCost })

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		key, _, _, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey failed: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = true
	}
}

func TestClientColumnsMatchScanTargets(t *testing.T) {
	var c APIClient
	if got, want := len(c.scanTargets()), strings.Count(clientColumns, ",")+1; got != want {
		t.Errorf("scan targets (%d) do not match columns (%d)", got, want)
	}
}
