package middleware

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenStoreLoad(t *testing.T) {
	actor1 := uuid.New()
	actor2 := uuid.New()
	store := newTestTokenStore(t, map[string]uuid.UUID{
		"token-a": actor1,
		"token-b": actor2,
	})

	if store.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", store.Count())
	}

	got, ok := store.Resolve("token-a")
	if !ok || got != actor1 {
		t.Errorf("Resolve(token-a) = %v, %v; want %v, true", got, ok, actor1)
	}

	if _, ok := store.Resolve("missing"); ok {
		t.Error("Resolve(missing) = ok, want not ok")
	}
}

func TestTokenStoreMissingFile(t *testing.T) {
	if _, err := NewTokenStore(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Error("expected error for missing token file")
	}
}

func TestTokenStoreInvalidActorID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	if err := os.WriteFile(path, []byte("tokens:\n  tok: not-a-uuid\n"), 0o600); err != nil {
		t.Fatalf("writing token file: %v", err)
	}

	if _, err := NewTokenStore(path, nil); err == nil {
		t.Error("expected error for invalid actor id")
	}
}

func TestTokenStoreHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.yaml")
	actor1 := uuid.New()
	writeTokenFile(t, path, map[string]uuid.UUID{"old-token": actor1})

	store, err := NewTokenStore(path, nil)
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	defer store.Close()

	actor2 := uuid.New()
	writeTokenFile(t, path, map[string]uuid.UUID{"new-token": actor2})

	// The watcher delivers events asynchronously.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if got, ok := store.Resolve("new-token"); ok && got == actor2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("token file was not reloaded within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := store.Resolve("old-token"); ok {
		t.Error("rotated-out token still resolves")
	}
}

func TestTokenStoreKeepsLastGoodSetOnBadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.yaml")
	actor := uuid.New()
	writeTokenFile(t, path, map[string]uuid.UUID{"good-token": actor})

	store, err := NewTokenStore(path, nil)
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	defer store.Close()

	if err := os.WriteFile(path, []byte("tokens: [broken"), 0o600); err != nil {
		t.Fatalf("writing token file: %v", err)
	}

	// Give the watcher a moment to process the bad write, then confirm the
	// previous token set survived.
	time.Sleep(200 * time.Millisecond)
	if _, ok := store.Resolve("good-token"); !ok {
		t.Error("good token lost after bad file write")
	}
}
