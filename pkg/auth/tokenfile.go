package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// tokenFileDoc is the on-disk YAML shape shared with the API server:
//
//	tokens:
//	  <bearer token>: <actor uuid>
type tokenFileDoc struct {
	Tokens map[string]string `yaml:"tokens"`
}

// TokenEntry describes one token without exposing its plaintext.
type TokenEntry struct {
	Prefix  string
	ActorID uuid.UUID
}

// TokenFile edits the token file the API server authenticates against. The
// server watches the file's directory for renames, so Save replaces the file
// atomically and a running server picks the change up without a restart.
type TokenFile struct {
	path      string
	generator *TokenGenerator
	tokens    map[string]uuid.UUID
}

// LoadTokenFile reads the token file at path. A missing file yields an empty
// set so the first Issue can bootstrap it.
func LoadTokenFile(path string) (*TokenFile, error) {
	f := &TokenFile{
		path:      path,
		generator: NewTokenGenerator(),
		tokens:    make(map[string]uuid.UUID),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}

	var doc tokenFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid token file YAML: %w", err)
	}
	for token, actor := range doc.Tokens {
		if token == "" {
			return nil, fmt.Errorf("empty token in token file")
		}
		actorID, err := uuid.Parse(actor)
		if err != nil {
			return nil, fmt.Errorf("invalid actor id %q in token file: %w", actor, err)
		}
		f.tokens[token] = actorID
	}

	return f, nil
}

// Issue generates a token for actorID and adds it to the set. The plaintext
// is returned exactly once; it is not recoverable after Save.
func (f *TokenFile) Issue(actorID uuid.UUID) (string, error) {
	token, _, _, err := f.generator.GenerateToken()
	if err != nil {
		return "", err
	}
	f.tokens[token] = actorID
	return token, nil
}

// Revoke removes every token whose display prefix matches. Returns the number
// of tokens removed.
func (f *TokenFile) Revoke(prefix string) int {
	removed := 0
	for token := range f.tokens {
		if f.displayPrefix(token) == prefix {
			delete(f.tokens, token)
			removed++
		}
	}
	return removed
}

// Entries lists the tokens by display prefix, sorted for stable output.
func (f *TokenFile) Entries() []TokenEntry {
	entries := make([]TokenEntry, 0, len(f.tokens))
	for token, actorID := range f.tokens {
		entries = append(entries, TokenEntry{
			Prefix:  f.displayPrefix(token),
			ActorID: actorID,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Prefix != entries[j].Prefix {
			return entries[i].Prefix < entries[j].Prefix
		}
		return entries[i].ActorID.String() < entries[j].ActorID.String()
	})
	return entries
}

// Count returns the number of tokens in the set.
func (f *TokenFile) Count() int {
	return len(f.tokens)
}

// Save writes the set back to disk via a temp file and rename so the server's
// watcher never observes a partial write. The file is created 0600 because it
// holds plaintext bearer tokens.
func (f *TokenFile) Save() error {
	doc := tokenFileDoc{Tokens: make(map[string]string, len(f.tokens))}
	for token, actorID := range f.tokens {
		doc.Tokens[token] = actorID.String()
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, f.path)
}

// displayPrefix renders a token for listings. Hand-edited tokens that do not
// carry the orgscope prefix fall back to their first 8 characters.
func (f *TokenFile) displayPrefix(token string) string {
	if p := f.generator.ExtractPrefix(token); p != "" {
		return p
	}
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
