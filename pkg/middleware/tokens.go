package middleware

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/orgscope/pkg/observability"
)

// tokenFile is the on-disk YAML shape:
//
//	tokens:
//	  <bearer token>: <actor uuid>
type tokenFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// TokenStore maps bearer service tokens to actor ids. The backing YAML file
// is hot-reloaded on change, so rotating a token never needs a restart.
type TokenStore struct {
	path   string
	logger *observability.Logger

	mu     sync.RWMutex
	tokens map[string]uuid.UUID

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewTokenStore loads the token file and starts watching it for changes.
func NewTokenStore(path string, logger *observability.Logger) (*TokenStore, error) {
	s := &TokenStore{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := s.reload(); err != nil {
		return nil, fmt.Errorf("failed to load token file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory, not the file: editors and configmap updates
	// replace the file by rename, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch token file directory: %w", err)
	}
	s.watcher = watcher

	go s.watch()

	return s, nil
}

// Resolve returns the actor id for a bearer token.
func (s *TokenStore) Resolve(token string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actorID, ok := s.tokens[token]
	return actorID, ok
}

// Count returns the number of loaded tokens.
func (s *TokenStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Close stops the file watcher.
func (s *TokenStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *TokenStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file tokenFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("invalid token file YAML: %w", err)
	}

	tokens := make(map[string]uuid.UUID, len(file.Tokens))
	for token, actor := range file.Tokens {
		actorID, err := uuid.Parse(actor)
		if err != nil {
			return fmt.Errorf("invalid actor id %q in token file: %w", actor, err)
		}
		if token == "" {
			return fmt.Errorf("empty token in token file")
		}
		tokens[token] = actorID
	}

	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()

	return nil
}

func (s *TokenStore) watch() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				// Keep serving the last good token set on a bad write.
				if s.logger != nil {
					s.logger.WithError(err).Error("failed to reload token file")
				}
				continue
			}
			if s.logger != nil {
				s.logger.WithField("tokens", s.Count()).Info("token file reloaded")
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if s.logger != nil {
				s.logger.WithError(err).Error("token file watcher error")
			}
		}
	}
}
