// Package storage persists user options in a YAML file.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	KeySpeechService         = "speechService"
	KeyGoogleSpeechAPIKey    = "googleSpeechApiKey"
	KeyTryEnglishSpeechModel = "tryEnglishSpeechModel"
	KeyLoadEnglishChallenge  = "loadEnglishChallenge"
	KeySimulateUserInput     = "simulateUserInput"
	KeyUseCount              = "useCount"
	KeyStorageVersion        = "storageVersion"

	Version = 1
)

var defaults = map[string]any{
	KeySpeechService:         "googleSpeechApi",
	KeyGoogleSpeechAPIKey:    "",
	KeyTryEnglishSpeechModel: true,
	KeyLoadEnglishChallenge:  true,
	KeySimulateUserInput:     false,
	KeyUseCount:              0,
}

// Store is a viper instance over one YAML file. viper is not safe for
// concurrent use, so every access goes through mu.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	path string
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	s := &Store{v: v, path: path}
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	log.Info().Str("module", "storage").Str("path", path).Msg("settings opened")
	return s, nil
}

func (s *Store) Bool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(key)
}

func (s *Store) String(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetString(key)
}

func (s *Store) Int(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetInt(key)
}

func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeAndSave(map[string]any{key: value})
}

// Ready reports whether the file carries the current storage version.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetInt(KeyStorageVersion) == Version
}

// Migrate rewrites values left behind by older releases.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v.GetString(KeySpeechService) != "googleSpeechApiDemo" {
		return nil
	}
	log.Info().Str("module", "storage").Msg("migrating retired speech service")
	return s.mergeAndSave(map[string]any{KeySpeechService: "witSpeechApiDemo"})
}

// Init fills missing options with defaults and stamps the storage version.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	missing := map[string]any{KeyStorageVersion: Version}
	for k, v := range defaults {
		if !s.v.IsSet(k) {
			missing[k] = v
		}
	}
	return s.mergeAndSave(missing)
}

func (s *Store) mergeAndSave(values map[string]any) error {
	if err := s.v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("merge settings: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (s *Store) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.ReadInConfig()
}

// Watch reloads the file whenever it changes on disk and then calls onChange.
// It blocks until ctx is done. The directory is watched rather than the file
// because editors tend to replace files on save.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.reload(); err != nil {
				log.Warn().Err(err).Str("module", "storage").Msg("settings reload failed")
				continue
			}
			log.Debug().Str("module", "storage").Str("op", ev.Op.String()).Msg("settings changed on disk")
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Str("module", "storage").Msg("watcher error")
		}
	}
}
