// Package prefs persists user preferences in a JSON file.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"speaking-practice/internal/models"
	"speaking-practice/internal/observability/logging"
)

// Preference keys.
const (
	KeyTestCompleted      = "test_completed"
	KeyTestResult         = "test_result"
	KeyCustomSystemPrompt = "custom_system_prompt"
	KeySettings           = "settings"
)

// Store is an opaque key/value store. Values are JSON documents kept as
// strings. An empty path keeps everything in memory.
type Store struct {
	mu     sync.Mutex
	v      *viper.Viper
	path   string
	logger zerolog.Logger
}

// Open loads the preferences file at path, if it exists.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigType("json")

	s := &Store{v: v, path: path, logger: logging.WithComponent("prefs")}
	if path == "" {
		return s, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read preferences %s: %w", path, err)
			}
		}
		s.logger.Info().Str("path", path).Msg("No preferences file, starting fresh")
	}
	return s, nil
}

// Get returns the raw value stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		return "", false
	}
	return s.v.GetString(key), true
}

// Set stores value under key and writes the file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
	return s.save()
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write preferences %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) getJSON(key string, dst any) bool {
	raw, ok := s.Get(key)
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Ignoring unreadable preference")
		return false
	}
	return true
}

func (s *Store) setJSON(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(key, string(b))
}

// Settings returns the stored settings. Without stored settings the
// recommendation of a completed placement test seeds them, otherwise the
// defaults apply. The custom prompt is kept under its own key.
func (s *Store) Settings() models.Settings {
	settings := models.DefaultSettings()
	if !s.getJSON(KeySettings, &settings) {
		if r, ok := s.TestResult(); ok {
			settings.Difficulty = r.RecommendedDifficulty
			settings.Speed = r.RecommendedSpeed
		}
	}
	if settings.Difficulty < 1 || settings.Difficulty > 3 {
		settings.Difficulty = models.DefaultDifficulty
	}
	if settings.Speed < 1 || settings.Speed > 5 {
		settings.Speed = models.DefaultSpeed
	}
	settings.CustomPrompt = s.CustomPrompt()
	return settings
}

// SaveSettings stores difficulty and speed, and the custom prompt under
// its own key.
func (s *Store) SaveSettings(settings models.Settings) error {
	if err := s.setJSON(KeySettings, struct {
		Difficulty int `json:"difficulty"`
		Speed      int `json:"speed"`
	}{settings.Difficulty, settings.Speed}); err != nil {
		return err
	}
	return s.SetCustomPrompt(settings.CustomPrompt)
}

// CustomPrompt returns the stored custom system prompt, if any.
func (s *Store) CustomPrompt() string {
	var p string
	s.getJSON(KeyCustomSystemPrompt, &p)
	return p
}

// SetCustomPrompt stores the custom system prompt. Empty clears it.
func (s *Store) SetCustomPrompt(prompt string) error {
	return s.setJSON(KeyCustomSystemPrompt, prompt)
}

// TestCompleted reports whether the placement test was taken.
func (s *Store) TestCompleted() bool {
	var done bool
	s.getJSON(KeyTestCompleted, &done)
	return done
}

// TestResult returns the stored placement test result.
func (s *Store) TestResult() (models.TestResult, bool) {
	var r models.TestResult
	ok := s.getJSON(KeyTestResult, &r)
	return r, ok
}

// SaveTestResult stores a placement result and marks the test completed.
func (s *Store) SaveTestResult(r models.TestResult) error {
	if err := s.setJSON(KeyTestResult, r); err != nil {
		return err
	}
	return s.setJSON(KeyTestCompleted, true)
}
