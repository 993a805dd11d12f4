// Package settings owns the persisted application settings. The file on
// disk is the source of truth; Store.cur is a cache that Refresh can
// overwrite at any time. All mutation goes through the typed setters,
// which persist atomically before updating the cache.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// APIKeyGemini is the post-process key used for transcription cleanup
// and history translation.
const APIKeyGemini = "gemini_transcription"

type RetentionPeriod string

const (
	RetentionNever         RetentionPeriod = "never"
	RetentionPreserveLimit RetentionPeriod = "preserve_limit"
	RetentionDays3         RetentionPeriod = "days3"
	RetentionWeeks2        RetentionPeriod = "weeks2"
	RetentionMonths3       RetentionPeriod = "months3"
)

func ParseRetention(s string) (RetentionPeriod, error) {
	switch RetentionPeriod(s) {
	case RetentionNever, RetentionPreserveLimit, RetentionDays3, RetentionWeeks2, RetentionMonths3:
		return RetentionPeriod(s), nil
	}
	return "", fmt.Errorf("invalid retention period: %s", s)
}

// Cutoff returns the oldest timestamp an unsaved recording may keep.
// ok is false when the period imposes no age limit.
func (p RetentionPeriod) Cutoff(now time.Time) (cutoff time.Time, ok bool) {
	switch p {
	case RetentionDays3:
		return now.AddDate(0, 0, -3), true
	case RetentionWeeks2:
		return now.AddDate(0, 0, -14), true
	case RetentionMonths3:
		return now.AddDate(0, -3, 0), true
	}
	return time.Time{}, false
}

type Settings struct {
	PostProcessAPIKeys       map[string]string `json:"post_process_api_keys"`
	HistoryLimit             int               `json:"history_limit"`
	RecordingRetentionPeriod RetentionPeriod   `json:"recording_retention_period"`
	TranslationLanguage      string            `json:"translation_language"`
}

func defaults() Settings {
	return Settings{
		PostProcessAPIKeys:       map[string]string{},
		HistoryLimit:             100,
		RecordingRetentionPeriod: RetentionPreserveLimit,
		TranslationLanguage:      "en",
	}
}

func (s Settings) clone() Settings {
	keys := make(map[string]string, len(s.PostProcessAPIKeys))
	for k, v := range s.PostProcessAPIKeys {
		keys[k] = v
	}
	s.PostProcessAPIKeys = keys
	return s
}

type Store struct {
	mu   sync.RWMutex
	path string
	cur  Settings
}

// Load opens the settings file, creating it with defaults when missing.
func Load(path string) (*Store, error) {
	s := &Store{path: path, cur: defaults()}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := s.decode(data); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) decode(data []byte) error {
	loaded := defaults()
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	if loaded.PostProcessAPIKeys == nil {
		loaded.PostProcessAPIKeys = map[string]string{}
	}
	s.cur = loaded
	return nil
}

func (s *Store) Path() string { return s.path }

// Current returns a snapshot copy. Holding it does not track later changes.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// APIKey returns the post-process key by name, "" when unset.
func (s *Store) APIKey(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.PostProcessAPIKeys[name]
}

// RefreshValue re-reads the file and returns the confirmed persisted
// value of one post-process API key. Controllers use this after a write
// instead of assuming the write landed what they sent.
func (s *Store) RefreshValue(key string) (string, error) {
	snap, err := s.Refresh()
	if err != nil {
		return "", err
	}
	return snap.PostProcessAPIKeys[key], nil
}

// Refresh re-reads the file and returns the fresh snapshot.
func (s *Store) Refresh() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := s.decode(data); err != nil {
		return Settings{}, err
	}
	return s.cur.clone(), nil
}

func (s *Store) SetAPIKey(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.cur.PostProcessAPIKeys[name]
	s.cur.PostProcessAPIKeys[name] = value
	if err := s.persistLocked(); err != nil {
		if had {
			s.cur.PostProcessAPIKeys[name] = prev
		} else {
			delete(s.cur.PostProcessAPIKeys, name)
		}
		return err
	}
	return nil
}

func (s *Store) SetHistoryLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("invalid history limit: %d", limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cur.HistoryLimit
	s.cur.HistoryLimit = limit
	if err := s.persistLocked(); err != nil {
		s.cur.HistoryLimit = prev
		return err
	}
	return nil
}

func (s *Store) SetRetention(p RetentionPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cur.RecordingRetentionPeriod
	s.cur.RecordingRetentionPeriod = p
	if err := s.persistLocked(); err != nil {
		s.cur.RecordingRetentionPeriod = prev
		return err
	}
	return nil
}

func (s *Store) SetTranslationLanguage(lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cur.TranslationLanguage
	s.cur.TranslationLanguage = lang
	if err := s.persistLocked(); err != nil {
		s.cur.TranslationLanguage = prev
		return err
	}
	return nil
}

// persistLocked writes the file atomically: temp file in the same
// directory, then rename over the target.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
