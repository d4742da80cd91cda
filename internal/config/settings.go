package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/cafebot/internal/ratelimit"
)

// BotSettings are the pacing knobs an operator may change while the bot runs.
type BotSettings struct {
	MinDelaySeconds    int `yaml:"min_delay_seconds"`
	CommentsPerHourMin int `yaml:"comments_per_hour_min"`
	CommentsPerHourMax int `yaml:"comments_per_hour_max"`
	RestMinutes        int `yaml:"rest_minutes"`
}

// DefaultBotSettings returns the built-in pacing.
func DefaultBotSettings() BotSettings {
	return BotSettings{
		MinDelaySeconds:    40,
		CommentsPerHourMin: 4,
		CommentsPerHourMax: 8,
		RestMinutes:        1,
	}
}

// Envelope converts the settings into a rate gate envelope.
func (s BotSettings) Envelope() ratelimit.Envelope {
	return ratelimit.Envelope{
		MinDelaySeconds:    s.MinDelaySeconds,
		CommentsPerHourMin: s.CommentsPerHourMin,
		CommentsPerHourMax: s.CommentsPerHourMax,
	}
}

// SettingsFile serves BotSettings from a YAML file, re-reading it whenever
// its modification time changes.
type SettingsFile struct {
	path string
	log  *logrus.Entry

	mu      sync.Mutex
	current BotSettings
	modTime time.Time
}

// NewSettingsFile returns a reader for path. The file need not exist.
func NewSettingsFile(path string, log *logrus.Entry) *SettingsFile {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SettingsFile{path: path, log: log, current: DefaultBotSettings()}
}

// Path returns the settings file location.
func (f *SettingsFile) Path() string {
	return f.path
}

// Get returns the current settings. A missing file yields the defaults; an
// unparsable file keeps the last good value.
func (f *SettingsFile) Get() BotSettings {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		if !f.modTime.IsZero() {
			f.log.Info("settings file removed, using defaults")
		}
		f.current = DefaultBotSettings()
		f.modTime = time.Time{}
		return f.current
	}
	if err != nil {
		f.log.WithError(err).Warn("cannot stat settings file, keeping last settings")
		return f.current
	}
	if info.ModTime().Equal(f.modTime) {
		return f.current
	}

	s, err := readSettings(f.path)
	f.modTime = info.ModTime()
	if err != nil {
		f.log.WithError(err).Warn("invalid settings file, keeping last settings")
		return f.current
	}
	f.current = s
	f.log.WithFields(logrus.Fields{
		"min_delay": s.MinDelaySeconds,
		"cph_min":   s.CommentsPerHourMin,
		"cph_max":   s.CommentsPerHourMax,
		"rest":      s.RestMinutes,
	}).Info("settings reloaded")
	return f.current
}

// Save writes s to the settings file. The new content is written to a
// temporary file in the same directory and renamed over the old one, so a
// concurrent reader sees either the old or the new settings.
func (f *SettingsFile) Save(s BotSettings) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}
	return nil
}

func readSettings(path string) (BotSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BotSettings{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return BotSettings{}, errors.New("settings file is empty")
	}
	s := DefaultBotSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return BotSettings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return s, nil
}
