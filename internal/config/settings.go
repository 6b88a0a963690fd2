package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the runtime configuration read from the YAML settings file.
// Compile-time constants stay in config.go; everything an operator may
// want to change per deployment lives here.
type Settings struct {
	// Listen is the HTTP listen address for the feed and the API.
	Listen string `yaml:"listen"`

	// Timezone is the IANA zone households are assumed to live in when the
	// household record does not carry its own (e.g. "Europe/Paris").
	Timezone string `yaml:"timezone"`

	// WeekStart is "monday" or "sunday"; it drives the default UI window.
	WeekStart string `yaml:"week_start"`

	// Language selects the locale used for feed descriptions.
	Language string `yaml:"language"`

	// DatabaseDSN is the PostgreSQL connection string.
	DatabaseDSN string `yaml:"database_dsn"`

	// JWTSecret verifies operator bearer tokens on /api routes.
	JWTSecret string `yaml:"jwt_secret"`

	// RefreshCron is the cron spec used to re-render cached feeds.
	RefreshCron string `yaml:"refresh"`

	// FeedCacheSize bounds the number of rendered feeds kept in memory.
	FeedCacheSize int `yaml:"feed_cache_size"`
}

// DefaultSettings returns an in-memory default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Listen:        DefaultListen,
		Timezone:      DefaultTimezone,
		WeekStart:     DefaultWeekStart,
		Language:      DefaultLanguage,
		DatabaseDSN:   DefaultDatabaseDSN,
		RefreshCron:   DefaultRefreshCron,
		FeedCacheSize: DefaultFeedCacheSize,
	}
}

// Normalize fills in missing or invalid values with defaults so that
// partially-filled files still behave correctly.
func (s *Settings) Normalize() {
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	switch s.WeekStart {
	case WeekStartMonday, WeekStartSunday:
	default:
		s.WeekStart = DefaultWeekStart
	}
	if !isSupportedLanguage(s.Language) {
		s.Language = DefaultLanguage
	}
	if s.DatabaseDSN == "" {
		s.DatabaseDSN = DefaultDatabaseDSN
	}
	if s.RefreshCron == "" {
		s.RefreshCron = DefaultRefreshCron
	}
	if s.FeedCacheSize <= 0 {
		s.FeedCacheSize = DefaultFeedCacheSize
	}
}

// ApplyEnv overrides secrets and the listen address from the environment.
func (s *Settings) ApplyEnv() {
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		s.DatabaseDSN = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		s.JWTSecret = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		s.Listen = v
	}
}

// Location resolves the configured timezone.
func (s *Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", ErrTimezone, s.Timezone, err)
	}
	return loc, nil
}

// WeekStartDay maps WeekStart to a time.Weekday.
func (s *Settings) WeekStartDay() time.Weekday {
	if s.WeekStart == WeekStartSunday {
		return time.Sunday
	}
	return time.Monday
}

// Load reads the settings file at path.
//
// On first run the file does not exist yet: defaults are written with 0600
// permissions and returned.
func Load(path string) (*Settings, error) {
	if path == "" {
		return nil, errors.New(ErrConfigPathEmpty)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s := DefaultSettings()
			if err := Save(path, s); err != nil {
				return s, err
			}
			slog.Info(MsgSettingsCreated, LogKeyComponent, CompConfig, LogKeyPath, path)
			return s, nil
		}
		return nil, fmt.Errorf("%s: %w", ErrConfigRead, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", ErrConfigParse, err)
	}
	s.Normalize()

	return &s, nil
}

// Save writes settings atomically: temp file in the same directory, chmod
// 0600, then rename over path.
func Save(path string, s *Settings) error {
	if path == "" {
		return errors.New(ErrConfigPathEmpty)
	}
	if s == nil {
		return errors.New(ErrConfigNil)
	}

	s.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPermUserRWX); err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}

	tmp, err := os.CreateTemp(dir, ".famcal-settings-*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	if err := os.Chmod(tmpName, FilePermUserRW); err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	return nil
}

func isSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
