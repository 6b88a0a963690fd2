package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/famcal/internal/config"
)

// TestConstants_Integrity ensures critical constants are not empty or malformed.
func TestConstants_Integrity(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"AppName", config.AppName},
		{"AppID", config.AppID},
		{"Version", config.Version},
		{"UserAgent", config.UserAgent},
		{"ICalVersion", config.ICalVersion},
		{"ICalProdid", config.ICalProdid},
		{"ICalDomain", config.ICalDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, tt.value, "Critical constant %s should not be empty", tt.name)
		})
	}
}

// TestScoringWeights_SumTo100 keeps the reconciliation score bounded to 0..100.
func TestScoringWeights_SumTo100(t *testing.T) {
	assert.Equal(t, 100.0, config.WeightTitle+config.WeightDate+config.WeightParticipants)
	assert.Equal(t, config.WeightDate, config.DateScoreSameDay, "Same-day proximity must earn the full date weight")
	assert.Greater(t, config.DateScoreOneDay, config.DateScoreOneWeek)
}

func TestUserAgent_Format(t *testing.T) {
	assert.True(t, strings.HasPrefix(config.UserAgent, "Famcal/"), "UserAgent must start with AppName/")
}

func TestTimeoutsAndLimits(t *testing.T) {
	t.Parallel()

	assert.Greater(t, config.HTTPTimeout, 0*time.Second)
	assert.LessOrEqual(t, config.HTTPTimeout, 2*time.Minute)
	assert.Greater(t, config.ShutdownTimeout, 0*time.Second)
	assert.Greater(t, config.MaxHTTPResponseSize, 0)
}

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", config.ConfigFileName)

	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultListen, s.Listen)
	assert.Equal(t, config.DefaultFeedCacheSize, s.FeedCacheSize)

	info, err := os.Stat(path)
	require.NoError(t, err, "Defaults must be persisted on first run")
	assert.Equal(t, config.FilePermUserRW, info.Mode().Perm())
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	content := "timezone: Europe/Paris\nweek_start: friday\nlanguage: xx\njwt_secret: s3cret\n"
	require.NoError(t, os.WriteFile(path, []byte(content), config.FilePermUserRW))

	s, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Paris", s.Timezone)
	assert.Equal(t, config.WeekStartMonday, s.WeekStart, "Unknown week start falls back to monday")
	assert.Equal(t, config.DefaultLanguage, s.Language)
	assert.Equal(t, "s3cret", s.JWTSecret)
	assert.Equal(t, config.DefaultRefreshCron, s.RefreshCron)
	assert.Equal(t, time.Monday, s.WeekStartDay())

	loc, err := s.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := config.Load("")
	assert.EqualError(t, err, config.ErrConfigPathEmpty)
}

func TestSaveLoad_PreservesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	s := config.DefaultSettings()
	s.WeekStart = config.WeekStartSunday
	s.Language = "fr"

	require.NoError(t, config.Save(path, s))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, loaded.WeekStartDay())
	assert.Equal(t, "fr", loaded.Language)
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv(config.EnvJWTSecret, "from-env")
	t.Setenv(config.EnvListen, "0.0.0.0:9000")

	s := config.DefaultSettings()
	s.ApplyEnv()

	assert.Equal(t, "from-env", s.JWTSecret)
	assert.Equal(t, "0.0.0.0:9000", s.Listen)
	assert.Equal(t, config.DefaultDatabaseDSN, s.DatabaseDSN, "Unset variables keep the file value")
}

func TestLocation_Unknown(t *testing.T) {
	s := config.DefaultSettings()
	s.Timezone = "Mars/Olympus_Mons"
	_, err := s.Location()
	assert.ErrorContains(t, err, config.ErrTimezone)
}
