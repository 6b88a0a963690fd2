package feed_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"github.com/tartampluch/famcal/internal/feed"
)

// TestLocales_Integrity ensures every shipped locale defines the same keys.
func TestLocales_Integrity(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("locales", "active.*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	keys := func(path string) map[string]bool {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var m map[string]string
		require.NoError(t, json.Unmarshal(raw, &m), path)
		out := make(map[string]bool, len(m))
		for k, v := range m {
			assert.NotEmpty(t, v, "%s: %s is empty", path, k)
			out[k] = true
		}
		return out
	}

	reference := keys(filepath.Join("locales", "active.en.json"))
	for _, f := range files {
		assert.Equal(t, reference, keys(f), "key set mismatch in %s", f)
	}

	for _, k := range []string{
		config.TKeyParticipants, config.TKeyDropOff, config.TKeyPickUp,
		config.TKeyMethodCar, config.TKeyMethodBus, config.TKeyMethodWalk, config.TKeyMethodBike,
	} {
		assert.True(t, reference[k], "missing key %s", k)
	}
}

func TestNewLabels(t *testing.T) {
	fr, err := feed.NewLabels("fr")
	require.NoError(t, err)
	assert.ElementsMatch(t, config.SupportedLanguages, fr.Languages)
	assert.Equal(t, "vélo", fr.Method(calendar.MethodBike))

	en, err := feed.NewLabels("")
	require.NoError(t, err)
	assert.Equal(t, "bike", en.Method(calendar.MethodBike))

	// Unknown languages fall back to English.
	de, err := feed.NewLabels("de")
	require.NoError(t, err)
	assert.Equal(t, "Pick-up", de.Text(config.TKeyPickUp))

	assert.Equal(t, "no_such_key", en.Text("no_such_key"))
}

func TestLabels_NilSafe(t *testing.T) {
	var l *feed.Labels
	assert.Equal(t, config.TKeyDropOff, l.Text(config.TKeyDropOff))
}
