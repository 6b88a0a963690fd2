package feed

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Labels translates the fixed words used in event descriptions.
type Labels struct {
	localizer *i18n.Localizer
	Languages []string
}

// NewLabels loads every embedded locale and selects lang, falling back to
// English for missing keys.
func NewLabels(lang string) (*Labels, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrLocalesAccess, err)
	}

	var detected []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "active.") || !strings.HasSuffix(name, ".json") {
			slog.Debug(config.MsgLocaleSkip,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		langCode := strings.TrimSuffix(strings.TrimPrefix(name, "active."), ".json")
		if langCode == "" {
			slog.Warn(config.MsgLocaleBadName,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+name); err != nil {
			return nil, fmt.Errorf("%s %s: %w", config.ErrLocaleLoad, name, err)
		}
		detected = append(detected, langCode)
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, langCode,
		)
	}

	if lang == "" {
		lang = config.DefaultLanguage
	}
	return &Labels{
		localizer: i18n.NewLocalizer(bundle, lang, config.DefaultLanguage),
		Languages: detected,
	}, nil
}

// Text translates key, returning the key itself when no translation exists.
func (l *Labels) Text(key string) string {
	if l == nil || l.localizer == nil {
		return key
	}
	msg, err := l.localizer.Localize(&i18n.LocalizeConfig{MessageID: key})
	if err != nil {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, key,
			config.LogKeyError, err,
		)
		return key
	}
	return msg
}

// Method translates a transportation method.
func (l *Labels) Method(m calendar.Method) string {
	switch m {
	case calendar.MethodCar:
		return l.Text(config.TKeyMethodCar)
	case calendar.MethodBus:
		return l.Text(config.TKeyMethodBus)
	case calendar.MethodWalk:
		return l.Text(config.TKeyMethodWalk)
	case calendar.MethodBike:
		return l.Text(config.TKeyMethodBike)
	}
	return string(m)
}
