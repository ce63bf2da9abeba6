// Package i18n holds the translated API messages. Catalogs are flat JSON
// maps from message key to text; "{name}" placeholders are filled from
// the params passed to Translate.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/language"
)

const DefaultLocale = "en"

//go:embed locales/*.json
var localeFS embed.FS

var (
	catalogs  = mustLoad("en", "es")
	matcher   = language.NewMatcher([]language.Tag{language.English, language.Spanish})
	supported = []string{"en", "es"}
)

func mustLoad(locales ...string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(locales))
	for _, loc := range locales {
		raw, err := localeFS.ReadFile(path.Join("locales", loc+".json"))
		if err != nil {
			panic(fmt.Sprintf("missing locale %s: %v", loc, err))
		}
		messages := make(map[string]string)
		if err := json.Unmarshal(raw, &messages); err != nil {
			panic(fmt.Sprintf("invalid locale %s: %v", loc, err))
		}
		out[loc] = messages
	}
	return out
}

// Translate returns the message for key in locale. Unknown locales fall back
// to English, and unknown keys to the key itself.
func Translate(locale, key string, params map[string]string) string {
	messages, ok := catalogs[locale]
	if !ok {
		messages = catalogs[DefaultLocale]
	}
	text, ok := messages[key]
	if !ok {
		text, ok = catalogs[DefaultLocale][key]
		if !ok {
			return key
		}
	}
	for name, value := range params {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// Negotiate picks the supported locale that best matches an Accept-Language
// header value.
func Negotiate(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLocale
	}
	return supported[idx]
}
