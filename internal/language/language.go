// Package language normalizes lyric language codes to the tags the synthesis
// engines understand. Any BCP 47 input ("it", "ita", "it-IT", "italian") maps
// onto one supported base language.
package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Supported lists the languages the synthesis engines ship voice models for,
// in matcher priority order. The first entry is the fallback.
var Supported = []language.Tag{
	language.Italian,
	language.English,
	language.Spanish,
	language.French,
	language.German,
	language.Japanese,
}

var matcher = language.NewMatcher(Supported)

var wordForms = map[string]string{
	"italian":  "it",
	"english":  "en",
	"spanish":  "es",
	"french":   "fr",
	"german":   "de",
	"japanese": "ja",
}

// Normalize maps arbitrary language input to a supported ISO 639-1 code.
// Unrecognized or empty input falls back to the first supported language.
func Normalize(input string) string {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if mapped, ok := wordForms[trimmed]; ok {
		trimmed = mapped
	}
	if trimmed == "" {
		base, _ := Supported[0].Base()
		return base.String()
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		base, _ := Supported[0].Base()
		return base.String()
	}
	matched, _, _ := matcher.Match(tag)
	base, _ := matched.Base()
	return base.String()
}

// IsSupported reports whether the input resolves to a supported language
// without falling back.
func IsSupported(input string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if mapped, ok := wordForms[trimmed]; ok {
		trimmed = mapped
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return false
	}
	_, _, confidence := matcher.Match(tag)
	return confidence >= language.High
}

// DisplayName returns the English name of a normalized code, for logs and
// CLI output.
func DisplayName(code string) string {
	tag, err := language.Parse(Normalize(code))
	if err != nil {
		return strings.ToUpper(code)
	}
	return display.English.Tags().Name(tag)
}
