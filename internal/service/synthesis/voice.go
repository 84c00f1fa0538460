package synthesis

import "strings"

// PreferredVoiceNames are known high quality voices, best first.
var PreferredVoiceNames = []string{
	"Microsoft Aria Online (Natural) - English (United States)",
	"Google UK English Female",
	"Microsoft Libby Online (Natural)",
	"Microsoft Jenny Online (Natural)",
	"Samantha",
	"Ava",
	"Karen",
	"Allison",
}

// genderNameHints are name fragments that suggest a voice's gender.
var genderNameHints = map[string][]string{
	"female": {"female", "samantha", "ava"},
	"male":   {"daniel", "alex", "fred"},
}

// SelectVoice picks a voice for locale (e.g. "en-US"). First match wins:
// a preferred named voice in the locale's language, a "natural" voice for
// the locale, a voice of the preferred gender for the locale, any voice in
// the language. Returns nil when none match, meaning the engine default.
func SelectVoice(voices []Voice, locale, gender string) *Voice {
	lang := languageOf(locale)

	for _, name := range PreferredVoiceNames {
		for i := range voices {
			if voices[i].Name == name && hasLanguage(voices[i], lang) {
				return &voices[i]
			}
		}
	}

	for i := range voices {
		if strings.Contains(strings.ToLower(voices[i].Name), "natural") && matchesLocale(voices[i], locale) {
			return &voices[i]
		}
	}

	if gender != "" {
		for i := range voices {
			if matchesLocale(voices[i], locale) && matchesGender(voices[i], gender) {
				return &voices[i]
			}
		}
	}

	for i := range voices {
		if hasLanguage(voices[i], lang) {
			return &voices[i]
		}
	}

	return nil
}

func matchesGender(v Voice, gender string) bool {
	if v.Gender != "" {
		return strings.EqualFold(v.Gender, gender)
	}
	name := strings.ToLower(v.Name)
	for _, hint := range genderNameHints[strings.ToLower(gender)] {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

func normalizeLocale(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "-"))
}

func languageOf(locale string) string {
	l := normalizeLocale(locale)
	if i := strings.IndexByte(l, '-'); i >= 0 {
		return l[:i]
	}
	return l
}

func matchesLocale(v Voice, locale string) bool {
	return normalizeLocale(v.Lang) == normalizeLocale(locale)
}

func hasLanguage(v Voice, lang string) bool {
	return lang != "" && strings.HasPrefix(normalizeLocale(v.Lang), lang)
}
