// Package language canonicalizes user-supplied language codes for the
// pipeline. Submissions may use two-letter codes, three-letter codes, or
// full names ("german"); everything is normalized to the BCP-47 base code
// WhisperX and the translation prompt expect.
package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Auto asks the transcription engine to detect the source language.
const Auto = "auto"

// Normalize canonicalizes a language code or name to its two-letter base
// ("en", "pt"). The empty string passes through; "auto" is preserved.
func Normalize(code string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return "", nil
	}
	if trimmed == Auto {
		return Auto, nil
	}

	tag, err := language.Parse(trimmed)
	if err != nil {
		// Full names ("german") are not valid BCP-47; try a reverse lookup
		// over the display names of common bases.
		if normalized, ok := fromDisplayName(trimmed); ok {
			return normalized, nil
		}
		return "", fmt.Errorf("unrecognized language %q", code)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("unrecognized language %q", code)
	}
	return base.String(), nil
}

// MustNormalize is Normalize for values already validated at submission.
func MustNormalize(code string) string {
	normalized, err := Normalize(code)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(code))
	}
	return normalized
}

// Same reports whether two codes refer to the same base language. "auto"
// never matches anything, including itself.
func Same(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	if na == Auto || nb == Auto || na == "" || nb == "" {
		return false
	}
	return na == nb
}

// DisplayName returns the English display name for a normalized code, for
// CLI and API output. Unknown codes echo back unchanged.
func DisplayName(code string) string {
	normalized, err := Normalize(code)
	if err != nil || normalized == "" {
		return code
	}
	if normalized == Auto {
		return "Auto-detect"
	}
	tag, err := language.Parse(normalized)
	if err != nil {
		return code
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return code
	}
	return name
}

func fromDisplayName(name string) (string, bool) {
	namer := display.English.Tags()
	for _, tag := range commonTags {
		if strings.EqualFold(namer.Name(tag), name) {
			base, _ := tag.Base()
			return base.String(), true
		}
	}
	return "", false
}

var commonTags = []language.Tag{
	language.English,
	language.Spanish,
	language.French,
	language.German,
	language.Italian,
	language.Portuguese,
	language.Japanese,
	language.Korean,
	language.Chinese,
	language.Russian,
	language.Arabic,
	language.Hindi,
	language.Dutch,
	language.Polish,
	language.Swedish,
	language.Danish,
	language.Norwegian,
	language.Finnish,
	language.Turkish,
	language.Czech,
	language.Greek,
	language.Hebrew,
	language.Hungarian,
	language.Indonesian,
	language.Thai,
	language.Ukrainian,
	language.Vietnamese,
}
