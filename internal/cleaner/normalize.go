package cleaner

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// NormalizeText collapses runs of whitespace, drops non-printable runes and
// trims the result. Empty input stays empty.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}

	text = whitespaceRE.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// CoerceSaveCount converts the raw on-page save counter ("1.2K", "5M",
// "1,234", "500") into a non-negative integer. Anything unparsable or
// negative becomes 0.
func CoerceSaveCount(text string) int {
	text = strings.ToUpper(strings.TrimSpace(text))
	text = strings.ReplaceAll(text, ",", "")
	if text == "" {
		return 0
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(text, "K"):
		multiplier = 1000
		text = strings.TrimSuffix(text, "K")
	case strings.HasSuffix(text, "M"):
		multiplier = 1000000
		text = strings.TrimSuffix(text, "M")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0
	}

	count := int(value * multiplier)
	if count < 0 {
		return 0
	}
	return count
}
