package profile

import (
	"strings"
	"unicode"
)

// ParseTraits reads the hidden block of a model reply. Lines of the form
// "key: value" (ASCII or full-width colon, optional list bullet) become
// traits; any other non-empty line becomes a note. The "None" sentinel
// yields nothing.
func ParseTraits(hidden string) ([]Trait, []string) {
	hidden = strings.TrimSpace(hidden)
	if hidden == "" || strings.EqualFold(hidden, "none") {
		return nil, nil
	}

	var traits []Trait
	var notes []string
	for _, line := range strings.Split(hidden, "\n") {
		line = stripBullet(strings.TrimSpace(line))
		if line == "" || strings.EqualFold(line, "none") {
			continue
		}

		key, value, ok := cutColon(line)
		key = strings.Trim(strings.TrimSpace(key), "*_`")
		value = strings.TrimSpace(value)
		if ok && key != "" && value != "" && len([]rune(key)) <= 40 {
			traits = append(traits, Trait{Key: key, Value: value})
			continue
		}
		notes = append(notes, line)
	}
	return traits, notes
}

func cutColon(line string) (string, string, bool) {
	i := strings.IndexAny(line, ":：")
	if i < 0 {
		return line, "", false
	}
	_, size := firstRune(line[i:])
	return line[:i], line[i+size:], true
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}

func stripBullet(line string) string {
	switch {
	case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "), strings.HasPrefix(line, "• "):
		_, size := firstRune(line)
		return strings.TrimSpace(line[size:])
	}
	// "1. " or "2) "
	digits := strings.IndexFunc(line, func(r rune) bool { return !unicode.IsDigit(r) })
	if digits > 0 && digits+1 < len(line) && (line[digits] == '.' || line[digits] == ')') && line[digits+1] == ' ' {
		return strings.TrimSpace(line[digits+2:])
	}
	return line
}
