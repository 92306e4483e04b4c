package chat

import (
	"strings"
	"unicode/utf8"
)

// ProfileField is one labeled user-profile entry
type ProfileField struct {
	Key   string
	Label string
}

// ProfileFields lists the profile fields in the order they are rendered
var ProfileFields = []ProfileField{
	{"name", "Name"},
	{"role", "Role"},
	{"company", "Company"},
	{"industry", "Industry"},
	{"experience", "Experience"},
	{"skills", "Skills"},
	{"goals", "Goals"},
	{"tone", "Preferred tone"},
	{"language", "Language"},
	{"timezone", "Timezone"},
	{"context", "Additional context"},
}

// BuildUserContext renders the non-empty profile fields as
// "User Profile: Label: value, Label: value." truncated to maxChars runes.
// It returns "" when no field is set.
func BuildUserContext(details map[string]string, maxChars int) string {
	var parts []string
	for _, f := range ProfileFields {
		if v := strings.TrimSpace(details[f.Key]); v != "" {
			parts = append(parts, f.Label+": "+v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return truncateRunes("User Profile: "+strings.Join(parts, ", ")+".", maxChars)
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
