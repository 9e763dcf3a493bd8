package prices

import "strings"

// StarPrefix marks knives and gloves in market names.
const StarPrefix = "★ "

// placeholders are the forms the star glyph takes after a lossy re-encoding.
var placeholders = []string{"?", "�"}

var starTriggers = []string{"Gloves", "Knife", "Hand Wraps"}

// Normalize maps a display name to the key used by the cache and the store.
func Normalize(raw string) string {
	n := strings.TrimSpace(raw)
	for _, ph := range placeholders {
		if strings.HasPrefix(n, ph+" ") {
			n = StarPrefix + n[len(ph)+1:]
			break
		}
		if strings.HasPrefix(n, ph) {
			n = StarPrefix + strings.TrimSpace(n[len(ph):])
			break
		}
	}
	if !strings.HasPrefix(n, StarPrefix) && containsAny(n, starTriggers) {
		n = StarPrefix + n
	}
	return n
}

// Relaxed drops every star marker, for stores that saved names without it.
func Relaxed(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, "★", ""))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
