package identity

import (
	"regexp"
	"strings"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 30
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// NormalizeUsername is the case-insensitive key usernames are unique on.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UsernameProblems lists every rule the trimmed username breaks, in display order.
// An empty result means the username is acceptable.
func UsernameProblems(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"Empty username"}
	}

	var out []string
	if len(s) > UsernameMaxLen {
		out = append(out, "Username must be less than 30 characters")
	}
	if len(s) < UsernameMinLen {
		out = append(out, "Username must be more than 3 characters")
	}
	if !usernameRe.MatchString(s) {
		out = append(out, "Username must contain only latin letters or digits, underscores, dashes and dots")
	}
	return out
}

// ValidUsername reports whether s satisfies every username rule.
func ValidUsername(s string) bool { return len(UsernameProblems(s)) == 0 }

// likePrefix escapes LIKE wildcards so "_" in usernames matches literally.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(NormalizeUsername(prefix)) + "%"
}
