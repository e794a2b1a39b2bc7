package emailutil

import "strings"

// Normalize normalizes an email address for consistent comparison
// by converting to lowercase and trimming whitespace
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeList normalizes every entry and drops the ones that end up empty.
// Duplicates are removed while preserving first-seen order.
func NormalizeList(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		n := Normalize(e)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// SplitList parses a comma separated list such as the ALLOWED_EMAILS
// environment variable into normalized addresses.
func SplitList(s string) []string {
	return NormalizeList(strings.Split(s, ","))
}
