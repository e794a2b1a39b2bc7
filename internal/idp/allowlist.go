package idp

import (
	"github.com/dgellow/idbroker/internal/emailutil"
)

// AllowList is the closed set of emails permitted to finish authentication
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList normalizes emails. The result may be empty; NewClient rejects
// that case.
func NewAllowList(emails []string) AllowList {
	normalized := emailutil.NormalizeList(emails)
	set := make(map[string]struct{}, len(normalized))
	for _, e := range normalized {
		set[e] = struct{}{}
	}
	return AllowList{emails: set}
}

// Contains reports whether email is permitted, ignoring case and surrounding whitespace
func (a AllowList) Contains(email string) bool {
	n := emailutil.Normalize(email)
	if n == "" {
		return false
	}
	_, ok := a.emails[n]
	return ok
}

// Len returns the number of distinct permitted emails
func (a AllowList) Len() int {
	return len(a.emails)
}
