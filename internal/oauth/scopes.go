package oauth

// ScopeDescription is a scope as presented on the consent screen
type ScopeDescription struct {
	Name        string
	Description string
}

// OfflineAccessScope lets a client obtain refresh tokens
const OfflineAccessScope = "offline_access"

var scopeCatalogue = []ScopeDescription{
	{Name: "read_profile", Description: "Read your basic profile information"},
	{Name: "read_data", Description: "Access your stored data"},
	{Name: "write_data", Description: "Create and modify your data"},
	{Name: OfflineAccessScope, Description: "Stay connected when you are not using the application"},
}

// ScopeCatalogue lists the scopes this broker knows how to describe
func ScopeCatalogue() []ScopeDescription {
	out := make([]ScopeDescription, len(scopeCatalogue))
	copy(out, scopeCatalogue)
	return out
}

// DefaultClientScopes is granted to clients that do not ask for specific scopes
func DefaultClientScopes() []string {
	names := make([]string, 0, len(scopeCatalogue))
	for _, s := range scopeCatalogue {
		names = append(names, s.Name)
	}
	return names
}

// DescribeScopes maps requested scope names to descriptions. Unknown scopes
// are listed by name.
func DescribeScopes(requested []string) []ScopeDescription {
	out := make([]ScopeDescription, 0, len(requested))
	for _, name := range requested {
		desc := ScopeDescription{Name: name, Description: name}
		for _, known := range scopeCatalogue {
			if known.Name == name {
				desc = known
				break
			}
		}
		out = append(out, desc)
	}
	return out
}
