package oauth

import (
	"github.com/ory/fosite"
)

// Session extends DefaultSession with the identity that approved the grant
type Session struct {
	*fosite.DefaultSession
	Label   string     `json:"label"`
	Picture string     `json:"picture,omitempty"`
	Props   GrantProps `json:"props"`
}

// NewSession creates an empty session, used when fosite needs a prototype
// to load a stored request into
func NewSession() *Session {
	return &Session{DefaultSession: &fosite.DefaultSession{}}
}

// Clone implements fosite.Session
func (s *Session) Clone() fosite.Session {
	if s == nil {
		return nil
	}
	return &Session{
		DefaultSession: s.DefaultSession.Clone().(*fosite.DefaultSession),
		Label:          s.Label,
		Picture:        s.Picture,
		Props:          s.Props,
	}
}
