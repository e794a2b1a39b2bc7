package idp

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Google endpoints used for ID token verification
const (
	googleIssuer  = "https://accounts.google.com"
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// GoogleProvider implements the Provider interface for Google OAuth.
// Google's v2 userinfo endpoint returns `id` and `verified_email` instead of
// the OIDC standard `sub` and `email_verified`.
type GoogleProvider struct {
	config      oauth2.Config
	userInfoURL string
}

type googleUserInfoResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// NewGoogleProvider creates a new Google OAuth provider.
func NewGoogleProvider(clientID, clientSecret, redirectURI string, scopes []string) *GoogleProvider {
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
}

func (p *GoogleProvider) Type() string {
	return "google"
}

func (p *GoogleProvider) AuthURL(state, scope string) string {
	return authCodeURL(&p.config, state, scope)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches user information from Google's userinfo endpoint.
func (p *GoogleProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	var googleUser googleUserInfoResponse
	if err := fetchUserInfo(ctx, &p.config, token, p.userInfoURL, &googleUser); err != nil {
		return nil, err
	}

	return &Identity{
		ProviderType:  "google",
		Subject:       googleUser.ID,
		Email:         googleUser.Email,
		EmailVerified: googleUser.VerifiedEmail,
		Name:          googleUser.Name,
		GivenName:     googleUser.GivenName,
		FamilyName:    googleUser.FamilyName,
		Picture:       googleUser.Picture,
	}, nil
}
