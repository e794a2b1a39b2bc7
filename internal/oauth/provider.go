package oauth

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dgellow/idbroker/internal/envutil"
	"github.com/dgellow/idbroker/internal/log"
	"github.com/ory/fosite"
	"github.com/ory/fosite/compose"
)

// AuthorizeCodeLifespan bounds how long an issued code can be redeemed
const AuthorizeCodeLifespan = 10 * time.Minute

// ProviderConfig configures the fosite authorization server
type ProviderConfig struct {
	Issuer   string
	TokenTTL time.Duration
	Secret   []byte
}

// NewOAuthProvider creates the fosite provider backing the grant service and
// the token endpoint
func NewOAuthProvider(cfg ProviderConfig, store *ClientStore) (fosite.OAuth2Provider, error) {
	tokenTTL := cfg.TokenTTL
	if tokenTTL == 0 {
		tokenTTL = time.Hour
	}
	// HMAC-SHA512/256 strategy needs at least 32 bytes
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret must be at least 32 bytes long for security, got %d bytes", len(cfg.Secret))
	}
	if store == nil {
		return nil, fmt.Errorf("client store is required")
	}

	tokenURL, err := url.JoinPath(cfg.Issuer, "token")
	if err != nil {
		return nil, fmt.Errorf("building token URL: %w", err)
	}

	// 8+ character state parameters in production
	minEntropy := 8
	if envutil.IsDev() {
		minEntropy = 0
		log.LogWarn("Development mode enabled - OAuth security checks relaxed (state parameter entropy: %d)", minEntropy)
	}

	fositeConfig := &fosite.Config{
		AccessTokenLifespan:            tokenTTL,
		RefreshTokenLifespan:           tokenTTL * 2,
		AuthorizeCodeLifespan:          AuthorizeCodeLifespan,
		TokenURL:                       tokenURL,
		ScopeStrategy:                  fosite.HierarchicScopeStrategy,
		AudienceMatchingStrategy:       fosite.DefaultAudienceMatchingStrategy,
		EnforcePKCEForPublicClients:    true,
		EnablePKCEPlainChallengeMethod: false,
		MinParameterEntropy:            minEntropy,
		GlobalSecret:                   cfg.Secret,
	}

	provider := compose.Compose(
		fositeConfig,
		store,
		&compose.CommonStrategy{
			CoreStrategy: compose.NewOAuth2HMACStrategy(fositeConfig),
		},
		compose.OAuth2AuthorizeExplicitFactory,
		compose.OAuth2PKCEFactory,
		compose.OAuth2RefreshTokenGrantFactory,
		compose.OAuth2TokenIntrospectionFactory,
	)

	log.LogInfoWithFields("oauth", "OAuth provider initialized", map[string]any{
		"issuer":    cfg.Issuer,
		"token_ttl": tokenTTL.String(),
	})
	return provider, nil
}
