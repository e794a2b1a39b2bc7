package config

import (
	"encoding/json"
	"time"
)

// SupportedVersion is the config version prefix this build understands
const SupportedVersion = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the ephemeral state store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageRedis     StorageKind = "redis"
	StorageFirestore StorageKind = "firestore"
)

// IDPProvider names a supported identity provider implementation
type IDPProvider string

const (
	IDPGoogle IDPProvider = "google"
	IDPOIDC   IDPProvider = "oidc"
)

// StorageConfig configures where pending requests and sessions live
type StorageConfig struct {
	Kind                StorageKind   `json:"kind"`
	RedisURL            Secret        `json:"redisUrl,omitempty"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	CleanupInterval     time.Duration `json:"cleanupInterval,omitempty"`
}

// IDPConfig configures the upstream identity provider used to authenticate users.
//
// For provider "oidc" either DiscoveryURL or all three endpoints must be set.
// ID tokens are only trusted when a JWKS location is known, either from
// discovery, JWKSURL, or the built-in Google defaults.
type IDPConfig struct {
	Provider      IDPProvider `json:"provider"`
	ClientID      string      `json:"clientId"`
	ClientSecret  Secret      `json:"clientSecret"`
	RedirectURI   string      `json:"redirectUri"`
	AllowedEmails []string    `json:"allowedEmails"`
	Scopes        []string    `json:"scopes,omitempty"`

	DiscoveryURL     string `json:"discoveryUrl,omitempty"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	TokenURL         string `json:"tokenUrl,omitempty"`
	UserInfoURL      string `json:"userInfoUrl,omitempty"`
	Issuer           string `json:"issuer,omitempty"`
	JWKSURL          string `json:"jwksUrl,omitempty"`
}

// ClientConfig is an OAuth client registered at startup
type ClientConfig struct {
	ID           string   `json:"id"`
	Secret       Secret   `json:"secret,omitempty"`
	RedirectURIs []string `json:"redirectUris"`
	Scopes       []string `json:"scopes,omitempty"`
	Public       bool     `json:"public,omitempty"`
}

// BrokerConfig holds the HTTP surface and token settings
type BrokerConfig struct {
	BaseURL        string        `json:"baseURL"`
	Addr           string        `json:"addr"`
	Name           string        `json:"name"`
	Issuer         string        `json:"issuer"`
	AllowedOrigins []string      `json:"allowedOrigins"`
	TokenTTL       time.Duration `json:"tokenTtl"`
	Storage        StorageConfig `json:"storage"`
	JWTSecret      Secret        `json:"jwtSecret"`
	EncryptionKey  Secret        `json:"encryptionKey,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version string         `json:"version"`
	Broker  BrokerConfig   `json:"broker"`
	IDP     IDPConfig      `json:"idp"`
	Clients []ClientConfig `json:"clients,omitempty"`
}
