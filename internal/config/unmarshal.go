package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgellow/idbroker/internal/emailutil"
)

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference. References are resolved immediately.
//
// The explicit JSON syntax is used instead of $VAR substitution so values are
// never expanded by a shell that happens to handle the config file.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// parseOptional resolves raw into dst when the field is present
func parseOptional(raw json.RawMessage, field string, dst *string) error {
	if raw == nil {
		return nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = value
	return nil
}

func parseSecret(raw json.RawMessage, field string, dst *Secret) error {
	var value string
	if err := parseOptional(raw, field, &value); err != nil {
		return err
	}
	*dst = Secret(value)
	return nil
}

func parseDuration(s, field string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

// parseEmailList accepts either a JSON array of values or a single value
// holding a comma separated list, typically {"$env": "ALLOWED_EMAILS"}.
func parseEmailList(raw json.RawMessage) ([]string, error) {
	if raw == nil {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		emails := make([]string, 0, len(items))
		for i, item := range items {
			value, err := ParseConfigValue(item)
			if err != nil {
				return nil, fmt.Errorf("parsing item %d: %w", i, err)
			}
			emails = append(emails, value)
		}
		return emailutil.NormalizeList(emails), nil
	}

	value, err := ParseConfigValue(raw)
	if err != nil {
		return nil, err
	}
	return emailutil.NormalizeList(emailutil.SplitList(value)), nil
}

// UnmarshalJSON implements custom unmarshaling for BrokerConfig
func (b *BrokerConfig) UnmarshalJSON(data []byte) error {
	type rawBroker struct {
		BaseURL        json.RawMessage `json:"baseURL"`
		Addr           json.RawMessage `json:"addr"`
		Name           string          `json:"name"`
		Issuer         json.RawMessage `json:"issuer"`
		AllowedOrigins []string        `json:"allowedOrigins"`
		TokenTTL       string          `json:"tokenTtl"`
		Storage        StorageConfig   `json:"storage"`
		JWTSecret      json.RawMessage `json:"jwtSecret"`
		EncryptionKey  json.RawMessage `json:"encryptionKey"`
	}

	var raw rawBroker
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Name = raw.Name
	b.AllowedOrigins = raw.AllowedOrigins
	b.Storage = raw.Storage

	if err := parseOptional(raw.BaseURL, "baseURL", &b.BaseURL); err != nil {
		return err
	}
	if err := parseOptional(raw.Addr, "addr", &b.Addr); err != nil {
		return err
	}
	if err := parseOptional(raw.Issuer, "issuer", &b.Issuer); err != nil {
		return err
	}
	if err := parseDuration(raw.TokenTTL, "tokenTtl", &b.TokenTTL); err != nil {
		return err
	}
	if err := parseSecret(raw.JWTSecret, "jwtSecret", &b.JWTSecret); err != nil {
		return err
	}
	return parseSecret(raw.EncryptionKey, "encryptionKey", &b.EncryptionKey)
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		RedisURL            json.RawMessage `json:"redisUrl"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
		CleanupInterval     string          `json:"cleanupInterval"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	if err := parseSecret(raw.RedisURL, "redisUrl", &s.RedisURL); err != nil {
		return err
	}
	if err := parseOptional(raw.GCPProject, "gcpProject", &s.GCPProject); err != nil {
		return err
	}
	return parseDuration(raw.CleanupInterval, "cleanupInterval", &s.CleanupInterval)
}

// UnmarshalJSON implements custom unmarshaling for IDPConfig
func (c *IDPConfig) UnmarshalJSON(data []byte) error {
	type rawIDP struct {
		Provider         IDPProvider     `json:"provider"`
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret"`
		RedirectURI      json.RawMessage `json:"redirectUri"`
		AllowedEmails    json.RawMessage `json:"allowedEmails"`
		Scopes           []string        `json:"scopes"`
		DiscoveryURL     string          `json:"discoveryUrl"`
		AuthorizationURL string          `json:"authorizationUrl"`
		TokenURL         string          `json:"tokenUrl"`
		UserInfoURL      string          `json:"userInfoUrl"`
		Issuer           string          `json:"issuer"`
		JWKSURL          string          `json:"jwksUrl"`
	}

	var raw rawIDP
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Provider = raw.Provider
	c.Scopes = raw.Scopes
	c.DiscoveryURL = raw.DiscoveryURL
	c.AuthorizationURL = raw.AuthorizationURL
	c.TokenURL = raw.TokenURL
	c.UserInfoURL = raw.UserInfoURL
	c.Issuer = raw.Issuer
	c.JWKSURL = raw.JWKSURL

	if err := parseOptional(raw.ClientID, "clientId", &c.ClientID); err != nil {
		return err
	}
	if err := parseSecret(raw.ClientSecret, "clientSecret", &c.ClientSecret); err != nil {
		return err
	}
	if err := parseOptional(raw.RedirectURI, "redirectUri", &c.RedirectURI); err != nil {
		return err
	}

	emails, err := parseEmailList(raw.AllowedEmails)
	if err != nil {
		return fmt.Errorf("parsing allowedEmails: %w", err)
	}
	c.AllowedEmails = emails
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ClientConfig
func (c *ClientConfig) UnmarshalJSON(data []byte) error {
	type rawClient struct {
		ID           string          `json:"id"`
		Secret       json.RawMessage `json:"secret"`
		RedirectURIs []string        `json:"redirectUris"`
		Scopes       []string        `json:"scopes"`
		Public       bool            `json:"public"`
	}

	var raw rawClient
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.ID = raw.ID
	c.RedirectURIs = raw.RedirectURIs
	c.Scopes = raw.Scopes
	c.Public = raw.Public

	if err := parseSecret(raw.Secret, "secret", &c.Secret); err != nil {
		return fmt.Errorf("client %s: %w", raw.ID, err)
	}
	return nil
}
