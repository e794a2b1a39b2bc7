package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgellow/idbroker/internal/log"
)

// Defaults applied by Load when a field is omitted
const (
	DefaultName                = "idbroker"
	DefaultTokenTTL            = time.Hour
	DefaultCleanupInterval     = time.Minute
	DefaultFirestoreCollection = "idbroker_state"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersion) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyDefaults fills omitted optional fields
func ApplyDefaults(config *Config) {
	b := &config.Broker
	b.BaseURL = strings.TrimRight(b.BaseURL, "/")
	if b.Name == "" {
		b.Name = DefaultName
	}
	if b.Issuer == "" {
		b.Issuer = b.BaseURL
	}
	if b.TokenTTL == 0 {
		b.TokenTTL = DefaultTokenTTL
	}
	if b.Storage.Kind == "" {
		b.Storage.Kind = StorageMemory
	}
	if b.Storage.CleanupInterval == 0 {
		b.Storage.CleanupInterval = DefaultCleanupInterval
	}
	if b.Storage.Kind == StorageFirestore && b.Storage.FirestoreCollection == "" {
		b.Storage.FirestoreCollection = DefaultFirestoreCollection
	}

	if config.IDP.Provider == "" {
		config.IDP.Provider = IDPGoogle
	}
	if config.IDP.RedirectURI == "" && b.BaseURL != "" {
		config.IDP.RedirectURI = b.BaseURL + "/callback"
	}
}

// secretFields lists config paths whose values must come from the environment
var secretFields = []struct {
	section string
	name    string
}{
	{"idp", "clientSecret"},
	{"broker", "jwtSecret"},
	{"broker", "encryptionKey"},
}

// validateRawConfig rejects plain-text secrets before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, field := range secretFields {
		section, ok := rawConfig[field.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[field.name]
		if !exists {
			continue
		}
		if err := requireEnvRef(value, field.section+"."+field.name); err != nil {
			return err
		}
	}

	if storage, ok := nested(rawConfig, "broker", "storage"); ok {
		if value, exists := storage["redisUrl"]; exists {
			if err := requireEnvRef(value, "broker.storage.redisUrl"); err != nil {
				return err
			}
		}
	}

	if clients, ok := rawConfig["clients"].([]any); ok {
		for i, c := range clients {
			client, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if value, exists := client["secret"]; exists {
				if err := requireEnvRef(value, fmt.Sprintf("clients[%d].secret", i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func requireEnvRef(value any, name string) error {
	if _, isString := value.(string); isString {
		return fmt.Errorf("%s must use environment variable reference for security", name)
	}
	if refMap, isMap := value.(map[string]any); isMap {
		if _, hasEnv := refMap["$env"]; !hasEnv {
			return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
		}
	}
	return nil
}

func nested(m map[string]any, keys ...string) (map[string]any, bool) {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	b := config.Broker
	if b.BaseURL == "" {
		return fmt.Errorf("broker.baseURL is required")
	}
	if _, err := url.ParseRequestURI(b.BaseURL); err != nil {
		return fmt.Errorf("broker.baseURL is not a valid URL: %w", err)
	}
	if b.Addr == "" {
		return fmt.Errorf("broker.addr is required")
	}
	if len(b.JWTSecret) < 32 {
		return fmt.Errorf("broker.jwtSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(b.JWTSecret))
	}
	if b.TokenTTL < 0 {
		return fmt.Errorf("broker.tokenTtl cannot be negative")
	}

	if err := validateStorage(b); err != nil {
		return fmt.Errorf("broker.storage: %w", err)
	}
	if err := validateIDPConfig(&config.IDP); err != nil {
		return fmt.Errorf("idp config: %w", err)
	}

	seen := make(map[string]bool, len(config.Clients))
	for i, c := range config.Clients {
		if c.ID == "" {
			return fmt.Errorf("clients[%d].id is required", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("client %s is defined twice", c.ID)
		}
		seen[c.ID] = true
		if len(c.RedirectURIs) == 0 {
			return fmt.Errorf("client %s must have at least one redirect URI", c.ID)
		}
		if !c.Public && c.Secret == "" {
			return fmt.Errorf("client %s is confidential but has no secret", c.ID)
		}
		if c.Public && c.Secret != "" {
			log.LogWarnWithFields("config", "Public client has a secret, it will be ignored", map[string]any{
				"client_id": c.ID,
			})
		}
	}

	return nil
}

func validateStorage(b BrokerConfig) error {
	switch b.Storage.Kind {
	case StorageMemory:
	case StorageRedis:
		if b.Storage.RedisURL == "" {
			return fmt.Errorf("redisUrl is required when using redis storage")
		}
	case StorageFirestore:
		if b.Storage.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
		if len(b.EncryptionKey) != 32 {
			return fmt.Errorf("encryptionKey must be exactly 32 characters when using firestore storage (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(b.EncryptionKey))
		}
	default:
		return fmt.Errorf("unknown storage kind %q (memory, redis, firestore)", b.Storage.Kind)
	}
	if b.Storage.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}
	return nil
}

func validateIDPConfig(idp *IDPConfig) error {
	if idp.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if idp.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if idp.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	if len(idp.AllowedEmails) == 0 {
		return fmt.Errorf("at least one allowed email is required")
	}

	switch idp.Provider {
	case IDPGoogle:
	case IDPOIDC:
		if idp.DiscoveryURL == "" && (idp.AuthorizationURL == "" || idp.TokenURL == "" || idp.UserInfoURL == "") {
			return fmt.Errorf("either discoveryUrl or all endpoints (authorizationUrl, tokenUrl, userInfoUrl) must be provided")
		}
		if idp.JWKSURL != "" && idp.Issuer == "" && idp.DiscoveryURL == "" {
			return fmt.Errorf("issuer is required when jwksUrl is set")
		}
	default:
		return fmt.Errorf("unknown provider %q (google, oidc)", idp.Provider)
	}
	return nil
}
