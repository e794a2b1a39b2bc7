package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if !strings.HasPrefix(version, SupportedVersion) {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersion)
	}

	validateBrokerStructure(rawConfig, result)
	validateIDPStructure(rawConfig, result)
	validateClientsStructure(rawConfig, result)

	return result, nil
}

func validateBrokerStructure(rawConfig map[string]any, result *ValidationResult) {
	broker, ok := rawConfig["broker"].(map[string]any)
	if !ok {
		result.addError("broker", "broker field is required and must be an object")
		return
	}

	if _, ok := broker["baseURL"]; !ok {
		result.addError("broker.baseURL", "baseURL is required. Example: \"https://auth.example.com\"")
	}
	if _, ok := broker["addr"]; !ok {
		result.addError("broker.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
	if v, ok := broker["jwtSecret"]; ok {
		if err := validateEnvVarReference(v, "jwtSecret", "broker.jwtSecret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	} else {
		result.addError("broker.jwtSecret", "jwtSecret is required. Hint: {\"$env\": \"JWT_SECRET\"}")
	}
	if v, ok := broker["encryptionKey"]; ok {
		if err := validateEnvVarReference(v, "encryptionKey", "broker.encryptionKey"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}
	if ttl, ok := broker["tokenTtl"].(string); ok {
		if _, err := time.ParseDuration(ttl); err != nil {
			result.addError("broker.tokenTtl", "invalid duration '%s'. Example: \"1h\"", ttl)
		}
	}

	storage, ok := broker["storage"].(map[string]any)
	if !ok {
		return
	}
	kind, _ := storage["kind"].(string)
	switch kind {
	case "", "memory":
	case "redis":
		if v, ok := storage["redisUrl"]; ok {
			if err := validateEnvVarReference(v, "redisUrl", "broker.storage.redisUrl"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		} else {
			result.addError("broker.storage.redisUrl", "redisUrl is required for redis storage")
		}
	case "firestore":
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("broker.storage.gcpProject", "gcpProject is required for firestore storage")
		}
		if _, ok := broker["encryptionKey"]; !ok {
			result.addError("broker.encryptionKey", "encryptionKey is required for firestore storage")
		}
	default:
		result.addError("broker.storage.kind", "unknown storage kind '%s' - use memory, redis or firestore", kind)
	}
	if interval, ok := storage["cleanupInterval"].(string); ok {
		d, err := time.ParseDuration(interval)
		if err != nil {
			result.addError("broker.storage.cleanupInterval", "invalid duration '%s'", interval)
		} else if d > 10*time.Minute {
			result.addWarning("broker.storage.cleanupInterval",
				"cleanupInterval (%s) is longer than the pending request lifetime (10m). Expired entries will stay in memory until cleanup runs.", interval)
		}
	}
}

func validateIDPStructure(rawConfig map[string]any, result *ValidationResult) {
	idp, ok := rawConfig["idp"].(map[string]any)
	if !ok {
		result.addError("idp", "idp field is required and must be an object")
		return
	}

	provider, _ := idp["provider"].(string)
	if _, ok := idp["clientId"]; !ok {
		result.addError("idp.clientId", "clientId is required for IDP configuration")
	}
	if v, ok := idp["clientSecret"]; ok {
		if err := validateEnvVarReference(v, "clientSecret", "idp.clientSecret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	} else {
		result.addError("idp.clientSecret", "clientSecret is required for IDP configuration")
	}

	switch emails := idp["allowedEmails"].(type) {
	case []any:
		if len(emails) == 0 {
			result.addError("idp.allowedEmails", "at least one allowed email is required")
		}
	case map[string]any:
		if _, hasEnv := emails["$env"]; !hasEnv {
			result.addError("idp.allowedEmails", "allowedEmails must be an array or {\"$env\": \"ALLOWED_EMAILS\"}")
		}
	case nil:
		result.addError("idp.allowedEmails", "allowedEmails is required. Example: [\"alice@example.com\"]")
	default:
		result.addError("idp.allowedEmails", "allowedEmails must be an array or an env reference, not %T", emails)
	}

	switch provider {
	case "", "google":
	case "oidc":
		if _, ok := idp["discoveryUrl"]; !ok {
			for _, endpoint := range []string{"authorizationUrl", "tokenUrl", "userInfoUrl"} {
				if _, ok := idp[endpoint]; !ok {
					result.addError("idp."+endpoint, "%s is required for OIDC provider when discoveryUrl is not provided", endpoint)
				}
			}
			if _, ok := idp["jwksUrl"]; !ok {
				result.addWarning("idp.jwksUrl", "no jwksUrl or discoveryUrl configured - ID tokens will be ignored and only userinfo is trusted")
			}
		}
	default:
		result.addError("idp.provider", "unknown provider '%s' - supported providers: google, oidc", provider)
	}
}

func validateClientsStructure(rawConfig map[string]any, result *ValidationResult) {
	clients, ok := rawConfig["clients"].([]any)
	if !ok {
		return
	}
	for i, c := range clients {
		path := fmt.Sprintf("clients[%d]", i)
		client, ok := c.(map[string]any)
		if !ok {
			result.addError(path, "client must be an object")
			continue
		}
		if _, ok := client["id"].(string); !ok {
			result.addError(path+".id", "id is required")
		}
		if uris, ok := client["redirectUris"].([]any); !ok || len(uris) == 0 {
			result.addError(path+".redirectUris", "at least one redirect URI is required")
		}
		public, _ := client["public"].(bool)
		if v, ok := client["secret"]; ok {
			if err := validateEnvVarReference(v, "secret", path+".secret"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		} else if !public {
			result.addError(path+".secret", "confidential clients need a secret. Set \"public\": true for PKCE-only clients")
		}
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
