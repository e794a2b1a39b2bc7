package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/idbroker/internal"
	"github.com/dgellow/idbroker/internal/config"
	"github.com/dgellow/idbroker/internal/log"
)

var BuildVersion = "dev"

func defaultConfig() map[string]any {
	return map[string]any{
		"version": config.SupportedVersion,
		"broker": map[string]any{
			"baseURL":        "https://auth.yourcompany.com",
			"addr":           ":8080",
			"name":           "idbroker",
			"allowedOrigins": []string{"https://app.yourcompany.com"},
			"tokenTtl":       "1h",
			"storage": map[string]any{
				"kind": "memory",
			},
			"jwtSecret": map[string]string{"$env": "JWT_SECRET"},
		},
		"idp": map[string]any{
			"provider":      "google",
			"clientId":      map[string]string{"$env": "GOOGLE_CLIENT_ID"},
			"clientSecret":  map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
			"redirectUri":   "https://auth.yourcompany.com/callback",
			"allowedEmails": map[string]string{"$env": "ALLOWED_EMAILS"},
		},
		"clients": []any{
			map[string]any{
				"id":           "cli",
				"public":       true,
				"redirectUris": []string{"http://127.0.0.1:33418/callback"},
				"scopes":       []string{"read_profile", "read_data", "offline_access"},
			},
		},
	}
}

func generateDefaultConfig(path string) error {
	data, err := json.MarshalIndent(defaultConfig(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			printIssue(err.Path, err.Message)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			printIssue(warn.Path, warn.Message)
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) > 0:
		fmt.Println("Result: FAIL")
	case len(result.Warnings) > 0:
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: PASS")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func printIssue(path, message string) {
	if path != "" {
		fmt.Printf("  - %s: %s\n", path, message)
		return
	}
	fmt.Printf("  - %s\n", message)
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting idbroker", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	broker, err := internal.NewBroker(context.Background(), cfg, internal.Options{})
	if err != nil {
		log.LogError("Failed to create broker: %v", err)
		os.Exit(1)
	}

	if err := broker.Run(); err != nil {
		log.LogError("Broker stopped: %v", err)
		os.Exit(1)
	}
}
