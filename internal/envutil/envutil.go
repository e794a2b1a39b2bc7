package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the deployment environment of the broker.
const EnvVar = "IDBROKER_ENV"

// IsDev reports whether the broker runs in development mode, where
// OAuth parameter entropy checks are relaxed for local clients.
func IsDev() bool {
	switch strings.ToLower(os.Getenv(EnvVar)) {
	case "development", "dev":
		return true
	}
	return false
}
