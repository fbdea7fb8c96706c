package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"server.port", "PORT", validateEnvPort},
		{"server.environment", "ENVIRONMENT", nil},
		{"server.baseurl", "BASE_URL", nil},

		{"supabase.url", "SUPABASE_URL", nil},
		{"supabase.publishablekey", "SUPABASE_PUBLISHABLE_KEY", nil},
		{"supabase.jwtsecret", "SUPABASE_JWT_SECRET", nil},
		{"supabase.storagebucket", "SUPABASE_STORAGE_BUCKET", nil},

		{"database.url", "DATABASE_URL", nil},
		{"database.driver", "DATABASE_DRIVER", validateEnvOneOf(DriverPostgres, DriverSupabase, DriverSQLite, DriverNone)},
		{"database.sqlitepath", "SQLITE_PATH", nil},
		{"database.mealtable", "MEAL_TABLE", nil},

		{"ai.projectid", "GOOGLE_PROJECT_ID", nil},
		{"ai.location", "GOOGLE_LOCATION", nil},
		{"ai.credentialsfile", "GOOGLE_CREDENTIALS_FILE", nil},
		{"ai.model", "AI_MODEL", nil},
		{"ai.timeout", "AI_TIMEOUT", validateEnvDuration},
		{"ai.temperature", "AI_TEMPERATURE", validateEnvTemperature},

		{"storage.provider", "STORAGE_PROVIDER", validateEnvOneOf(ProviderSupabase, ProviderGCS, ProviderNone)},
		{"storage.required", "STORAGE_REQUIRED", validateEnvBool},
		{"storage.gcsbucket", "GCS_BUCKET_NAME", nil},
		{"storage.gcspublicacl", "GCS_PUBLIC_ACL", validateEnvBool},

		{"scan.guestmarkers", "GUEST_USER_MARKERS", nil},
		{"scan.defaultuserid", "DEFAULT_USER_ID", nil},
		{"scan.maxuploadbytes", "MAX_UPLOAD_BYTES", validateEnvPositiveInt},
		{"scan.ratelimit", "SCAN_RATE_LIMIT", validateEnvNonNegativeFloat},
		{"scan.rateburst", "SCAN_RATE_BURST", validateEnvPositiveInt},
		{"scan.historycachettl", "HISTORY_CACHE_TTL", validateEnvDuration},

		{"log.level", "LOG_LEVEL", validateEnvOneOf("debug", "info", "warn", "warning", "error")},
		{"log.format", "LOG_FORMAT", validateEnvOneOf("text", "json")},
		{"sentry.dsn", "SENTRY_DSN", nil},
	}
}

func bindEnvVars(v *viper.Viper) error {
	var problems []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if value := os.Getenv(binding.EnvVar); value != "" {
				if err := binding.Validate(value); err != nil {
					problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration such as 30s: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvNonNegativeFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return fmt.Errorf("must be a non-negative number")
	}
	return nil
}

func validateEnvTemperature(value string) error {
	t, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return fmt.Errorf("invalid temperature: %w", err)
	}
	if t < 0 || t > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", t)
	}
	return nil
}

func validateEnvOneOf(allowed ...string) func(string) error {
	return func(value string) error {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}
