package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"

	ProviderSupabase = "supabase"
	ProviderGCS      = "gcs"
	ProviderNone     = "none"
)

type Config struct {
	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Database
	DatabaseURL    string
	DatabaseDriver string
	SQLitePath     string
	MealTable      string

	// Vertex AI
	GoogleProjectID       string
	GoogleLocation        string
	GoogleCredentialsFile string
	AIModel               string
	AITimeout             time.Duration
	AITemperature         float32

	// Image storage
	StorageProvider string
	StorageRequired bool
	GCSBucketName   string
	GCSPublicACL    bool

	// Scanning
	GuestUserMarkers []string
	DefaultUserID    string
	MaxUploadBytes   int64
	ScanRateLimit    float64
	ScanRateBurst    int
	HistoryCacheTTL  time.Duration

	// Observability
	LogLevel  string
	LogFormat string
	SentryDSN string

	// Server
	Port        string
	Environment string
	BaseURL     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.baseurl", "http://localhost:8080")

	v.SetDefault("supabase.storagebucket", "meal-images")

	v.SetDefault("database.sqlitepath", "kcalify.db")
	v.SetDefault("database.mealtable", "meal_history")

	v.SetDefault("ai.location", "us-central1")
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.temperature", 0.2)

	v.SetDefault("storage.required", false)
	v.SetDefault("storage.gcsbucket", "nutrition-scanner-uploads")
	v.SetDefault("storage.gcspublicacl", true)

	v.SetDefault("scan.guestmarkers", "guest,test_user")
	v.SetDefault("scan.defaultuserid", "guest_user")
	v.SetDefault("scan.maxuploadbytes", 10<<20)
	v.SetDefault("scan.ratelimit", 5.0)
	v.SetDefault("scan.rateburst", 10)
	v.SetDefault("scan.historycachettl", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads defaults, then the optional YAML file, then the environment.
// configFile may be empty, in which case config.yaml is looked up in the
// working directory and /etc/kcalify.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/kcalify")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		SupabaseURL:            v.GetString("supabase.url"),
		SupabasePublishableKey: v.GetString("supabase.publishablekey"),
		SupabaseJWTSecret:      v.GetString("supabase.jwtsecret"),
		SupabaseStorageBucket:  v.GetString("supabase.storagebucket"),

		DatabaseURL:    v.GetString("database.url"),
		DatabaseDriver: strings.ToLower(v.GetString("database.driver")),
		SQLitePath:     v.GetString("database.sqlitepath"),
		MealTable:      v.GetString("database.mealtable"),

		GoogleProjectID:       v.GetString("ai.projectid"),
		GoogleLocation:        v.GetString("ai.location"),
		GoogleCredentialsFile: v.GetString("ai.credentialsfile"),
		AIModel:               v.GetString("ai.model"),
		AITimeout:             v.GetDuration("ai.timeout"),
		AITemperature:         float32(v.GetFloat64("ai.temperature")),

		StorageProvider: strings.ToLower(v.GetString("storage.provider")),
		StorageRequired: v.GetBool("storage.required"),
		GCSBucketName:   v.GetString("storage.gcsbucket"),
		GCSPublicACL:    v.GetBool("storage.gcspublicacl"),

		GuestUserMarkers: splitList(v.GetString("scan.guestmarkers")),
		DefaultUserID:    v.GetString("scan.defaultuserid"),
		MaxUploadBytes:   v.GetInt64("scan.maxuploadbytes"),
		ScanRateLimit:    v.GetFloat64("scan.ratelimit"),
		ScanRateBurst:    v.GetInt("scan.rateburst"),
		HistoryCacheTTL:  v.GetDuration("scan.historycachettl"),

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
		SentryDSN: v.GetString("sentry.dsn"),

		Port:        v.GetString("server.port"),
		Environment: v.GetString("server.environment"),
		BaseURL:     v.GetString("server.baseurl"),
	}

	// Unset backends follow whatever credentials are present.
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = DriverNone
		if cfg.DatabaseURL != "" {
			cfg.DatabaseDriver = DriverPostgres
		}
	}
	if cfg.StorageProvider == "" {
		cfg.StorageProvider = ProviderNone
		if cfg.SupabaseURL != "" && cfg.SupabasePublishableKey != "" {
			cfg.StorageProvider = ProviderSupabase
		}
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSupabase:
		if c.SupabaseURL == "" || c.SupabasePublishableKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_PUBLISHABLE_KEY are required for the supabase driver")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverNone:
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	switch c.StorageProvider {
	case ProviderSupabase:
		if c.SupabaseURL == "" || c.SupabasePublishableKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_PUBLISHABLE_KEY are required for supabase storage")
		}
		if c.SupabaseStorageBucket == "" {
			return fmt.Errorf("SUPABASE_STORAGE_BUCKET is required for supabase storage")
		}
	case ProviderGCS:
		if c.GCSBucketName == "" {
			return fmt.Errorf("GCS_BUCKET_NAME is required for gcs storage")
		}
	case ProviderNone:
		if c.StorageRequired {
			return fmt.Errorf("STORAGE_REQUIRED is set but STORAGE_PROVIDER is none")
		}
	default:
		return fmt.Errorf("unknown STORAGE_PROVIDER %q", c.StorageProvider)
	}

	if c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.ScanRateLimit > 0 && c.ScanRateBurst < 1 {
		return fmt.Errorf("SCAN_RATE_BURST must be at least 1 when rate limiting is enabled")
	}
	if c.DefaultUserID == "" {
		return fmt.Errorf("DEFAULT_USER_ID must not be empty")
	}
	return nil
}

// AuthEnabled reports whether API routes require a Supabase JWT.
func (c *Config) AuthEnabled() bool {
	return c.SupabaseJWTSecret != ""
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
