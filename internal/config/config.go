// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env                       string `mapstructure:"APP_ENV"`
	Port                      string `mapstructure:"PORT"`
	AppURL                    string `mapstructure:"APP_URL"`
	JWTSecret                 string `mapstructure:"JWT_SECRET"`
	AccessTokenTTLMinutes     int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	VerificationTokenTTLHours int    `mapstructure:"VERIFICATION_TOKEN_TTL_HOURS"`

	DBDriver                 string `mapstructure:"DB_DRIVER"`
	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	SQLitePath               string `mapstructure:"SQLITE_PATH"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	UploadDir            string `mapstructure:"UPLOAD_DIR"`
	ImageMaxUploadSizeMB int    `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`
	ImageJPEGQuality     int    `mapstructure:"IMAGE_JPEG_QUALITY"`
	ImageMaxDimension    int    `mapstructure:"IMAGE_MAX_DIMENSION"`
	ImageMaxPixels       int    `mapstructure:"IMAGE_MAX_PIXELS"`

	GateLocalDev          bool   `mapstructure:"GATE_LOCAL_DEV"`
	GateOracleURL         string `mapstructure:"GATE_ORACLE_URL"`
	GateAttempts          int    `mapstructure:"GATE_ATTEMPTS"`
	GateRetryDelayMS      int    `mapstructure:"GATE_RETRY_DELAY_MS"`
	GateTimeoutSeconds    int    `mapstructure:"GATE_TIMEOUT_SECONDS"`
	GateMandatoryKeywords string `mapstructure:"GATE_MANDATORY_KEYWORDS"`
	GateForbiddenKeywords string `mapstructure:"GATE_FORBIDDEN_KEYWORDS"`
	GatePolicyFile        string `mapstructure:"GATE_POLICY_FILE"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingExporter string `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string `mapstructure:"OTLP_ENDPOINT"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; env vars and defaults are enough to boot.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.DBDriver = strings.ToLower(strings.TrimSpace(config.DBDriver))
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_URL", "http://localhost:8375")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 5)
	viper.SetDefault("VERIFICATION_TOKEN_TTL_HOURS", 48)

	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "askallery")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "askallery.db")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")

	viper.SetDefault("UPLOAD_DIR", "uploads")
	viper.SetDefault("IMAGE_MAX_UPLOAD_SIZE_MB", 10)
	viper.SetDefault("IMAGE_JPEG_QUALITY", 70)
	viper.SetDefault("IMAGE_MAX_DIMENSION", 2048)
	viper.SetDefault("IMAGE_MAX_PIXELS", 50_000_000)

	viper.SetDefault("GATE_LOCAL_DEV", false)
	viper.SetDefault("GATE_ORACLE_URL", "https://www.google.com/searchbyimage")
	viper.SetDefault("GATE_ATTEMPTS", 3)
	viper.SetDefault("GATE_RETRY_DELAY_MS", 2000)
	viper.SetDefault("GATE_TIMEOUT_SECONDS", 20)
	viper.SetDefault("GATE_MANDATORY_KEYWORDS", "ASUKA")
	viper.SetDefault("GATE_FORBIDDEN_KEYWORDS", "WWE,LUCHADORA,WRESTLER")
	viper.SetDefault("GATE_POLICY_FILE", "")

	viper.SetDefault("SMTP_HOST", "")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("MAIL_FROM", "Askallery <noreply@askallery.com>")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
}

// IsProduction reports whether the config targets a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// AccessTokenTTL is the lifetime of login tokens.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// VerificationTokenTTL is the lifetime of email confirmation links.
func (c *Config) VerificationTokenTTL() time.Duration {
	return time.Duration(c.VerificationTokenTTLHours) * time.Hour
}

// GateRetryDelay is the fixed pause between oracle attempts.
func (c *Config) GateRetryDelay() time.Duration {
	return time.Duration(c.GateRetryDelayMS) * time.Millisecond
}

// GateTimeout bounds the total time spent classifying a single image.
func (c *Config) GateTimeout() time.Duration {
	return time.Duration(c.GateTimeoutSeconds) * time.Second
}

// MaxUploadBytes is the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.ImageMaxUploadSizeMB) * 1024 * 1024
}

// SplitList parses a comma separated setting, dropping blanks.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DBDriver != "" && c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.ImageMaxUploadSizeMB <= 0 {
		return errors.New("IMAGE_MAX_UPLOAD_SIZE_MB must be positive")
	}
	if c.ImageJPEGQuality < 1 || c.ImageJPEGQuality > 100 {
		return errors.New("IMAGE_JPEG_QUALITY must be between 1 and 100")
	}
	if c.ImageMaxDimension <= 0 {
		return errors.New("IMAGE_MAX_DIMENSION must be positive")
	}
	if c.ImageMaxPixels < 0 {
		return errors.New("IMAGE_MAX_PIXELS must not be negative")
	}
	if !c.GateLocalDev && c.GatePolicyFile == "" && len(SplitList(c.GateMandatoryKeywords)) == 0 {
		return errors.New("GATE_MANDATORY_KEYWORDS must list at least one keyword unless GATE_LOCAL_DEV is set")
	}
	if c.GateAttempts < 1 {
		return errors.New("GATE_ATTEMPTS must be at least 1")
	}
	if c.GateTimeoutSeconds <= 0 {
		return errors.New("GATE_TIMEOUT_SECONDS must be positive")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver != "sqlite" && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBDriver != "sqlite" && (c.DBSSLMode == "disable" || c.DBSSLMode == "") {
			return errors.New("DB_SSLMODE must not be 'disable' in production")
		}
		if c.GateLocalDev {
			return errors.New("GATE_LOCAL_DEV cannot be enabled in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
