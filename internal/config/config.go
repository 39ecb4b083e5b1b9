// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Data source kinds accepted by FACTORLAB_SOURCE.
const (
	SourceCSV    = "csv"
	SourceSQLite = "sqlite"
)

// Config holds application configuration
type Config struct {
	DataDir   string `validate:"required"` // Base directory for inputs and databases (always absolute)
	OutputDir string `validate:"required"` // Where batch artifacts are written
	LogLevel  string `validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogPretty bool

	Source       string `validate:"oneof=csv sqlite"`
	DBDriver     string `validate:"oneof=sqlite sqlite3"`
	FactorsCSV   string `validate:"required"`
	StocksCSV    string `validate:"required"`
	MetadataJSON string

	Tickers          []string `validate:"dive,ticker"`
	Windows          []int    `validate:"min=1,dive,gt=0"`
	Workers          int      `validate:"gte=0"`
	WindowWorkers    int      `validate:"gte=0"`
	RollingInference bool
	Correlations     bool
	PCAComponents    int `validate:"gte=0"`
	PCAWindow        int `validate:"gte=2"`

	CacheEnabled bool
	CacheTTL     time.Duration `validate:"gte=0"`

	Schedule     string
	BatchTimeout time.Duration `validate:"gte=0"`

	RawDir string // Ken French and AQR downloads for build-factors

	S3 S3Config
}

// S3Config configures artifact publishing. Publishing is off when Bucket is empty.
type S3Config struct {
	Bucket          string
	Endpoint        string `validate:"omitempty,url"`
	Region          string
	AccessKeyID     string `validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `validate:"required_with=AccessKeyID"`
	Prefix          string
	RetentionDays   int    `validate:"gte=0"`
	RotateSchedule  string
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// ReturnsDBPath is the SQLite database holding factor and instrument returns.
func (c *Config) ReturnsDBPath() string {
	return filepath.Join(c.DataDir, "returns.db")
}

// CacheDBPath is the SQLite database holding cached fits.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if it exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("FACTORLAB_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	windows, err := getEnvAsInts("FACTORLAB_WINDOWS", []int{60, 120, 250})
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:          absDataDir,
		OutputDir:        getEnv("FACTORLAB_OUTPUT_DIR", filepath.Join(absDataDir, "output")),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:        getEnvAsBool("LOG_PRETTY", true),
		Source:           getEnv("FACTORLAB_SOURCE", SourceCSV),
		DBDriver:         getEnv("FACTORLAB_DB_DRIVER", "sqlite"),
		FactorsCSV:       getEnv("FACTORLAB_FACTORS_CSV", filepath.Join(absDataDir, "factors.csv")),
		StocksCSV:        getEnv("FACTORLAB_STOCKS_CSV", filepath.Join(absDataDir, "stocks.csv")),
		MetadataJSON:     getEnv("FACTORLAB_METADATA_JSON", ""),
		Tickers:          getEnvAsList("FACTORLAB_TICKERS"),
		Windows:          windows,
		Workers:          getEnvAsInt("FACTORLAB_WORKERS", 0),
		WindowWorkers:    getEnvAsInt("FACTORLAB_WINDOW_WORKERS", 1),
		RollingInference: getEnvAsBool("FACTORLAB_ROLLING_INFERENCE", false),
		Correlations:     getEnvAsBool("FACTORLAB_CORRELATIONS", true),
		PCAComponents:    getEnvAsInt("FACTORLAB_PCA_COMPONENTS", 5),
		PCAWindow:        getEnvAsInt("FACTORLAB_PCA_WINDOW", 250),
		CacheEnabled:     getEnvAsBool("FACTORLAB_CACHE", true),
		CacheTTL:         getEnvAsDuration("FACTORLAB_CACHE_TTL", 7*24*time.Hour),
		Schedule:         getEnv("FACTORLAB_SCHEDULE", "0 0 6 * * MON-FRI"),
		BatchTimeout:     getEnvAsDuration("FACTORLAB_BATCH_TIMEOUT", 2*time.Hour),
		RawDir:           getEnv("FACTORLAB_RAW_DIR", filepath.Join(absDataDir, "raw")),
		S3: S3Config{
			Bucket:          getEnv("FACTORLAB_S3_BUCKET", ""),
			Endpoint:        getEnv("FACTORLAB_S3_ENDPOINT", ""),
			Region:          getEnv("FACTORLAB_S3_REGION", "auto"),
			AccessKeyID:     getEnv("FACTORLAB_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("FACTORLAB_S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("FACTORLAB_S3_PREFIX", "runs"),
			RetentionDays:   getEnvAsInt("FACTORLAB_S3_RETENTION_DAYS", 30),
			RotateSchedule:  getEnv("FACTORLAB_S3_ROTATE_SCHEDULE", "0 0 3 * * SUN"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ticker", isValidTicker)
	return v
}

// Validate checks field constraints and reports every violation at once
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatValidationError(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func formatValidationError(err validator.FieldError) string {
	field := err.Namespace()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, param)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "ticker":
		return fmt.Sprintf("%s must be a valid ticker symbol", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isValidTicker accepts Yahoo-style symbols such as BRK-B, ^GSPC or EURUSD=X
func isValidTicker(fl validator.FieldLevel) bool {
	ticker := fl.Field().String()
	if len(ticker) < 1 || len(ticker) > 16 {
		return false
	}
	for _, ch := range ticker {
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
		case ch == '.', ch == '-', ch == '^', ch == '=':
		default:
			return false
		}
	}
	return true
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseInts parses a comma-separated list of integers such as "60,120,250"
func ParseInts(value string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func getEnvAsInts(key string, defaultValue []int) ([]int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	out, err := ParseInts(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return out, nil
}
