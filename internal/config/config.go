package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port      string
	Env       string
	JWTSecret string
	JWTIssuer string

	DB           DatabaseConfig
	Redis        RedisConfig
	Registration RegistrationConfig
	Document     DocumentConfig
	Worker       WorkerConfig
	S3           S3Config
	AWS          AWSConfig
	HTTP         HTTPConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RegistrationConfig controls duplicate detection and Community ID allocation.
type RegistrationConfig struct {
	// HouseholdPolicy is "new" (every registrant heads a new household at its
	// address) or "shared" (registrants at the same address join the latest household).
	HouseholdPolicy string
	StoreTimeout    time.Duration
	DefaultZip      string
	ServiceAreaCity string
	StatusCacheTTL  time.Duration
	StatsCacheTTL   time.Duration
}

// DocumentConfig contains upload limits for supporting documents.
type DocumentConfig struct {
	MaxBytes  int64
	FaceCheck bool
}

// WorkerConfig contains interval configuration for background workers.
type WorkerConfig struct {
	NotificationInterval  time.Duration
	NotificationBatchSize int
	NotificationMaxTries  int
}

// S3Config contains AWS S3 configuration for document storage.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// AWSConfig contains AWS general configuration
type AWSConfig struct {
	AccessKeyID       string
	SecretAccessKey   string
	RekognitionRegion string
}

// HTTPConfig contains edge settings for the HTTP server.
type HTTPConfig struct {
	AllowedHosts     []string
	SubmitRateLimit  int
	SubmitRateWindow time.Duration
}

var zipPattern = regexp.MustCompile(`^\d{4}$`)

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Missing .env is fine; production relies on real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.JWTIssuer = getEnv("JWT_ISSUER", "")

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	cfg.Registration = RegistrationConfig{
		HouseholdPolicy: strings.ToLower(getEnv("HOUSEHOLD_POLICY", "new")),
		DefaultZip:      getEnv("DEFAULT_ZIP", "0000"),
		ServiceAreaCity: getEnv("SERVICE_AREA_CITY", "137404000"),
	}

	cfg.Document = DocumentConfig{
		MaxBytes:  int64(getEnvInt("DOCUMENT_MAX_BYTES", 10*1024*1024)),
		FaceCheck: getEnvBool("DOCUMENT_FACE_CHECK", false),
	}

	cfg.S3 = S3Config{
		Region:          getEnv("S3_REGION", "ap-southeast-1"),
		Bucket:          getEnv("S3_BUCKET", "registration-docs"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.AWS = AWSConfig{
		AccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		RekognitionRegion: getEnv("AWS_REKOGNITION_REGION", "ap-southeast-1"),
	}

	cfg.HTTP = HTTPConfig{
		AllowedHosts:    splitList(getEnv("CORS_ALLOWED_HOSTS", "localhost:3000")),
		SubmitRateLimit: getEnvInt("SUBMIT_RATE_LIMIT", 10),
	}

	cfg.Worker.NotificationBatchSize = getEnvInt("NOTIFICATION_BATCH_SIZE", 50)
	cfg.Worker.NotificationMaxTries = getEnvInt("NOTIFICATION_MAX_ATTEMPTS", 5)

	// Durations
	var err error
	if cfg.Registration.StoreTimeout, err = parseDurationEnv("STORE_TIMEOUT", "5s"); err != nil {
		return nil, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}
	if cfg.Registration.StatusCacheTTL, err = parseDurationEnv("STATUS_CACHE_TTL", "5m"); err != nil {
		return nil, fmt.Errorf("invalid STATUS_CACHE_TTL: %w", err)
	}
	if cfg.Registration.StatsCacheTTL, err = parseDurationEnv("STATS_CACHE_TTL", "1m"); err != nil {
		return nil, fmt.Errorf("invalid STATS_CACHE_TTL: %w", err)
	}
	if cfg.Worker.NotificationInterval, err = parseDurationEnv("NOTIFICATION_INTERVAL", "30s"); err != nil {
		return nil, fmt.Errorf("invalid NOTIFICATION_INTERVAL: %w", err)
	}
	if cfg.HTTP.SubmitRateWindow, err = parseDurationEnv("SUBMIT_RATE_WINDOW", "1m"); err != nil {
		return nil, fmt.Errorf("invalid SUBMIT_RATE_WINDOW: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
		return errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set for authentication")
	}
	switch c.Registration.HouseholdPolicy {
	case "new", "shared":
	default:
		return fmt.Errorf("HOUSEHOLD_POLICY must be \"new\" or \"shared\", got %q", c.Registration.HouseholdPolicy)
	}
	if !zipPattern.MatchString(c.Registration.DefaultZip) {
		return errors.New("DEFAULT_ZIP must be exactly 4 digits")
	}
	if c.Registration.StoreTimeout == 0 {
		return errors.New("STORE_TIMEOUT must be greater than zero")
	}
	if c.Document.MaxBytes <= 0 {
		return errors.New("DOCUMENT_MAX_BYTES must be positive")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
