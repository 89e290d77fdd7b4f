package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName     string
	Environment     string
	CoreDatabaseURL string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string

	TemporalAddress       string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	// HarbourmasterURL is the base URL of the build service that commits
	// containers into images and runs live containers.
	HarbourmasterURL     string
	HarbourmasterTimeout time.Duration
	DockerRegistry       string

	// ContainerTimeout is how long an unsaved container counts as active.
	ContainerTimeout time.Duration
	// CleanupRetention is the age after which unsaved containers are purged
	// on a first-run cleanup.
	CleanupRetention time.Duration

	SendgridAPIKey string
	SendgridHost   string
	EmailFrom      string

	FixtureS3Endpoint  string
	FixtureS3Region    string
	FixtureS3AccessKey string
	FixtureS3SecretKey string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:     getEnv("SERVICE_NAME", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),
		CoreDatabaseURL: getEnv("CORE_DATABASE_URL", ""),
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),

		HarbourmasterURL: strings.TrimRight(getEnv("HARBOURMASTER_URL", "http://localhost:4242"), "/"),
		DockerRegistry:   getEnv("DOCKER_REGISTRY", "registry.localhost:5000"),

		SendgridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		SendgridHost:   getEnv("SENDGRID_HOST", "https://api.sendgrid.com"),
		EmailFrom:      getEnv("EMAIL_FROM", "moderators@runnable.com"),

		FixtureS3Endpoint:  getEnv("FIXTURE_S3_ENDPOINT", ""),
		FixtureS3Region:    getEnv("FIXTURE_S3_REGION", "us-east-1"),
		FixtureS3AccessKey: getEnv("FIXTURE_S3_ACCESS_KEY", ""),
		FixtureS3SecretKey: getEnv("FIXTURE_S3_SECRET_KEY", ""),
	}

	var err error
	if cfg.HarbourmasterTimeout, err = getDuration("HARBOURMASTER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ContainerTimeout, err = getDuration("CONTAINER_TIMEOUT", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CleanupRetention, err = getDuration("CLEANUP_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the values the given binary depends on are present.
func (c *Config) Validate(service string) error {
	var missing []string
	if c.CoreDatabaseURL == "" {
		missing = append(missing, "CORE_DATABASE_URL")
	}
	if c.HarbourmasterURL == "" {
		missing = append(missing, "HARBOURMASTER_URL")
	}
	switch service {
	case "core-api", "worker":
		if c.TemporalAddress == "" {
			missing = append(missing, "TEMPORAL_ADDRESS")
		}
	}
	if service == "worker" && c.SendgridAPIKey == "" {
		missing = append(missing, "SENDGRID_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required config: %s", service, strings.Join(missing, ", "))
	}
	return nil
}

// IsProduction reports whether diagnostic detail must be hidden from clients.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
