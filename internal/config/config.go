package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all worker configuration from environment variables.
type Config struct {
	// External services
	DatabaseURL string
	RedisURL    string

	// Docker connection. A value containing "docker-socket-proxy" switches
	// builder containers to proxy mode (no socket bind-mount).
	DockerHost string

	// Platform
	PlatformDomain  string
	PlatformNetwork string
	Env             string // development, production, test

	// Worker
	Concurrency int
	HealthPort  int

	// Deployment
	MaxLogSizeChars  int
	MemoryLimitBytes int64
	CPUNanoCPUs      int64
	BuilderImage     string
	GHCRToken        string

	// Status lock
	LockTTL        time.Duration
	LockRetries    int
	LockRetryDelay time.Duration
	LockJitter     time.Duration

	// Cleanup
	CleanupCron           string
	ImageRetentionDays    int
	ServiceTombstoneDays  int
	CleanupDanglingImages bool
	CleanupOldImages      bool

	// Observability
	MetricsTextfile string
	LogJSON         bool

	// Notifications (all optional)
	NotifyWebhookURL     string
	NotifySlackWebhook   string
	NotifyDiscordWebhook string
	NotifyOnSuccess      bool
}

// Load reads all configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		DatabaseURL:           envStr("DATABASE_URL", ""),
		RedisURL:              envStr("REDIS_URL", ""),
		DockerHost:            envStr("DOCKER_HOST", "/var/run/docker.sock"),
		PlatformDomain:        envStr("PLATFORM_DOMAIN", "helvetia.cloud"),
		PlatformNetwork:       envStr("PLATFORM_NETWORK", "helvetia-net"),
		Env:                   envStr("NODE_ENV", "development"),
		Concurrency:           envInt("WORKER_CONCURRENCY", 1),
		HealthPort:            envInt("WORKER_HEALTH_PORT", 3003),
		MaxLogSizeChars:       envInt("MAX_LOG_SIZE_CHARS", 50000),
		MemoryLimitBytes:      envInt64("CONTAINER_MEMORY_LIMIT_BYTES", 512*1024*1024),
		CPUNanoCPUs:           envInt64("CONTAINER_CPU_NANOCPUS", 1_000_000_000),
		BuilderImage:          envStr("BUILDER_IMAGE", "docker:27-cli"),
		GHCRToken:             envStr("GHCR_TOKEN", ""),
		LockTTL:               envDuration("STATUS_LOCK_TTL", 10*time.Second),
		LockRetries:           envInt("STATUS_LOCK_RETRIES", 10),
		LockRetryDelay:        envDuration("STATUS_LOCK_RETRY_DELAY", 200*time.Millisecond),
		LockJitter:            envDuration("STATUS_LOCK_RETRY_JITTER", 100*time.Millisecond),
		CleanupCron:           envStr("CLEANUP_CRON", "0 2 * * *"),
		ImageRetentionDays:    envInt("IMAGE_RETENTION_DAYS", 7),
		ServiceTombstoneDays:  envInt("SERVICE_TOMBSTONE_DAYS", 30),
		CleanupDanglingImages: envBool("CLEANUP_DANGLING_IMAGES", true),
		CleanupOldImages:      envBool("CLEANUP_OLD_IMAGES", true),
		MetricsTextfile:       envStr("METRICS_TEXTFILE", ""),
		LogJSON:               envBool("LOG_JSON", false),
		NotifyWebhookURL:      envStr("NOTIFY_WEBHOOK_URL", ""),
		NotifySlackWebhook:    envStr("NOTIFY_SLACK_WEBHOOK", ""),
		NotifyDiscordWebhook:  envStr("NOTIFY_DISCORD_WEBHOOK", ""),
		NotifyOnSuccess:       envBool("NOTIFY_ON_SUCCESS", true),
	}
}

// SocketProxyMode reports whether builders should talk to the daemon through
// a socket proxy instead of a bind-mounted socket.
func (c *Config) SocketProxyMode() bool {
	return strings.Contains(c.DockerHost, "docker-socket-proxy")
}

// Production reports whether the worker runs with production settings.
func (c *Config) Production() bool { return c.Env == "production" }

// Validate checks configuration for invalid values. All violations are
// reported together so a misconfigured deploy fails with one complete message.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	switch c.Env {
	case "development", "production", "test":
		// valid
	default:
		errs = append(errs, fmt.Errorf("NODE_ENV must be development, production, or test, got %q", c.Env))
	}
	if c.Concurrency < 1 || c.Concurrency > 16 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be in [1,16], got %d", c.Concurrency))
	}
	if c.HealthPort < 1024 || c.HealthPort > 65535 {
		errs = append(errs, fmt.Errorf("WORKER_HEALTH_PORT must be in [1024,65535], got %d", c.HealthPort))
	}
	if c.MaxLogSizeChars < 1000 || c.MaxLogSizeChars > 1_000_000 {
		errs = append(errs, fmt.Errorf("MAX_LOG_SIZE_CHARS must be in [1000,1000000], got %d", c.MaxLogSizeChars))
	}
	if c.MemoryLimitBytes < 4*1024*1024 {
		errs = append(errs, fmt.Errorf("CONTAINER_MEMORY_LIMIT_BYTES must be >= 4MiB, got %d", c.MemoryLimitBytes))
	}
	if c.CPUNanoCPUs <= 0 {
		errs = append(errs, fmt.Errorf("CONTAINER_CPU_NANOCPUS must be > 0, got %d", c.CPUNanoCPUs))
	}
	if c.LockTTL < time.Second || c.LockTTL > 60*time.Second {
		errs = append(errs, fmt.Errorf("STATUS_LOCK_TTL must be in [1s,60s], got %s", c.LockTTL))
	}
	if c.LockRetries < 1 || c.LockRetries > 100 {
		errs = append(errs, fmt.Errorf("STATUS_LOCK_RETRIES must be in [1,100], got %d", c.LockRetries))
	}
	if c.LockRetryDelay < 50*time.Millisecond || c.LockRetryDelay > 5*time.Second {
		errs = append(errs, fmt.Errorf("STATUS_LOCK_RETRY_DELAY must be in [50ms,5s], got %s", c.LockRetryDelay))
	}
	if c.LockJitter < 0 || c.LockJitter > time.Second {
		errs = append(errs, fmt.Errorf("STATUS_LOCK_RETRY_JITTER must be in [0,1s], got %s", c.LockJitter))
	}
	if _, err := cron.ParseStandard(c.CleanupCron); err != nil {
		errs = append(errs, fmt.Errorf("CLEANUP_CRON %q is not a valid cron spec: %v", c.CleanupCron, err))
	}
	if c.ImageRetentionDays < 1 || c.ImageRetentionDays > 90 {
		errs = append(errs, fmt.Errorf("IMAGE_RETENTION_DAYS must be in [1,90], got %d", c.ImageRetentionDays))
	}
	if c.ServiceTombstoneDays < 1 || c.ServiceTombstoneDays > 365 {
		errs = append(errs, fmt.Errorf("SERVICE_TOMBSTONE_DAYS must be in [1,365], got %d", c.ServiceTombstoneDays))
	}
	return errors.Join(errs...)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
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

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
