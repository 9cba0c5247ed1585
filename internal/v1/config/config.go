// Package config validates and exposes process environment configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration.
type Config struct {
	// Core settings: JWTSecret is optional (length-checked only when set),
	// Port defaults to 3001
	JWTSecret string
	Port      string

	// Optional variables with defaults
	NodeEnv       string
	LogLevel      string
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Auth0 (optional pluggable token validator, not a product feature)
	Auth0Domain     string
	Auth0Audience   string
	SkipAuth        bool
	DevelopmentMode bool
	AllowedOrigins  string

	// Rate limits
	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIRooms    string
	RateLimitAPIMessages string
	RateLimitWsIP        string
	RateLimitWsUser      string

	// Metadata store (rooms/participants persistence, spec.md §6)
	MetadataStoreURL string

	// Media / WebRTC
	MediaListenIP   string
	MediaAnnounced  string
	MediaRTPMinPort int
	MediaRTPMaxPort int
	ForceTCP        bool

	// HLS
	HLSStoragePath    string
	TranscoderBinPath string

	// Worker pool
	WorkerCount int
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	cfg.Port = getEnvOrDefault("PORT", "3001")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.NodeEnv = getEnvOrDefault("NODE_ENV", "production")
	if cfg.NodeEnv != "development" && cfg.NodeEnv != "production" && cfg.NodeEnv != "test" {
		errs = append(errs, fmt.Sprintf("NODE_ENV must be one of development|production|test (got '%s')", cfg.NodeEnv))
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
	cfg.SkipAuth = os.Getenv("SKIP_AUTH") == "true"
	cfg.DevelopmentMode = cfg.NodeEnv == "development" || os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitAPIMessages = getEnvOrDefault("RATE_LIMIT_API_MESSAGES", "500-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")

	cfg.MetadataStoreURL = os.Getenv("METADATA_STORE_URL")
	if cfg.MetadataStoreURL == "" && cfg.NodeEnv == "production" {
		errs = append(errs, "METADATA_STORE_URL is required in production")
	}

	cfg.MediaListenIP = getEnvOrDefault("MEDIA_LISTEN_IP", "0.0.0.0")
	cfg.MediaAnnounced = getEnvOrDefault("MEDIA_ANNOUNCED_IP", "127.0.0.1")

	minPort, err := strconv.Atoi(getEnvOrDefault("MEDIA_RTP_MIN_PORT", "40000"))
	if err != nil {
		errs = append(errs, "MEDIA_RTP_MIN_PORT must be an integer")
	}
	maxPort, err := strconv.Atoi(getEnvOrDefault("MEDIA_RTP_MAX_PORT", "49999"))
	if err != nil {
		errs = append(errs, "MEDIA_RTP_MAX_PORT must be an integer")
	}
	if minPort >= maxPort {
		errs = append(errs, fmt.Sprintf("MEDIA_RTP_MIN_PORT (%d) must be less than MEDIA_RTP_MAX_PORT (%d)", minPort, maxPort))
	}
	cfg.MediaRTPMinPort = minPort
	cfg.MediaRTPMaxPort = maxPort
	cfg.ForceTCP = os.Getenv("FORCE_TCP") == "true"

	cfg.HLSStoragePath = getEnvOrDefault("HLS_STORAGE_PATH", "/var/lib/media-orchestrator/hls")
	cfg.TranscoderBinPath = getEnvOrDefault("TRANSCODER_BIN_PATH", "ffmpeg")

	workerCount, err := strconv.Atoi(os.Getenv("WORKER_COUNT"))
	if err != nil || workerCount < 1 {
		if cfg.NodeEnv == "development" {
			workerCount = 1
		} else {
			workerCount = 0 // 0 means "use runtime.NumCPU()" at pool construction
		}
	}
	cfg.WorkerCount = workerCount

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"port", cfg.Port,
		"node_env", cfg.NodeEnv,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"metadata_store_url", redactSecret(cfg.MetadataStoreURL),
		"media_rtp_range", fmt.Sprintf("%d-%d", cfg.MediaRTPMinPort, cfg.MediaRTPMaxPort),
		"force_tcp", cfg.ForceTCP,
		"hls_storage_path", cfg.HLSStoragePath,
		"worker_count", cfg.WorkerCount,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
