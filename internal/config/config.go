package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server      ServerConfig
	Webhook     WebhookConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Environment string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	webhook, err := loadWebhookConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	environment := strings.ToLower(getEnvOrDefault("APP_ENV", EnvDevelopment))

	log, err := loadLogConfig(environment)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:      server,
		Webhook:     webhook,
		RateLimit:   rateLimit,
		Log:         log,
		Environment: environment,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr              string
	TrustProxyHeaders bool
	AllowedOrigins    []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	trustProxy, err := parseBoolEnv("TRUST_PROXY_HEADERS", true)
	if err != nil {
		return ServerConfig{}, err
	}

	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	cfg := ServerConfig{TrustProxyHeaders: trustProxy, AllowedOrigins: origins}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// WebhookConfig 描述转发目标。
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// Configured 判断是否配置了转发地址
func (c WebhookConfig) Configured() bool {
	return c.URL != ""
}

func loadWebhookConfig() (WebhookConfig, error) {
	timeout, err := parseOptionalIntEnv("WEBHOOK_TIMEOUT")
	if err != nil {
		return WebhookConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		if *timeout < 1 {
			return WebhookConfig{}, fmt.Errorf("invalid WEBHOOK_TIMEOUT value %d: must be positive", *timeout)
		}
		timeoutSeconds = *timeout
	}

	url := strings.TrimSpace(os.Getenv("WEBHOOK_URL"))
	if url == "" {
		url = strings.TrimSpace(os.Getenv("N8N_WEBHOOK_URL"))
	}

	return WebhookConfig{
		URL:     url,
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// RateLimitConfig 描述固定窗口限流参数。
type RateLimitConfig struct {
	Limit         int
	Window        time.Duration
	SweepInterval time.Duration
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	cfg := RateLimitConfig{
		Limit:         10,
		Window:        time.Minute,
		SweepInterval: time.Minute,
	}

	limit, err := parseOptionalIntEnv("RATE_LIMIT_MAX")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if limit != nil {
		if *limit < 1 {
			return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_MAX value %d: must be at least 1", *limit)
		}
		cfg.Limit = *limit
	}

	windowMillis, err := parseOptionalIntEnv("RATE_LIMIT_WINDOW_MS")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if windowMillis != nil {
		if *windowMillis < 1 {
			return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_WINDOW_MS value %d: must be at least 1", *windowMillis)
		}
		cfg.Window = time.Duration(*windowMillis) * time.Millisecond
	}

	// 0 关闭定期清理
	sweep, err := parseOptionalIntEnv("RATE_LIMIT_SWEEP_SECONDS")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if sweep != nil {
		if *sweep < 0 {
			return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_SWEEP_SECONDS value %d", *sweep)
		}
		cfg.SweepInterval = time.Duration(*sweep) * time.Second
	}

	return cfg, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig(environment string) (LogConfig, error) {
	level, format := "info", "json"
	if environment == EnvDevelopment {
		level, format = "debug", "console"
	}

	cfg := LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", level)),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", format)),
	}

	switch cfg.Format {
	case "console", "json":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", cfg.Format)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
