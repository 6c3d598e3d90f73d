package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Relay     RelayConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Events    EventsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Relay:     relay,
		Log:       loadLogConfig(),
		Telemetry: loadTelemetryConfig(),
		Events:    loadEventsConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	shutdown, err := parseSecondsEnv("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, ShutdownTimeout: shutdown}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, ShutdownTimeout: shutdown}, nil
}

// RelayConfig 描述实时中继（心跳、清理、连接缓冲）相关配置。
type RelayConfig struct {
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	InactivityTimeout time.Duration
	WriteTimeout      time.Duration
	StatsInterval     time.Duration
	SendBuffer        int
	MaxMessageBytes   int64
	AllowedOrigins    []string
}

// DefaultRelayConfig 返回与线上一致的默认值。
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		HeartbeatInterval: 30 * time.Second,
		SweepInterval:     60 * time.Second,
		InactivityTimeout: 5 * time.Minute,
		WriteTimeout:      10 * time.Second,
		StatsInterval:     5 * time.Second,
		SendBuffer:        256,
		MaxMessageBytes:   64 << 10,
		AllowedOrigins:    []string{"*"},
	}
}

// AllowAllOrigins 表示是否放行任意 Origin。
func (c RelayConfig) AllowAllOrigins() bool {
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func loadRelayConfig() (RelayConfig, error) {
	cfg := DefaultRelayConfig()
	var err error

	if cfg.HeartbeatInterval, err = parseSecondsEnv("HEARTBEAT_INTERVAL_SECONDS", cfg.HeartbeatInterval); err != nil {
		return RelayConfig{}, err
	}
	if cfg.SweepInterval, err = parseSecondsEnv("SWEEP_INTERVAL_SECONDS", cfg.SweepInterval); err != nil {
		return RelayConfig{}, err
	}
	if cfg.InactivityTimeout, err = parseSecondsEnv("INACTIVITY_TIMEOUT_SECONDS", cfg.InactivityTimeout); err != nil {
		return RelayConfig{}, err
	}
	if cfg.WriteTimeout, err = parseSecondsEnv("WRITE_TIMEOUT_SECONDS", cfg.WriteTimeout); err != nil {
		return RelayConfig{}, err
	}
	if cfg.StatsInterval, err = parseSecondsEnv("STATS_INTERVAL_SECONDS", cfg.StatsInterval); err != nil {
		return RelayConfig{}, err
	}

	sendBuffer, err := parseOptionalIntEnv("SEND_BUFFER")
	if err != nil {
		return RelayConfig{}, err
	}
	if sendBuffer != nil {
		if *sendBuffer < 1 {
			return RelayConfig{}, fmt.Errorf("invalid SEND_BUFFER value %d: must be positive", *sendBuffer)
		}
		cfg.SendBuffer = *sendBuffer
	}

	maxBytes, err := parseOptionalIntEnv("MAX_MESSAGE_BYTES")
	if err != nil {
		return RelayConfig{}, err
	}
	if maxBytes != nil {
		if *maxBytes < 1 {
			return RelayConfig{}, fmt.Errorf("invalid MAX_MESSAGE_BYTES value %d: must be positive", *maxBytes)
		}
		cfg.MaxMessageBytes = int64(*maxBytes)
	}

	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	// 清理周期必须长于心跳周期，否则刚错过一次 pong 的连接会被误判为不活跃。
	if cfg.SweepInterval <= cfg.HeartbeatInterval {
		return RelayConfig{}, fmt.Errorf("SWEEP_INTERVAL_SECONDS (%s) must be longer than HEARTBEAT_INTERVAL_SECONDS (%s)", cfg.SweepInterval, cfg.HeartbeatInterval)
	}

	return cfg, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
	}
}

// TelemetryConfig 描述 OpenTelemetry 指标导出配置。
type TelemetryConfig struct {
	Endpoint    string
	ServiceName string
}

// Enabled 表示是否配置了 OTLP 导出地址。
func (c TelemetryConfig) Enabled() bool {
	return c.Endpoint != ""
}

func loadTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName: getEnvOrDefault("OTEL_SERVICE_NAME", "momentmap-relay"),
	}
}

// EventsConfig 描述 NATS 事件镜像配置。
type EventsConfig struct {
	NATSURL       string
	SubjectPrefix string
}

// Enabled 表示是否需要把生命周期事件镜像到 NATS。
func (c EventsConfig) Enabled() bool {
	return c.NATSURL != ""
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		NATSURL:       strings.TrimSpace(os.Getenv("NATS_URL")),
		SubjectPrefix: strings.Trim(getEnvOrDefault("NATS_SUBJECT_PREFIX", "momentmap"), "."),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
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

// parseSecondsEnv 读取以秒为单位的整数，缺省时返回 defaultValue。
func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil {
		return defaultValue, nil
	}
	if *seconds < 1 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *seconds)
	}
	return time.Duration(*seconds) * time.Second, nil
}
