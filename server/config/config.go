package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	ML        MLConfig        `json:"ml" yaml:"ml"`
	Processor ProcessorConfig `json:"processor" yaml:"processor"`
	Stream    StreamConfig    `json:"stream" yaml:"stream"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	Environment     string        `json:"environment" yaml:"environment"`
}

type MLConfig struct {
	BaseURL             string        `json:"base_url" yaml:"base_url"`
	Timeout             time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries          int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay          time.Duration `json:"retry_delay" yaml:"retry_delay"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	PosePath            string        `json:"pose_path" yaml:"pose_path"`
	HandsPath           string        `json:"hands_path" yaml:"hands_path"`
	SerializeDetectors  bool          `json:"serialize_detectors" yaml:"serialize_detectors"`
}

type ProcessorConfig struct {
	Workers        int           `json:"workers" yaml:"workers"`
	QueueSize      int           `json:"queue_size" yaml:"queue_size"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	FlipHorizontal bool          `json:"flip_horizontal" yaml:"flip_horizontal"`
	CacheTTL       time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	CacheSize      int           `json:"cache_size" yaml:"cache_size"`
	FontSize       float64       `json:"font_size" yaml:"font_size"`
}

type StreamConfig struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	JPEGQuality  int           `json:"jpeg_quality" yaml:"jpeg_quality"`
}

type SecurityConfig struct {
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	MaxRequestSize int64    `json:"max_request_size" yaml:"max_request_size"`
	EnableHTTPS    bool     `json:"enable_https" yaml:"enable_https"`
	CertFile       string   `json:"cert_file" yaml:"cert_file"`
	KeyFile        string   `json:"key_file" yaml:"key_file"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			Environment:     "development",
		},
		ML: MLConfig{
			BaseURL:             "http://localhost:8001",
			Timeout:             10 * time.Second,
			MaxRetries:          0,
			RetryDelay:          200 * time.Millisecond,
			HealthCheckInterval: 30 * time.Second,
			PosePath:            "/pose",
			HandsPath:           "/hands",
			SerializeDetectors:  false,
		},
		Processor: ProcessorConfig{
			Workers:        4,
			QueueSize:      32,
			Timeout:        30 * time.Second,
			FlipHorizontal: false,
			CacheTTL:       5 * time.Second,
			CacheSize:      64,
			FontSize:       20,
		},
		Stream: StreamConfig{
			PollInterval: 100 * time.Millisecond,
			JPEGQuality:  80,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   30,
			RateLimitBurst: 60,
			MaxRequestSize: 10 * 1024 * 1024, // 10MB
			EnableHTTPS:    false,
			CertFile:       "",
			KeyFile:        "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by CONFIG_FILE if any, then environment variables. Environment
// variables win over the file.
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.LoadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvAsDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)

	c.ML.BaseURL = getEnv("ML_BASE_URL", c.ML.BaseURL)
	c.ML.Timeout = getEnvAsDuration("ML_TIMEOUT", c.ML.Timeout)
	c.ML.MaxRetries = getEnvAsInt("ML_MAX_RETRIES", c.ML.MaxRetries)
	c.ML.RetryDelay = getEnvAsDuration("ML_RETRY_DELAY", c.ML.RetryDelay)
	c.ML.HealthCheckInterval = getEnvAsDuration("ML_HEALTH_CHECK_INTERVAL", c.ML.HealthCheckInterval)
	c.ML.PosePath = getEnv("ML_POSE_PATH", c.ML.PosePath)
	c.ML.HandsPath = getEnv("ML_HANDS_PATH", c.ML.HandsPath)
	c.ML.SerializeDetectors = getEnvAsBool("ML_SERIALIZE_DETECTORS", c.ML.SerializeDetectors)

	c.Processor.Workers = getEnvAsInt("PROCESSOR_WORKERS", c.Processor.Workers)
	c.Processor.QueueSize = getEnvAsInt("PROCESSOR_QUEUE_SIZE", c.Processor.QueueSize)
	c.Processor.Timeout = getEnvAsDuration("PROCESSOR_TIMEOUT", c.Processor.Timeout)
	c.Processor.FlipHorizontal = getEnvAsBool("FLIP_HORIZONTAL", c.Processor.FlipHorizontal)
	c.Processor.CacheTTL = getEnvAsDuration("DETECTION_CACHE_TTL", c.Processor.CacheTTL)
	c.Processor.CacheSize = getEnvAsInt("DETECTION_CACHE_SIZE", c.Processor.CacheSize)
	c.Processor.FontSize = getEnvAsFloat("OVERLAY_FONT_SIZE", c.Processor.FontSize)

	c.Stream.PollInterval = getEnvAsDuration("STREAM_POLL_INTERVAL", c.Stream.PollInterval)
	c.Stream.JPEGQuality = getEnvAsInt("STREAM_JPEG_QUALITY", c.Stream.JPEGQuality)

	c.Security.AllowedOrigins = getEnvAsStringSlice("ALLOWED_ORIGINS", c.Security.AllowedOrigins)
	c.Security.RateLimitRPS = getEnvAsInt("RATE_LIMIT_RPS", c.Security.RateLimitRPS)
	c.Security.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.Security.RateLimitBurst)
	c.Security.MaxRequestSize = getEnvAsInt64("MAX_REQUEST_SIZE", c.Security.MaxRequestSize)
	c.Security.EnableHTTPS = getEnvAsBool("ENABLE_HTTPS", c.Security.EnableHTTPS)
	c.Security.CertFile = getEnv("CERT_FILE", c.Security.CertFile)
	c.Security.KeyFile = getEnv("KEY_FILE", c.Security.KeyFile)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// LoadFile overlays the YAML document at path onto c. Keys missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.ML.BaseURL == "" {
		errors = append(errors, "ML base URL is required")
	}

	if c.ML.MaxRetries < 0 {
		errors = append(errors, "ML max retries cannot be negative")
	}

	if c.Processor.Workers < 1 {
		errors = append(errors, "processor workers must be at least 1")
	}

	if c.Processor.QueueSize < 0 {
		errors = append(errors, "processor queue size cannot be negative")
	}

	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		errors = append(errors, "stream JPEG quality must be between 1 and 100")
	}

	if c.Stream.PollInterval <= 0 {
		errors = append(errors, "stream poll interval must be positive")
	}

	if c.Security.MaxRequestSize <= 0 {
		errors = append(errors, "max request size must be positive")
	}

	if c.Security.EnableHTTPS && (c.Security.CertFile == "" || c.Security.KeyFile == "") {
		errors = append(errors, "HTTPS requires both cert and key files")
	}

	if c.Server.WriteTimeout > 0 {
		logger.Warn("Server write timeout is set, long-lived video streams will be cut off",
			zap.Duration("write_timeout", c.Server.WriteTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
