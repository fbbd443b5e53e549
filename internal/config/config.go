package config

import (
	"net"
	"strconv"
	"time"

	"ytaudio/internal/failure"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Download DownloadConfig `yaml:"download"`
	Retry    RetryConfig    `yaml:"retry"`
	Pacer    PacerConfig    `yaml:"pacer"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type DownloadConfig struct {
	Dir             string        `yaml:"dir"`
	Binary          string        `yaml:"binary"`
	CookiesFile     string        `yaml:"cookies_file"`
	Timeout         time.Duration `yaml:"timeout"`
	Retries         int           `yaml:"retries"`
	FragmentRetries int           `yaml:"fragment_retries"`
	SleepRequests   time.Duration `yaml:"sleep_requests"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	MaxFileAge      time.Duration `yaml:"max_file_age"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Throttled   failure.Range `yaml:"throttled_backoff"`
	Transient   failure.Range `yaml:"transient_backoff"`
}

// Policies converts the retry section into failure policies.
func (r RetryConfig) Policies() failure.Policies {
	return failure.Policies{Throttled: r.Throttled, Transient: r.Transient}
}

type PacerConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	p := failure.DefaultPolicies()
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			RequestsPerSecond: 100,
			Burst:             200,
			ShutdownTimeout:   10 * time.Second,
		},
		Download: DownloadConfig{
			Dir:             "downloads",
			Binary:          "yt-dlp",
			CookiesFile:     "cookies.txt",
			Timeout:         300 * time.Second,
			Retries:         3,
			FragmentRetries: 3,
			SleepRequests:   time.Second,
			JanitorInterval: 10 * time.Minute,
			MaxFileAge:      time.Hour,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Throttled:   p.Throttled,
			Transient:   p.Transient,
		},
		Pacer: PacerConfig{MinInterval: 2 * time.Second},
		Redis: RedisConfig{Key: "ytaudio:pacer:last_start"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
