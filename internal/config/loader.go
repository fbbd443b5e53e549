package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, a .env file in the working
// directory, the YAML file at path (if path is non-empty), and the HOST and
// PORT environment variables, in that order. The .env values are loaded
// first so ${VAR} references in the YAML can see them.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Download.Dir == "" {
		errs = append(errs, errors.New("download.dir is required"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download.timeout must be positive"))
	}
	if c.Download.JanitorInterval <= 0 {
		errs = append(errs, errors.New("download.janitor_interval must be positive"))
	}
	if c.Download.MaxFileAge <= c.Download.Timeout {
		errs = append(errs, fmt.Errorf("download.max_file_age %s must exceed download.timeout %s", c.Download.MaxFileAge, c.Download.Timeout))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Throttled.Min > c.Retry.Throttled.Max {
		errs = append(errs, fmt.Errorf("retry.throttled_backoff min %s > max %s", c.Retry.Throttled.Min, c.Retry.Throttled.Max))
	}
	if c.Retry.Transient.Min > c.Retry.Transient.Max {
		errs = append(errs, fmt.Errorf("retry.transient_backoff min %s > max %s", c.Retry.Transient.Min, c.Retry.Transient.Max))
	}
	if c.Pacer.MinInterval < 0 {
		errs = append(errs, errors.New("pacer.min_interval must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
