// Package config loads the lineclient YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cyberinferno/linereactor/client"
	"github.com/cyberinferno/linereactor/logger"
	"gopkg.in/yaml.v3"
)

// Resolver cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// File is the top-level configuration document.
type File struct {
	Client   client.Config  `yaml:"client"`
	Log      LogConfig      `yaml:"log"`
	Resolver ResolverConfig `yaml:"resolver"`
	Simulate SimulateConfig `yaml:"simulate"`
}

// LogConfig selects the logger output.
type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // "console" or "json"
	Service string `yaml:"service"`
}

// ResolverConfig selects where host lookups are cached.
type ResolverConfig struct {
	Backend     string        `yaml:"backend"`
	TTL         time.Duration `yaml:"ttl"`
	RedisAddr   string        `yaml:"redisAddr"`
	RedisPrefix string        `yaml:"redisPrefix"`
}

// SimulateConfig starts local scripted peers instead of, or in addition to,
// the configured addresses.
type SimulateConfig struct {
	Peers  int           `yaml:"peers"`
	Linger time.Duration `yaml:"linger"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		Client: client.DefaultConfig(),
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Service: "lineclient",
		},
		Resolver: ResolverConfig{
			Backend:     BackendMemory,
			TTL:         5 * time.Minute,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "linereactor:resolve:",
		},
		Simulate: SimulateConfig{Linger: time.Second},
	}
}

// Load reads the YAML file at path over Default and validates the result.
//
// Parameters:
//   - path: File to read
//
// Returns:
//   - The merged configuration
//   - An error if the file cannot be read or parsed, or wrapping ErrInvalid
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML data over Default and validates the result.
func Parse(data []byte) (File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config: %w", err)
	}

	f.Client = f.Client.WithDefaults()
	if err := f.Validate(); err != nil {
		return File{}, err
	}

	return f, nil
}

// Validate reports the first invalid field.
func (f File) Validate() error {
	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}

	switch f.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, f.Log.Format)
	}

	switch f.Resolver.Backend {
	case BackendMemory:
	case BackendRedis:
		if f.Resolver.RedisAddr == "" {
			return fmt.Errorf("%w: resolver.redisAddr is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: resolver.backend %q", ErrInvalid, f.Resolver.Backend)
	}

	if f.Simulate.Peers < 0 {
		return fmt.Errorf("%w: simulate.peers must not be negative", ErrInvalid)
	}

	return nil
}
