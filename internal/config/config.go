package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/retry"
)

// Config represents the optional widepath configuration file.
type Config struct {
	Retry      RetryConfig      `toml:"retry"`
	Paths      PathsConfig      `toml:"paths"`
	Walk       WalkConfig       `toml:"walk"`
	Projection ProjectionConfig `toml:"projection"`
}

// RetryConfig holds the default retry policy for transient native failures.
type RetryConfig struct {
	Attempts *int    `toml:"attempts"`
	Delay    *string `toml:"delay"` // time.ParseDuration syntax
}

// PathsConfig controls canonicalization.
type PathsConfig struct {
	// Threshold is the length above which paths take the extended form.
	Threshold *int `toml:"threshold"`
	// WorkingDirectory replaces the process working directory for
	// relative input.
	WorkingDirectory *string `toml:"working_directory"`
	// Drives records per-drive current directories, keyed by drive letter.
	Drives map[string]string `toml:"drives,omitempty"`
}

// WalkConfig holds traversal defaults.
type WalkConfig struct {
	FollowMountPoints  *bool    `toml:"follow_mount_points"`
	FollowSymlinks     *bool    `toml:"follow_symlinks"`
	ContinueOnNotFound *bool    `toml:"continue_on_not_found"`
	OpsLimit           *float64 `toml:"ops_limit"` // native mutations per second, 0 = unlimited
}

// ProjectionConfig configures the host directory the Windows namespace is
// projected onto when not running on Windows.
type ProjectionConfig struct {
	Root *string `toml:"root"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "widepath", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Retry.Attempts != nil && *c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", *c.Retry.Attempts)
	}
	if c.Retry.Delay != nil {
		if _, err := time.ParseDuration(*c.Retry.Delay); err != nil {
			return fmt.Errorf("retry.delay: %w", err)
		}
	}
	if c.Paths.Threshold != nil && *c.Paths.Threshold <= 0 {
		return fmt.Errorf("paths.threshold must be positive, got %d", *c.Paths.Threshold)
	}
	for k := range c.Paths.Drives {
		if len(k) != 1 || !isLetter(k[0]) {
			return fmt.Errorf("paths.drives: %q is not a drive letter", k)
		}
	}
	if c.Walk.OpsLimit != nil && *c.Walk.OpsLimit < 0 {
		return fmt.Errorf("walk.ops_limit must not be negative")
	}
	return nil
}

// RetryPolicy overlays the configured retry settings on def.
func (c Config) RetryPolicy(def retry.Policy) retry.Policy {
	p := def
	if c.Retry.Attempts != nil {
		p.MaxAttempts = *c.Retry.Attempts
	}
	if c.Retry.Delay != nil {
		if d, err := time.ParseDuration(*c.Retry.Delay); err == nil {
			p.Delay = d
		}
	}
	return p
}

// Environment returns the environment relative paths resolve against:
// fallback, unless the file pins a working directory or drive directories.
func (c Config) Environment(fallback pathname.Environment) pathname.Environment {
	if c.Paths.WorkingDirectory == nil && len(c.Paths.Drives) == 0 {
		return fallback
	}
	env := pathname.StaticEnvironment{Drives: make(map[byte]string, len(c.Paths.Drives))}
	if c.Paths.WorkingDirectory != nil {
		env.Dir = *c.Paths.WorkingDirectory
	} else if wd, err := fallback.WorkingDirectory(); err == nil {
		env.Dir = wd
	}
	for k, v := range c.Paths.Drives {
		env.Drives[strings.ToUpper(k)[0]] = v
	}
	return env
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
