package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Write encodes cfg to path, creating the parent directory if needed.
// Unset fields are omitted.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// Defaults returns a Config with every field set to the built-in value, as
// a starting point for a config file.
func Defaults() Config {
	attempts := 3
	delay := "250ms"
	threshold := 260
	follow := false
	continueOnNotFound := false
	opsLimit := 0.0
	return Config{
		Retry: RetryConfig{Attempts: &attempts, Delay: &delay},
		Paths: PathsConfig{Threshold: &threshold},
		Walk: WalkConfig{
			FollowMountPoints:  &follow,
			FollowSymlinks:     &follow,
			ContinueOnNotFound: &continueOnNotFound,
			OpsLimit:           &opsLimit,
		},
	}
}
