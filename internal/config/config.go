// Package config loads the daemon's configuration from a YAML file merged
// with environment variable overrides, and locates the per-user cache
// directory for the identity key and logs. Adapted from the teacher's
// pkg/client/config.go (YAML file format) and pkg/client/envconfig.go
// (github.com/sethvargo/go-envconfig overrides) and cachedir.go.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the daemon's merged configuration.
type Config struct {
	ExitRouter      string `yaml:"exitRouter" env:"VEILD_EXIT_ROUTER"`
	IdentityKeyPath string `yaml:"identityKeyPath" env:"VEILD_IDENTITY_KEY_PATH"`
	PathCount       int    `yaml:"pathCount" env:"VEILD_PATH_COUNT,default=4"`
	RPCSocketPath   string `yaml:"rpcSocketPath" env:"VEILD_RPC_SOCKET_PATH"`
	LogLevel        string `yaml:"logLevel" env:"VEILD_LOG_LEVEL,default=info"`
	TunnelIfName    string `yaml:"tunnelIfName" env:"VEILD_TUN_IFNAME,default=veild0"`
	LeakGuard       bool   `yaml:"leakGuard" env:"VEILD_LEAK_GUARD,default=true"`
	DNSResolver     string `yaml:"dnsResolver" env:"VEILD_DNS_RESOLVER,default=127.0.0.1:53"`
}

// Load reads path (if it exists) as YAML, then applies environment
// variable overrides on top via envconfig.Process.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := &Config{}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}
	return cfg, nil
}

// CacheDir returns the per-user cache directory for veild state (identity
// key, logs), creating it if necessary. Adapted from the teacher's
// pkg/client/cachedir.go, which uses os.UserCacheDir the same way.
func CacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: user cache dir: %w", err)
	}
	dir := filepath.Join(base, "veild")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// DefaultIdentityKeyPath returns the default location for the session
// identity key when none is configured.
func DefaultIdentityKeyPath() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "identity.key"), nil
}

// DefaultRPCSocketPath returns the default unix socket path for the
// control RPC.
func DefaultRPCSocketPath() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "veild.socket"), nil
}
