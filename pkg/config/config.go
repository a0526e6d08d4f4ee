/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/ssargent/glogstore/pkg/crypt"
	"github.com/ssargent/glogstore/pkg/store"
	"gopkg.in/yaml.v3"
)

// Config represents the glog configuration file
type Config struct {
	RootDir  string   `yaml:"root_dir"`
	Server   Server   `yaml:"server"`
	Security Security `yaml:"security"`
	Logging  Logging  `yaml:"logging"`
	Streams  []Stream `yaml:"streams"`
}

// Server contains the HTTP surface and registry settings
type Server struct {
	Port                int           `yaml:"port"`
	Bind                string        `yaml:"bind"`
	APIKey              string        `yaml:"api_key"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// Security holds the server key pair. The private key never lives in this
// file; only the path to it does.
type Security struct {
	PublicKey      string `yaml:"public_key"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Stream configures one log stream under RootDir
type Stream struct {
	Proto                 string             `yaml:"proto"`
	Async                 bool               `yaml:"async"`
	Compress              codec.CompressMode `yaml:"compress"`
	Encrypt               codec.EncryptMode  `yaml:"encrypt"`
	IncrementalArchive    bool               `yaml:"incremental_archive"`
	ExpireSeconds         int64              `yaml:"expire_seconds"`
	TotalArchiveSizeLimit int64              `yaml:"total_archive_size_limit"`
	MaxArchiveFiles       int                `yaml:"max_archive_files"`
	CacheSize             int                `yaml:"cache_size"`
}

// KeyFileName is the name of the private key file written by BootstrapConfig.
const KeyFileName = "glog.key"

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		RootDir: "./data",
		Server: Server{
			Port:                8080,
			Bind:                "127.0.0.1",
			MaintenanceInterval: store.DefaultMaintenanceInterval,
		},
		Logging: Logging{
			Level: "info",
		},
		Streams: []Stream{DefaultStream("events")},
	}
}

// DefaultStream returns the engine defaults for proto.
func DefaultStream(proto string) Stream {
	d := store.DefaultConfig("", proto)
	return Stream{
		Proto:                 proto,
		Async:                 d.Async,
		Compress:              d.Compress,
		Encrypt:               d.Encrypt,
		ExpireSeconds:         d.ExpireSeconds,
		TotalArchiveSizeLimit: d.TotalArchiveSizeLimit,
		CacheSize:             d.CacheSize,
	}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	// Validate path to prevent directory traversal
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks stream names and encryption settings.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return errors.New("root_dir is required")
	}
	seen := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		if s.Proto == "" {
			return errors.New("stream without proto name")
		}
		if seen[s.Proto] {
			return fmt.Errorf("stream %q is configured twice", s.Proto)
		}
		seen[s.Proto] = true
		if s.Encrypt == codec.EncryptAES && c.Security.PublicKey == "" {
			return fmt.Errorf("stream %q uses aes but security.public_key is empty", s.Proto)
		}
	}
	return nil
}

// Stream returns the configuration of proto.
func (c *Config) Stream(proto string) (Stream, bool) {
	for _, s := range c.Streams {
		if s.Proto == proto {
			return s, true
		}
	}
	return Stream{}, false
}

// StoreConfig turns a stream entry into engine options rooted at RootDir.
func (c *Config) StoreConfig(s Stream) store.Config {
	return store.Config{
		RootDirectory:         c.RootDir,
		ProtoName:             s.Proto,
		Async:                 s.Async,
		Compress:              s.Compress,
		Encrypt:               s.Encrypt,
		PublicKey:             c.Security.PublicKey,
		IncrementalArchive:    s.IncrementalArchive,
		ExpireSeconds:         s.ExpireSeconds,
		TotalArchiveSizeLimit: s.TotalArchiveSizeLimit,
		MaxArchiveFiles:       s.MaxArchiveFiles,
		CacheSize:             s.CacheSize,
	}
}

// PrivateKey reads the hex private key referenced by the config. It returns
// an empty string when no key file is configured.
func (c *Config) PrivateKey() (string, error) {
	if c.Security.PrivateKeyFile == "" {
		return "", nil
	}
	return ReadKeyFile(c.Security.PrivateKeyFile)
}

// ReadKeyFile reads a hex private key written by BootstrapConfig or keygen.
func ReadKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if _, err := crypt.ParsePrivateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// LogLevel maps logging.level to a slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	return ParseLevel(c.Logging.Level)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates a new configuration with a fresh server key pair
// and API key. The private key is written next to the config file.
func BootstrapConfig(configPath string, rootDir string) (*Config, error) {
	config := DefaultConfig()
	if rootDir != "" {
		config.RootDir = rootDir
	}

	pair, err := crypt.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate server key pair: %w", err)
	}
	keyPath, err := filepath.Abs(filepath.Join(filepath.Dir(configPath), KeyFileName))
	if err != nil {
		return nil, fmt.Errorf("invalid key path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(pair.PrivateKey+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}
	config.Security.PublicKey = pair.PublicKey
	config.Security.PrivateKeyFile = keyPath

	apiKey, err := GenerateSecureKey(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Server.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./glog.yaml"
	}

	// For Linux/macOS, use ~/.config/glog/config.yaml
	configDir := filepath.Join(homeDir, ".config", "glog")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
