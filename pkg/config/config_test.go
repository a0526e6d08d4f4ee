package config

import (
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/ssargent/glogstore/pkg/crypt"
	"github.com/ssargent/glogstore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data", config.RootDir)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Bind)
	assert.Equal(t, 2*time.Minute, config.Server.MaintenanceInterval)
	assert.Empty(t, config.Server.APIKey)
	assert.Equal(t, "info", config.Logging.Level)

	require.Len(t, config.Streams, 1)
	s := config.Streams[0]
	assert.Equal(t, "events", s.Proto)
	assert.Equal(t, codec.CompressZlib, s.Compress)
	assert.Equal(t, codec.EncryptNone, s.Encrypt)
	assert.Equal(t, store.DefaultCacheSize, s.CacheSize)
	assert.NoError(t, config.Validate())
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64) // 32 bytes = 64 hex characters

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("load existing config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		expectedConfig := &Config{
			RootDir: "/custom/data",
			Server: Server{
				Port:                9000,
				Bind:                "0.0.0.0",
				APIKey:              "test-api-key",
				MaintenanceInterval: 30 * time.Second,
			},
			Logging: Logging{Level: "debug"},
			Streams: []Stream{
				{Proto: "events", Async: true, Compress: codec.CompressZlib, ExpireSeconds: 60},
				{Proto: "audit", IncrementalArchive: true, MaxArchiveFiles: 10, CacheSize: 8192},
			},
		}

		require.NoError(t, SaveConfig(expectedConfig, configPath))

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, expectedConfig, loadedConfig)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644))

		_, err := LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("load unknown mode", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "modes.yaml")
		data := "root_dir: /data\nstreams:\n  - proto: events\n    compress: lz4\n"
		require.NoError(t, os.WriteFile(configPath, []byte(data), 0644))

		_, err := LoadConfig(configPath)
		assert.ErrorIs(t, err, codec.ErrInvalidMode)
	})

	t.Run("load modes by name", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "modes.yaml")
		data := "root_dir: /data\nsecurity:\n  public_key: abc\nstreams:\n  - proto: events\n    compress: zlib\n    encrypt: aes\n"
		require.NoError(t, os.WriteFile(configPath, []byte(data), 0644))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		s, ok := config.Stream("events")
		require.True(t, ok)
		assert.Equal(t, codec.CompressZlib, s.Compress)
		assert.Equal(t, codec.EncryptAES, s.Encrypt)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing root", func(c *Config) { c.RootDir = "" }, "root_dir is required"},
		{"unnamed stream", func(c *Config) { c.Streams = append(c.Streams, Stream{}) }, "without proto name"},
		{"duplicate stream", func(c *Config) { c.Streams = append(c.Streams, DefaultStream("events")) }, "configured twice"},
		{"aes without key", func(c *Config) { c.Streams[0].Encrypt = codec.EncryptAES }, "public_key is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	config := DefaultConfig()

	require.NoError(t, SaveConfig(config, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestBootstrapConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	rootDir := "/custom/data/dir"

	config, err := BootstrapConfig(configPath, rootDir)
	require.NoError(t, err)

	assert.Equal(t, rootDir, config.RootDir)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "info", config.Logging.Level)

	_, err = hex.DecodeString(config.Server.APIKey)
	assert.NoError(t, err)
	assert.Len(t, config.Server.APIKey, 64)

	_, err = crypt.ParsePublicKey(config.Security.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, KeyFileName), config.Security.PrivateKeyFile)

	info, err := os.Stat(config.Security.PrivateKeyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// The private key must match the public key in the config.
	priv, err := config.PrivateKey()
	require.NoError(t, err)
	key, err := crypt.ParsePrivateKey(priv)
	require.NoError(t, err)
	pub := crypt.EncodePublicKey(key.PubKey())
	assert.Equal(t, config.Security.PublicKey, hex.EncodeToString(pub[:]))

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), priv)

	assert.True(t, ConfigExists(configPath))
	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestStoreConfig(t *testing.T) {
	config := DefaultConfig()
	config.RootDir = "/var/lib/glog"
	config.Security.PublicKey = "pub"
	config.Streams[0].MaxArchiveFiles = 4

	s, ok := config.Stream("events")
	require.True(t, ok)
	sc := config.StoreConfig(s)

	assert.Equal(t, "/var/lib/glog", sc.RootDirectory)
	assert.Equal(t, "events", sc.ProtoName)
	assert.Equal(t, "pub", sc.PublicKey)
	assert.Equal(t, 4, sc.MaxArchiveFiles)
	assert.Equal(t, s.ExpireSeconds, sc.ExpireSeconds)

	_, ok = config.Stream("missing")
	assert.False(t, ok)
}

func TestReadKeyFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("not hex"), 0600))

	_, err := ReadKeyFile(bad)
	assert.ErrorIs(t, err, crypt.ErrInvalidKey)

	_, err = ReadKeyFile(filepath.Join(dir, "missing.key"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	config := DefaultConfig()
	key, err := config.PrivateKey()
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "glog")
	assert.Contains(t, path, "config.yaml")
}

func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingPath := filepath.Join(tmpDir, "exists.yaml")
	nonExistentPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	require.NoError(t, os.WriteFile(existingPath, []byte("test"), 0644))

	assert.True(t, ConfigExists(existingPath))
	assert.False(t, ConfigExists(nonExistentPath))
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := DefaultConfig()
	config.Streams[0].Encrypt = codec.EncryptAES

	data, err := yaml.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "compress: zlib")
	assert.Contains(t, string(data), "encrypt: aes")
	assert.Contains(t, string(data), "maintenance_interval: 2m0s")

	var unmarshalled Config
	require.NoError(t, yaml.Unmarshal(data, &unmarshalled))
	assert.Equal(t, config, &unmarshalled)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	config := DefaultConfig()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	err := SaveConfig(config, filepath.Join(blocker, "nested", "config.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}
