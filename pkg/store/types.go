package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/ssargent/glogstore/pkg/crypt"
)

const (
	// DefaultCacheSize is 32 pages.
	DefaultCacheSize             = 32 * 4096
	DefaultExpireSeconds         = 7 * 24 * 60 * 60
	DefaultTotalArchiveSizeLimit = 16 * 1024 * 1024

	// ArchiveSuffix ends every archive file name.
	ArchiveSuffix = ".glog"
	// CacheSuffix ends the cache file name.
	CacheSuffix   = ".glogcache"
	catalogSuffix = ".catalog"
)

// Config holds the options of one engine instance.
type Config struct {
	RootDirectory string // Base path for cache, archive and catalog files
	ProtoName     string // Stream identity, used in file names

	Async     bool // Queue writes to a background worker
	Compress  codec.CompressMode
	Encrypt   codec.EncryptMode
	PublicKey string // Server public key, hex x||y; required for AES

	IncrementalArchive    bool  // One archive per day instead of one per rotation
	ExpireSeconds         int64 // 0 disables expiration
	TotalArchiveSizeLimit int64 // 0 disables the size budget
	MaxArchiveFiles       int   // 0 disables the file count cap
	CacheSize             int   // Cache capacity in bytes, header included
}

// DefaultConfig returns the configuration used when only an identity is known.
func DefaultConfig(root, proto string) Config {
	return Config{
		RootDirectory:         root,
		ProtoName:             proto,
		Async:                 true,
		Compress:              codec.CompressZlib,
		Encrypt:               codec.EncryptNone,
		ExpireSeconds:         DefaultExpireSeconds,
		TotalArchiveSizeLimit: DefaultTotalArchiveSizeLimit,
		CacheSize:             DefaultCacheSize,
	}
}

// Validate checks the configuration and fills in the cache size default.
func (c *Config) Validate() error {
	if c.RootDirectory == "" {
		return fmt.Errorf("%w: root directory is required", ErrInvalidConfig)
	}
	if c.ProtoName == "" {
		return fmt.Errorf("%w: proto name is required", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.ProtoName, `/\`) || c.ProtoName == "." || c.ProtoName == ".." {
		return fmt.Errorf("%w: proto name %q is not a plain file name", ErrInvalidConfig, c.ProtoName)
	}
	if c.Compress > codec.CompressZlib || c.Encrypt > codec.EncryptAES {
		return codec.ErrInvalidMode
	}
	if c.Encrypt == codec.EncryptAES {
		if c.PublicKey == "" {
			return fmt.Errorf("%w: aes requires a server public key", ErrInvalidConfig)
		}
		if _, err := crypt.ParsePublicKey(c.PublicKey); err != nil {
			return err
		}
	}
	if c.ExpireSeconds < 0 || c.TotalArchiveSizeLimit < 0 || c.MaxArchiveFiles < 0 || c.CacheSize < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}
	return nil
}

type identity struct {
	root  string
	proto string
}

func (c Config) identity() identity {
	root := filepath.Clean(c.RootDirectory)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return identity{root: root, proto: c.ProtoName}
}

// FileOrder selects the ordering of snapshot files.
type FileOrder int

const (
	OrderNone FileOrder = iota
	OrderAscending
	OrderDescending
)

func (o FileOrder) String() string {
	switch o {
	case OrderAscending:
		return "Ascending"
	case OrderDescending:
		return "Descending"
	default:
		return "None"
	}
}

// ParseFileOrder accepts asc, desc and none.
func ParseFileOrder(s string) (FileOrder, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return OrderNone, nil
	case "asc", "ascending":
		return OrderAscending, nil
	case "desc", "descending":
		return OrderDescending, nil
	default:
		return OrderNone, fmt.Errorf("%w: unknown order %q", ErrInvalidConfig, s)
	}
}

// SnapshotCondition decides whether a snapshot rotates the cache first.
// With Flush set, the cache is rotated when it holds at least MinRecords
// records or at least MinBytes payload bytes; zero thresholds always flush.
type SnapshotCondition struct {
	Flush      bool
	MinRecords int
	MinBytes   int64
}

// Snapshot is the result of ArchiveSnapshot.
type Snapshot struct {
	Files  []string
	Status string
}

// Stats is a point-in-time view of one instance.
type Stats struct {
	ID             string    `json:"id"`
	StreamID       string    `json:"stream_id"`
	ProtoName      string    `json:"proto_name"`
	Sequence       uint64    `json:"sequence"`
	CacheRecords   int       `json:"cache_records"`
	CacheBytes     int       `json:"cache_bytes"`
	CacheCreatedAt time.Time `json:"cache_created_at"`
	ArchiveFiles   int       `json:"archive_files"`
	ArchiveBytes   int64     `json:"archive_bytes"`
	QueueDepth     int       `json:"queue_depth"`
	Rotations      uint64    `json:"rotations"`
	Rejected       uint64    `json:"rejected"`
	WriteFailures  uint64    `json:"write_failures"`
	RemovedFiles   uint64    `json:"removed_files"`
	References     int       `json:"references"`
}

// Errors
var (
	ErrClosed         = &StoreError{"instance is closed"}
	ErrInvalidConfig  = &StoreError{"invalid configuration"}
	ErrCacheTooSmall  = &StoreError{"record does not fit an empty cache"}
	ErrBufferTooSmall = &StoreError{"read buffer too small for record"}
	ErrProtoMismatch  = &StoreError{"file belongs to another stream"}
	ErrNotArchive     = &StoreError{"not an archive of this stream"}

	ErrEmptyRecord    = codec.ErrEmptyRecord
	ErrRecordTooLarge = codec.ErrRecordTooLarge
)

// StoreError represents an engine error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}

// Is lets ErrProtoMismatch match codec.ErrFormat.
func (e *StoreError) Is(target error) bool {
	return e == ErrProtoMismatch && target == codec.ErrFormat
}
