// Package storage keeps the archive catalog of one log stream in pebble.
//
// The catalog is advisory: archive files remain the source of truth, and
// every value here can be rebuilt from file names when it is missing.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
)

const (
	archivePrefix   = "archive/"
	keyRotation     = "meta/rotation"
	keyStreamID     = "meta/stream-id"
	keyCacheCreated = "meta/cache-created"
)

// ArchiveEntry describes one sealed archive file.
type ArchiveEntry struct {
	Name      string
	CreatedAt time.Time
	Records   int64
	Bytes     int64
}

// Catalog is the per-stream metadata store.
type Catalog struct {
	db *pebble.DB
}

// OpenCatalog opens or creates the catalog at dir.
func OpenCatalog(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := pebble.Open(dir, &pebble.Options{Logger: pebbleLogger{logger.With("component", "catalog")}})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) get(key string) ([]byte, bool, error) {
	data, closer, err := c.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), data...), true, nil
}

// StreamID returns the persistent identifier of the stream, creating it on
// first use.
func (c *Catalog) StreamID() (ksuid.KSUID, error) {
	raw, ok, err := c.get(keyStreamID)
	if err != nil {
		return ksuid.Nil, err
	}
	if ok {
		return ksuid.FromBytes(raw)
	}
	id := ksuid.New()
	if err := c.db.Set([]byte(keyStreamID), id.Bytes(), pebble.Sync); err != nil {
		return ksuid.Nil, err
	}
	return id, nil
}

// NextRotation returns the next rotation index, never less than floor, and
// records it as used.
func (c *Catalog) NextRotation(floor uint64) (uint64, error) {
	raw, ok, err := c.get(keyRotation)
	if err != nil {
		return 0, err
	}
	next := floor
	if ok && len(raw) == 8 {
		if stored := binary.LittleEndian.Uint64(raw); stored > next {
			next = stored
		}
	}
	if err := c.db.Set([]byte(keyRotation), binary.LittleEndian.AppendUint64(nil, next+1), pebble.NoSync); err != nil {
		return 0, err
	}
	return next, nil
}

// CacheCreated returns when the current cache file was started.
func (c *Catalog) CacheCreated() (time.Time, bool, error) {
	raw, ok, err := c.get(keyCacheCreated)
	if err != nil || !ok || len(raw) != 8 {
		return time.Time{}, false, err
	}
	return time.Unix(0, int64(binary.LittleEndian.Uint64(raw))), true, nil
}

// SetCacheCreated records when the current cache file was started.
func (c *Catalog) SetCacheCreated(t time.Time) error {
	return c.db.Set([]byte(keyCacheCreated), binary.LittleEndian.AppendUint64(nil, uint64(t.UnixNano())), pebble.NoSync)
}

// Layout: [created unix nanos(8)][records(8)][bytes(8)]
func encodeEntry(e ArchiveEntry) []byte {
	buf := make([]byte, 0, 24)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.CreatedAt.UnixNano()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Records))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Bytes))
	return buf
}

func decodeEntry(name string, raw []byte) (ArchiveEntry, error) {
	if len(raw) != 24 {
		return ArchiveEntry{}, fmt.Errorf("catalog entry %s: bad length %d", name, len(raw))
	}
	return ArchiveEntry{
		Name:      name,
		CreatedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(raw[0:]))),
		Records:   int64(binary.LittleEndian.Uint64(raw[8:])),
		Bytes:     int64(binary.LittleEndian.Uint64(raw[16:])),
	}, nil
}

// Archive looks up one archive by file name.
func (c *Catalog) Archive(name string) (ArchiveEntry, bool, error) {
	raw, ok, err := c.get(archivePrefix + name)
	if err != nil || !ok {
		return ArchiveEntry{}, false, err
	}
	e, err := decodeEntry(name, raw)
	if err != nil {
		return ArchiveEntry{}, false, err
	}
	return e, true, nil
}

// AddArchive records records and bytes appended to an archive. The creation
// time of an existing entry is kept.
func (c *Catalog) AddArchive(e ArchiveEntry) error {
	existing, ok, err := c.Archive(e.Name)
	if err != nil {
		return err
	}
	if ok {
		existing.Records += e.Records
		existing.Bytes += e.Bytes
		e = existing
	}
	return c.db.Set([]byte(archivePrefix+e.Name), encodeEntry(e), pebble.NoSync)
}

// DeleteArchive forgets an archive.
func (c *Catalog) DeleteArchive(name string) error {
	return c.db.Delete([]byte(archivePrefix+name), pebble.NoSync)
}

// Archives lists every catalogued archive ordered by creation time.
func (c *Catalog) Archives() ([]ArchiveEntry, error) {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(archivePrefix),
		UpperBound: []byte(archivePrefix[:len(archivePrefix)-1] + "0"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []ArchiveEntry
	for iter.First(); iter.Valid(); iter.Next() {
		name := strings.TrimPrefix(string(iter.Key()), archivePrefix)
		e, err := decodeEntry(name, iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, iter.Error()
}

// Close flushes and closes the catalog.
func (c *Catalog) Close() error {
	if err := c.db.Flush(); err != nil {
		_ = c.db.Close()
		return err
	}
	return c.db.Close()
}

// pebbleLogger routes pebble's own logging to slog at debug level.
type pebbleLogger struct {
	l *slog.Logger
}

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
	panic(fmt.Sprintf(format, args...))
}
