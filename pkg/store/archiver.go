package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/ssargent/glogstore/pkg/storage"
)

const (
	dailyLayout   = "20060102"
	rotatedLayout = "20060102150405"
)

// dailyArchiveName is <proto>-yyyyMMdd.glog in local time.
func dailyArchiveName(proto string, t time.Time) string {
	return fmt.Sprintf("%s-%s%s", proto, t.Local().Format(dailyLayout), ArchiveSuffix)
}

// rotatedArchiveName is <proto>-yyyyMMddHHmmssSSS-NNNNNN.glog in local time.
func rotatedArchiveName(proto string, t time.Time, index uint64) string {
	lt := t.Local()
	return fmt.Sprintf("%s-%s%03d-%06d%s", proto, lt.Format(rotatedLayout), lt.Nanosecond()/int(time.Millisecond), index, ArchiveSuffix)
}

type parsedName struct {
	daily   bool
	created time.Time
	index   uint64
}

// parseArchiveName recognises both archive name forms of proto.
func parseArchiveName(proto, name string) (parsedName, bool) {
	rest, ok := strings.CutPrefix(name, proto+"-")
	if !ok {
		return parsedName{}, false
	}
	rest, ok = strings.CutSuffix(rest, ArchiveSuffix)
	if !ok {
		return parsedName{}, false
	}

	if len(rest) == len(dailyLayout) && allDigits(rest) {
		t, err := time.ParseInLocation(dailyLayout, rest, time.Local)
		if err != nil {
			return parsedName{}, false
		}
		return parsedName{daily: true, created: t}, true
	}

	stamp, idx, ok := strings.Cut(rest, "-")
	if !ok || len(stamp) != len(rotatedLayout)+3 || !allDigits(stamp) || idx == "" || !allDigits(idx) {
		return parsedName{}, false
	}
	t, err := time.ParseInLocation(rotatedLayout, stamp[:len(rotatedLayout)], time.Local)
	if err != nil {
		return parsedName{}, false
	}
	ms, _ := strconv.Atoi(stamp[len(rotatedLayout):])
	index, err := strconv.ParseUint(idx, 10, 64)
	if err != nil {
		return parsedName{}, false
	}
	return parsedName{created: t.Add(time.Duration(ms) * time.Millisecond), index: index}, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

// scanRotationFloor returns one past the highest rotation index on disk.
func (e *Engine) scanRotationFloor() uint64 {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return 0
	}
	var floor uint64
	for _, entry := range entries {
		p, ok := parseArchiveName(e.cfg.ProtoName, entry.Name())
		if ok && !p.daily && p.index+1 > floor {
			floor = p.index + 1
		}
	}
	return floor
}

func (e *Engine) nextRotationIndex() uint64 {
	idx, err := e.catalog.NextRotation(e.rotationFloor)
	if err != nil {
		e.logger.Warn("catalog rotation index unavailable", "error", err)
		idx = e.rotationFloor
	}
	e.rotationFloor = idx + 1
	return idx
}

// crossDayLocked seals a cache started on an earlier day so that a daily
// archive never mixes days.
func (e *Engine) crossDayLocked(now time.Time) error {
	if !e.cfg.IncrementalArchive || sameDay(e.cache.createdAt, now) {
		return nil
	}
	if e.cache.empty() {
		e.cache.createdAt = now
		e.recordCacheCreated()
		return nil
	}
	return e.rotateLocked()
}

// rotateLocked seals the cache into an archive and starts a fresh cache.
// An empty cache is left alone.
func (e *Engine) rotateLocked() error {
	if err := e.reopenCacheLocked(); err != nil {
		return err
	}
	if e.cache.empty() {
		return nil
	}
	now := e.clock.Now()

	var err error
	if e.cfg.IncrementalArchive {
		err = e.appendToDailyLocked(now)
	} else {
		err = e.renameToArchiveLocked(now)
	}
	if err != nil {
		e.logger.Error("rotation failed", "error", err)
		return fmt.Errorf("rotate: %w", err)
	}
	e.rotations.Add(1)
	e.recordCacheCreated()
	if err := e.newSessionLocked(); err != nil {
		return err
	}
	e.sweepLocked(now)
	return nil
}

// renameToArchiveLocked turns the cache file itself into a new archive.
func (e *Engine) renameToArchiveLocked(now time.Time) error {
	name := rotatedArchiveName(e.cfg.ProtoName, now, e.nextRotationIndex())
	dst := filepath.Join(e.root, name)
	records, size := e.cache.records, e.cache.size

	if err := e.cache.sync(); err != nil {
		return err
	}
	if err := e.cache.close(); err != nil {
		return err
	}
	if err := os.Remove(dst); err == nil {
		e.logger.Warn("replaced existing archive", "file", dst)
	}
	if err := os.Rename(e.cachePath(), dst); err != nil {
		reopened, rerr := openCache(e.cachePath(), e.cfg.ProtoName, e.cfg.CacheSize, now, e.logger)
		if rerr != nil {
			return errors.Join(err, rerr)
		}
		e.cache = reopened
		return err
	}

	// The records are archived from here on; a failed create leaves the cache
	// closed and the next operation reopens it.
	fresh, err := createCache(e.cachePath(), e.cache.header, e.cfg.CacheSize, now)
	if err != nil {
		e.cache.records, e.cache.bytes, e.cache.size = 0, 0, e.cache.headerLen
	} else {
		e.cache = fresh
	}

	if err := e.catalog.AddArchive(storage.ArchiveEntry{Name: name, CreatedAt: now, Records: int64(records), Bytes: int64(size)}); err != nil {
		e.logger.Warn("failed to catalog archive", "file", name, "error", err)
	}
	e.logger.Debug("rotated cache", "file", name, "records", records)
	return err
}

// appendToDailyLocked appends the cache frames to the archive of the day the
// cache was started, then replaces the cache.
func (e *Engine) appendToDailyLocked(now time.Time) error {
	day := e.cache.createdAt
	name := dailyArchiveName(e.cfg.ProtoName, day)
	path := filepath.Join(e.root, name)

	frames, err := e.cache.frames()
	if err != nil {
		return err
	}
	f, err := openDailyArchive(path, e.cache.header)
	if err != nil {
		return err
	}
	if _, err := f.Write(frames); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	entry := storage.ArchiveEntry{Name: name, CreatedAt: day, Records: int64(e.cache.records), Bytes: int64(len(frames))}
	if err := e.catalog.AddArchive(entry); err != nil {
		e.logger.Warn("failed to catalog archive", "file", name, "error", err)
	}
	e.logger.Debug("appended cache to daily archive", "file", name, "records", e.cache.records)
	return e.cache.recreate(now)
}

// openDailyArchive opens path for appending, writing a header when the file
// is new and recreating it when its header belongs to something else.
func openDailyArchive(path string, header codec.Header) (*os.File, error) {
	want, err := codec.AppendHeader(nil, header)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if st.Size() > 0 {
		got := make([]byte, len(want))
		_, rerr := io.ReadFull(f, got)
		h, _, herr := codec.DecodeHeader(got)
		if rerr == nil && herr == nil && h == header {
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				f.Close()
				return nil, err
			}
			return f, nil
		}
		// Unlink rather than truncate: readers may still map the old file.
		f.Close()
		if err := os.Remove(path); err != nil {
			return nil, err
		}
		if f, err = os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600); err != nil {
			return nil, err
		}
	}

	if _, err := f.Write(want); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
