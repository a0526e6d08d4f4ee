package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ssargent/glogstore/pkg/storage"
)

// archiveInfo is one archive file found on disk.
type archiveInfo struct {
	path    string
	name    string
	size    int64
	created time.Time
	index   uint64
	daily   bool
}

// collectLocked lists the archives of the stream, oldest first, and their
// total size. Creation time comes from the catalog, then the file name, then
// the modification time.
func (e *Engine) collectLocked() ([]archiveInfo, int64) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		e.logger.Error("failed to list archives", "error", err)
		return nil, 0
	}

	catalogued := make(map[string]storage.ArchiveEntry)
	if list, err := e.catalog.Archives(); err != nil {
		e.logger.Warn("catalog unavailable, using file names", "error", err)
	} else {
		for _, c := range list {
			catalogued[c.Name] = c
		}
	}

	var (
		out   []archiveInfo
		total int64
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parsed, ok := parseArchiveName(e.cfg.ProtoName, entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		a := archiveInfo{
			path:    filepath.Join(e.root, entry.Name()),
			name:    entry.Name(),
			size:    fi.Size(),
			created: parsed.created,
			index:   parsed.index,
			daily:   parsed.daily,
		}
		if c, ok := catalogued[a.name]; ok {
			a.created = c.CreatedAt
		} else if a.created.IsZero() {
			a.created = fi.ModTime()
		}
		out = append(out, a)
		total += a.size
	}
	sortArchives(out, OrderAscending)
	return out, total
}

func sortArchives(list []archiveInfo, order FileOrder) {
	less := func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.created.Equal(b.created) {
			return a.created.Before(b.created)
		}
		if a.index != b.index {
			return a.index < b.index
		}
		return a.name < b.name
	}
	switch order {
	case OrderAscending:
		sort.SliceStable(list, less)
	case OrderDescending:
		sort.SliceStable(list, func(i, j int) bool { return less(j, i) })
	}
}

// removeLocked deletes one archive. Failures are logged; a file that is
// already gone counts as removed.
func (e *Engine) removeLocked(a archiveInfo, reason string) bool {
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Error("failed to remove archive", "file", a.path, "reason", reason, "error", err)
		return false
	}
	if err := e.catalog.DeleteArchive(a.name); err != nil {
		e.logger.Warn("failed to uncatalog archive", "file", a.name, "error", err)
	}
	e.removed.Add(1)
	e.logger.Debug("removed archive", "file", a.path, "reason", reason)
	return true
}

// sweepLocked applies expiration, then the size budget, then the file count
// cap. Archives held open by a reader of this instance are neither removed
// nor counted.
func (e *Engine) sweepLocked(now time.Time) int {
	all, _ := e.collectLocked()
	var (
		archives []archiveInfo
		total    int64
	)
	for _, a := range all {
		if e.isReading(a.path) {
			continue
		}
		archives = append(archives, a)
		total += a.size
	}
	if len(archives) == 0 {
		return 0
	}
	removed := 0

	if e.cfg.ExpireSeconds > 0 {
		window := time.Duration(e.cfg.ExpireSeconds) * time.Second
		kept := archives[:0]
		for _, a := range archives {
			if now.Sub(a.created) > window && e.removeLocked(a, "expired") {
				total -= a.size
				removed++
				continue
			}
			kept = append(kept, a)
		}
		archives = kept
	}

	if limit := e.cfg.TotalArchiveSizeLimit; limit > 0 && total > limit {
		kept := archives[:0]
		for _, a := range archives {
			if total > limit && e.removeLocked(a, "size limit") {
				total -= a.size
				removed++
				continue
			}
			kept = append(kept, a)
		}
		archives = kept
	}

	if maxFiles := e.cfg.MaxArchiveFiles; maxFiles > 0 && len(archives) > maxFiles {
		excess := len(archives) - maxFiles
		for _, a := range archives {
			if excess == 0 {
				break
			}
			if e.removeLocked(a, "file count") {
				excess--
				removed++
			}
		}
	}
	return removed
}

// ArchiveSnapshot optionally rotates the cache, applies retention and lists
// the remaining archives.
func (e *Engine) ArchiveSnapshot(cond SnapshotCondition, order FileOrder) (Snapshot, error) {
	var snap Snapshot
	err := e.do(func() error {
		records, size := e.cache.records, e.cache.bytes
		flush := cond.Flush && (int64(cond.MinRecords) <= int64(records) || cond.MinBytes <= size)

		msg := fmt.Sprintf("get archive snapshot condition[flush:%t, totalLogSize:%d, minLogNum:%d, order:%s]",
			cond.Flush, cond.MinBytes, cond.MinRecords, order)
		if cond.Flush && !flush {
			msg += ", skip flush"
			if cond.MinRecords > records {
				msg += fmt.Sprintf(", insufficient log num:%d", records)
			}
			if cond.MinBytes > size {
				msg += fmt.Sprintf(", insufficient log size:%d", size)
			}
		}

		var flushErr error
		if flush {
			if flushErr = e.rotateLocked(); flushErr != nil {
				msg += ", flush failed: " + flushErr.Error()
			}
		}
		e.sweepLocked(e.clock.Now())

		archives, _ := e.collectLocked()
		sortArchives(archives, order)
		snap.Files = make([]string, len(archives))
		for i, a := range archives {
			snap.Files[i] = a.path
		}
		snap.Status = msg + fmt.Sprintf(", snapshot files num:%d", len(snap.Files))
		return flushErr
	})
	return snap, err
}

// ResetExpireSeconds changes the retention window and immediately removes
// archives that are overdue under the new value. Zero disables expiration.
func (e *Engine) ResetExpireSeconds(seconds int64) (int, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("%w: negative expire seconds", ErrInvalidConfig)
	}
	var removed int
	err := e.do(func() error {
		e.cfg.ExpireSeconds = seconds
		if seconds == 0 {
			return nil
		}
		window := time.Duration(seconds) * time.Second
		now := e.clock.Now()
		archives, _ := e.collectLocked()
		for _, a := range archives {
			if now.Sub(a.created) > window && !e.isReading(a.path) && e.removeLocked(a, "expired") {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// RemoveAll deletes every archive, skipping files being read unless
// removeReading is set. With reloadCache the cached records are dropped too.
func (e *Engine) RemoveAll(removeReading, reloadCache bool) error {
	return e.do(func() error {
		archives, _ := e.collectLocked()
		for _, a := range archives {
			if !removeReading && e.isReading(a.path) {
				continue
			}
			e.removeLocked(a, "remove all")
		}
		if reloadCache && !e.cache.empty() {
			if err := e.cache.recreate(e.clock.Now()); err != nil {
				return err
			}
			e.recordCacheCreated()
			return e.newSessionLocked()
		}
		return nil
	})
}

// RemoveArchive deletes one archive of this stream.
func (e *Engine) RemoveArchive(path string, removeReading bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if filepath.Dir(abs) != e.root {
		return fmt.Errorf("%w: %s", ErrNotArchive, path)
	}
	parsed, ok := parseArchiveName(e.cfg.ProtoName, filepath.Base(abs))
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotArchive, path)
	}
	return e.do(func() error {
		if !removeReading && e.isReading(abs) {
			return nil
		}
		a := archiveInfo{path: abs, name: filepath.Base(abs), index: parsed.index}
		if !e.removeLocked(a, "explicit") {
			return fmt.Errorf("failed to remove %s", path)
		}
		return nil
	})
}

// ArchivesOfDate lists the archives created on the local calendar day of t.
func (e *Engine) ArchivesOfDate(t time.Time) ([]string, error) {
	var out []string
	err := e.do(func() error {
		archives, _ := e.collectLocked()
		for _, a := range archives {
			created := a.created
			if a.daily {
				// A daily file belongs to the day in its name.
				if p, ok := parseArchiveName(e.cfg.ProtoName, a.name); ok {
					created = p.created
				}
			}
			if sameDay(created, t) {
				out = append(out, a.path)
			}
		}
		return nil
	})
	return out, err
}

// maintain runs the periodic work of the instance.
func (e *Engine) maintain() error {
	return e.do(func() error {
		now := e.clock.Now()
		err := e.crossDayLocked(now)
		e.sweepLocked(now)
		return err
	})
}
