package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ssargent/glogstore/pkg/codec"
)

var errCacheClosed = errors.New("cache file is closed")

// openFile opens cache files; tests replace it to inject I/O failures.
var openFile = os.OpenFile

// cacheFile is the live append target of one stream: a V4 file holding a
// header and the frames written since the last rotation.
type cacheFile struct {
	path      string
	file      *os.File
	header    codec.Header
	headerLen int
	capacity  int
	size      int // bytes used, header included
	records   int
	bytes     int64 // stored payload bytes, after compression and encryption
	createdAt time.Time
}

// openCache loads the cache at path, or creates it when it is missing or
// unusable. Frames of an existing cache are counted by a structural scan and
// an unrecoverable tail is cut off.
func openCache(path, proto string, capacity int, now time.Time, logger *slog.Logger) (*cacheFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	header := codec.Header{Version: codec.VersionCipher, ProtoName: proto}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return createCache(path, header, capacity, now)
	case err != nil:
		return nil, err
	}

	h, n, err := codec.DecodeHeader(data)
	if err != nil || h != header {
		logger.Warn("discarding unusable cache file", "file", path, "error", err, "proto", h.ProtoName)
		return createCache(path, header, capacity, now)
	}

	end, records, stored, recovered := scanFrames(data, n, h)
	if recovered > 0 {
		logger.Warn("cache file contained corrupted frames", "file", path, "recovered", recovered)
	}

	file, err := openFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	if end < len(data) {
		logger.Warn("truncating incomplete cache tail", "file", path, "bytes", len(data)-end)
		if err := file.Truncate(int64(end)); err != nil {
			file.Close()
			return nil, err
		}
	}
	createdAt := now
	if st, err := file.Stat(); err == nil {
		createdAt = st.ModTime()
	}

	return &cacheFile{
		path:      path,
		file:      file,
		header:    header,
		headerLen: n,
		capacity:  capacity,
		size:      end,
		records:   records,
		bytes:     stored,
		createdAt: createdAt,
	}, nil
}

// scanFrames walks the frames after the header and returns the end of the
// last intact frame, the number of intact frames, their stored payload bytes
// and the number of resynchronisations.
func scanFrames(data []byte, pos int, h codec.Header) (end, records int, stored int64, recovered int) {
	end = pos
	for pos < len(data) {
		n, body, err := codec.ScanFrame(data[pos:], h)
		if err == nil {
			pos += n
			end = pos
			records++
			stored += int64(body)
			continue
		}
		next := codec.Resync(data[pos+1:])
		if next < 0 {
			break
		}
		pos += 1 + next
		recovered++
	}
	return end, records, stored, recovered
}

func createCache(path string, header codec.Header, capacity int, now time.Time) (*cacheFile, error) {
	buf, err := codec.AppendHeader(nil, header)
	if err != nil {
		return nil, err
	}
	file, err := openFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	if _, err := file.Write(buf); err != nil {
		file.Close()
		return nil, err
	}
	return &cacheFile{
		path:      path,
		file:      file,
		header:    header,
		headerLen: len(buf),
		capacity:  capacity,
		size:      len(buf),
		createdAt: now,
	}, nil
}

// fits reports whether a frame of n bytes can be appended.
func (c *cacheFile) fits(n int) bool {
	return c.size+n <= c.capacity
}

func (c *cacheFile) empty() bool {
	return c.records == 0
}

func (c *cacheFile) append(frame []byte, stored int) error {
	if c.file == nil {
		return errCacheClosed
	}
	if _, err := c.file.WriteAt(frame, int64(c.size)); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	c.size += len(frame)
	c.records++
	c.bytes += int64(stored)
	return nil
}

// frames returns a copy of everything after the header.
func (c *cacheFile) frames() ([]byte, error) {
	if c.file == nil {
		return nil, errCacheClosed
	}
	buf := make([]byte, c.size-c.headerLen)
	if _, err := c.file.ReadAt(buf, int64(c.headerLen)); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

func (c *cacheFile) sync() error {
	if c.file == nil {
		return errCacheClosed
	}
	return c.file.Sync()
}

// close releases the file. A closed cache is reloaded from disk by
// Engine.reopenCacheLocked.
func (c *cacheFile) close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// recreate replaces the cache with an empty one. The old file is unlinked
// rather than truncated so that readers still mapping it stay valid. When
// the unlink fails the file is truncated in place instead.
func (c *cacheFile) recreate(now time.Time) error {
	closeErr := c.close()
	removeErr := os.Remove(c.path)
	if errors.Is(removeErr, os.ErrNotExist) {
		removeErr = nil
	}
	fresh, err := createCache(c.path, c.header, c.capacity, now)
	if err != nil {
		return errors.Join(closeErr, removeErr, err)
	}
	*c = *fresh
	return nil
}
