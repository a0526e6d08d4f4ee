package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/glogstore/pkg/clock"
	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/ssargent/glogstore/pkg/crypt"
	"github.com/ssargent/glogstore/pkg/storage"
)

// Engine is the live instance of one log stream. All mutations go through a
// single point: the instance lock in synchronous mode, or the instance worker
// in asynchronous mode. Engines are created and shared by a Registry.
type Engine struct {
	cfg      Config
	ident    identity
	root     string
	id       ksuid.KSUID
	streamID ksuid.KSUID
	logger   *slog.Logger
	clock    clock.Clock
	catalog  *storage.Catalog

	mu            sync.Mutex
	cache         *cacheFile
	encoder       *codec.Encoder
	serverKey     *secp256k1.PublicKey
	frame         []byte
	seq           uint64
	rotationFloor uint64

	queue  *writeQueue
	closed atomic.Bool

	readingMu sync.Mutex
	reading   map[string]int

	refs          atomic.Int64
	rotations     atomic.Uint64
	rejected      atomic.Uint64
	writeFailures atomic.Uint64
	removed       atomic.Uint64
}

type engineOptions struct {
	logger *slog.Logger
	clock  clock.Clock
}

func newEngine(cfg Config, opts engineOptions) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ident := cfg.identity()
	if err := os.MkdirAll(ident.root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	logger := opts.logger.With("proto", cfg.ProtoName, "root", ident.root)

	e := &Engine{
		cfg:     cfg,
		ident:   ident,
		root:    ident.root,
		id:      ksuid.New(),
		logger:  logger,
		clock:   opts.clock,
		reading: make(map[string]int),
	}

	if cfg.Encrypt == codec.EncryptAES {
		key, err := crypt.ParsePublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		e.serverKey = key
	}
	enc, err := codec.NewEncoder(nil)
	if err != nil {
		return nil, err
	}
	e.encoder = enc
	if err := e.newSessionLocked(); err != nil {
		return nil, err
	}

	catalog, err := storage.OpenCatalog(filepath.Join(e.root, cfg.ProtoName+catalogSuffix), logger)
	if err != nil {
		return nil, err
	}
	e.catalog = catalog
	if e.streamID, err = catalog.StreamID(); err != nil {
		catalog.Close()
		return nil, err
	}

	now := e.clock.Now()
	cache, err := openCache(e.cachePath(), cfg.ProtoName, cfg.CacheSize, now, logger)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	e.cache = cache
	if created, ok, err := catalog.CacheCreated(); err == nil && ok && !cache.empty() {
		cache.createdAt = created
	} else if cache.empty() {
		e.recordCacheCreated()
	}

	e.rotationFloor = e.scanRotationFloor()

	if cfg.Async {
		e.queue = newWriteQueue()
		go e.queue.run(e.handleBatch)
	}

	logger.Debug("instance opened", "id", e.id.String(), "cache_records", cache.records, "async", cfg.Async)
	return e, nil
}

func (e *Engine) cachePath() string {
	return filepath.Join(e.root, e.cfg.ProtoName+CacheSuffix)
}

// newSessionLocked starts a new encryption session. Each cache generation
// gets its own ephemeral key.
func (e *Engine) newSessionLocked() error {
	if e.serverKey == nil {
		return nil
	}
	sealer, err := crypt.NewSealer(e.serverKey)
	if err != nil {
		return err
	}
	e.encoder.SetSealer(sealer)
	return nil
}

func (e *Engine) recordCacheCreated() {
	if err := e.catalog.SetCacheCreated(e.cache.createdAt); err != nil {
		e.logger.Warn("failed to record cache creation", "error", err)
	}
}

// ID identifies the live instance. Every handle of one instance reports the
// same value.
func (e *Engine) ID() string { return e.id.String() }

// StreamID identifies the stream across restarts.
func (e *Engine) StreamID() string { return e.streamID.String() }

// Config returns the configuration the instance was created with.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Write appends one record. Empty and oversized payloads are rejected in
// both modes. In asynchronous mode the payload is copied and queued, and
// later failures are only logged.
func (e *Engine) Write(p []byte) error {
	if err := codec.ValidatePayload(p); err != nil {
		e.rejected.Add(1)
		return err
	}
	if e.closed.Load() {
		return ErrClosed
	}
	if e.queue != nil {
		if !e.queue.push(task{payload: append([]byte(nil), p...)}) {
			return ErrClosed
		}
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.appendLocked(p); err != nil {
		e.writeFailures.Add(1)
		return err
	}
	return nil
}

func (e *Engine) handleBatch(batch []task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range batch {
		if t.fn != nil {
			t.done <- t.fn()
			continue
		}
		if err := e.appendLocked(t.payload); err != nil {
			e.writeFailures.Add(1)
			e.logger.Error("async write failed", "error", err)
		}
	}
}

// do runs fn at the mutation point, after every write queued before it.
func (e *Engine) do(fn func() error) error {
	if e.queue != nil {
		done := make(chan error, 1)
		if !e.queue.push(task{fn: fn, done: done}) {
			return ErrClosed
		}
		return <-done
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}
	return fn()
}

func (e *Engine) appendLocked(p []byte) error {
	if err := e.reopenCacheLocked(); err != nil {
		return err
	}
	now := e.clock.Now()
	if err := e.crossDayLocked(now); err != nil {
		return err
	}

	frame, err := e.encoder.AppendFrame(e.frame[:0], p, e.cfg.Compress, e.cfg.Encrypt)
	if err != nil {
		return err
	}
	e.frame = frame

	if !e.cache.fits(len(frame)) {
		if e.cache.empty() {
			return fmt.Errorf("%w: frame %d bytes, cache %d bytes", ErrCacheTooSmall, len(frame), e.cache.capacity)
		}
		if err := e.rotateLocked(); err != nil {
			return err
		}
		if e.cfg.Encrypt == codec.EncryptAES {
			// The rotation started a new session.
			if frame, err = e.encoder.AppendFrame(e.frame[:0], p, e.cfg.Compress, e.cfg.Encrypt); err != nil {
				return err
			}
			e.frame = frame
		}
		if !e.cache.fits(len(frame)) {
			return fmt.Errorf("%w: frame %d bytes, cache %d bytes", ErrCacheTooSmall, len(frame), e.cache.capacity)
		}
	}

	// Snapshot thresholds count stored bytes, which is also what a reload sees.
	stored := len(frame) - codec.FrameSize(0, e.cfg.Encrypt)
	if err := e.cache.append(frame, stored); err != nil {
		return err
	}
	e.seq++
	return nil
}

// reopenCacheLocked reloads the cache from disk when a failed rotation left
// it closed.
func (e *Engine) reopenCacheLocked() error {
	if e.cache.file != nil {
		return nil
	}
	cache, err := openCache(e.cachePath(), e.cfg.ProtoName, e.cfg.CacheSize, e.clock.Now(), e.logger)
	if err != nil {
		return fmt.Errorf("reopen cache: %w", err)
	}
	e.cache = cache
	if cache.empty() {
		e.recordCacheCreated()
	} else if created, ok, err := e.catalog.CacheCreated(); err == nil && ok {
		cache.createdAt = created
	}
	e.logger.Info("cache reopened", "records", cache.records)
	return nil
}

// Sequence returns how many records this instance has accepted into its cache.
func (e *Engine) Sequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Flush rotates the cache into an archive when it holds records, then
// applies retention. In asynchronous mode it first waits for queued writes.
func (e *Engine) Flush() error {
	return e.do(func() error {
		err := e.rotateLocked()
		e.sweepLocked(e.clock.Now())
		return err
	})
}

// CacheFileName returns the base name of the cache file.
func (e *Engine) CacheFileName() string {
	return filepath.Base(e.cachePath())
}

// Stats returns counters and sizes of the instance.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	st := Stats{
		ID:             e.ID(),
		StreamID:       e.StreamID(),
		ProtoName:      e.cfg.ProtoName,
		Sequence:       e.seq,
		CacheRecords:   e.cache.records,
		CacheBytes:     e.cache.size,
		CacheCreatedAt: e.cache.createdAt,
	}
	archives, total := e.collectLocked()
	e.mu.Unlock()

	st.ArchiveFiles = len(archives)
	st.ArchiveBytes = total
	if e.queue != nil {
		st.QueueDepth = e.queue.depth()
	}
	st.Rotations = e.rotations.Load()
	st.Rejected = e.rejected.Load()
	st.WriteFailures = e.writeFailures.Load()
	st.RemovedFiles = e.removed.Load()
	st.References = int(e.refs.Load())
	return st
}

// OpenReader opens a file of this stream and protects it from retention
// sweeps until the reader is closed.
func (e *Engine) OpenReader(path string, opts ...ReaderOption) (*Reader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	e.trackReading(abs)

	opts = append(opts, WithProtoName(e.cfg.ProtoName), withCloseHook(func() { e.untrackReading(abs) }))
	if !hasLogger(opts) {
		opts = append([]ReaderOption{WithReaderLogger(e.logger)}, opts...)
	}

	var r *Reader
	if abs == e.cachePath() {
		// The cache is only consistent between writes.
		err = e.do(func() error {
			var err error
			r, err = OpenReader(abs, opts...)
			return err
		})
	} else {
		r, err = OpenReader(abs, opts...)
	}
	if err != nil {
		e.untrackReading(abs)
		return nil, err
	}
	return r, nil
}

func hasLogger(opts []ReaderOption) bool {
	var o readerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.logger != nil
}

func (e *Engine) trackReading(path string) {
	e.readingMu.Lock()
	defer e.readingMu.Unlock()
	e.reading[path]++
}

func (e *Engine) untrackReading(path string) {
	e.readingMu.Lock()
	defer e.readingMu.Unlock()
	if e.reading[path] <= 1 {
		delete(e.reading, path)
		return
	}
	e.reading[path]--
}

func (e *Engine) isReading(path string) bool {
	e.readingMu.Lock()
	defer e.readingMu.Unlock()
	return e.reading[path] > 0
}

// close drains queued writes and releases the cache and catalog. The cache
// file stays on disk and is reloaded by the next instance.
func (e *Engine) close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.queue != nil {
		e.queue.close()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.cache.file != nil {
		if err := e.cache.sync(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.cache.close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.catalog.Close(); err != nil {
		errs = append(errs, err)
	}
	e.logger.Debug("instance closed", "id", e.id.String())
	return errors.Join(errs...)
}
