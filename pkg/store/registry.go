package store

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ssargent/glogstore/pkg/clock"
)

// DefaultMaintenanceInterval is how often the registry sweeps live instances.
const DefaultMaintenanceInterval = 2 * time.Minute

// Registry owns the live engine instances of a process, one per
// (root directory, proto name). Handles opened for the same identity share
// the instance; it is closed when the last handle is released.
type Registry struct {
	logger   *slog.Logger
	clock    clock.Clock
	interval time.Duration

	mu        sync.Mutex
	instances map[identity]*entry
	closed    bool

	stop chan struct{}
	wg   sync.WaitGroup
}

type entry struct {
	engine  *Engine
	initial Config
	refs    int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger shared by all instances.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock sets the time source shared by all instances.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithMaintenanceInterval sets the sweep period; zero disables the loop.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(r *Registry) { r.interval = d }
}

// NewRegistry creates a registry and starts its maintenance loop.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:    slog.Default(),
		clock:     clock.Real(),
		interval:  DefaultMaintenanceInterval,
		instances: make(map[identity]*entry),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.interval > 0 {
		r.wg.Add(1)
		go r.maintenanceLoop(r.clock.NewTicker(r.interval))
	}
	return r
}

// Handle is one caller's reference to a shared instance.
type Handle struct {
	*Engine
	registry *Registry
	once     sync.Once
	err      error
}

// Close releases the handle. The instance is closed with its last handle.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.err = h.registry.release(h.Engine)
	})
	return h.err
}

// Open returns a handle to the instance for cfg's identity, creating the
// instance on first use. The configuration of the first opener wins; a
// different configuration for a live identity is logged and ignored.
func (r *Registry) Open(cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := cfg.identity()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	if ent, ok := r.instances[id]; ok {
		if ent.initial != cfg {
			r.logger.Warn("instance already open with a different configuration; keeping the first",
				"proto", id.proto, "root", id.root)
		}
		ent.refs++
		ent.engine.refs.Store(int64(ent.refs))
		return &Handle{Engine: ent.engine, registry: r}, nil
	}

	e, err := newEngine(cfg, engineOptions{logger: r.logger, clock: r.clock})
	if err != nil {
		return nil, err
	}
	r.instances[id] = &entry{engine: e, initial: cfg, refs: 1}
	e.refs.Store(1)
	return &Handle{Engine: e, registry: r}, nil
}

// Lookup returns the live instance for an identity.
func (r *Registry) Lookup(root, proto string) (*Engine, bool) {
	id := Config{RootDirectory: root, ProtoName: proto}.identity()
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.instances[id]
	if !ok {
		return nil, false
	}
	return ent.engine, true
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

func (r *Registry) release(e *Engine) error {
	id := e.ident
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.instances[id]
	if !ok || ent.engine != e {
		return nil
	}
	ent.refs--
	e.refs.Store(int64(ent.refs))
	if ent.refs > 0 {
		return nil
	}
	delete(r.instances, id)
	return e.close()
}

// Destroy closes the instance for an identity regardless of outstanding
// handles. Queued writes are drained first.
func (r *Registry) Destroy(root, proto string) error {
	id := Config{RootDirectory: root, ProtoName: proto}.identity()
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.instances[id]
	if !ok {
		return nil
	}
	delete(r.instances, id)
	ent.engine.refs.Store(0)
	return ent.engine.close()
}

// Close stops maintenance and destroys every instance.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for id, ent := range r.instances {
		ent.engine.refs.Store(0)
		errs = append(errs, ent.engine.close())
		delete(r.instances, id)
	}
	return errors.Join(errs...)
}

func (r *Registry) maintenanceLoop(ticker *clock.Ticker) {
	defer r.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Maintain()
		}
	}
}

// Maintain runs one maintenance pass over every live instance.
func (r *Registry) Maintain() {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.instances))
	for _, ent := range r.instances {
		engines = append(engines, ent.engine)
	}
	r.mu.Unlock()

	for _, e := range engines {
		if err := e.maintain(); err != nil && !errors.Is(err, ErrClosed) {
			e.logger.Error("maintenance failed", "error", err)
		}
	}
}
