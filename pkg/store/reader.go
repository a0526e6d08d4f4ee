package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/ssargent/glogstore/pkg/crypt"
)

// ResultKind tags the outcome of one Reader step.
type ResultKind int

const (
	// ResultRecord carries a decoded payload.
	ResultRecord ResultKind = iota + 1
	// ResultRecovered means one damaged region was skipped; call again.
	ResultRecovered
	// ResultEOF means the stream is exhausted.
	ResultEOF
)

func (k ResultKind) String() string {
	switch k {
	case ResultRecord:
		return "record"
	case ResultRecovered:
		return "recovered"
	case ResultEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// Result is one step of a Reader.
type Result struct {
	Kind    ResultKind
	Payload []byte
}

// ReaderOption configures OpenReader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	privateKey string
	proto      string
	logger     *slog.Logger
	onClose    func()
}

// WithPrivateKey supplies the hex server private key for encrypted frames.
func WithPrivateKey(hexKey string) ReaderOption {
	return func(o *readerOptions) { o.privateKey = hexKey }
}

// WithProtoName rejects files written for another stream.
func WithProtoName(proto string) ReaderOption {
	return func(o *readerOptions) { o.proto = proto }
}

// WithReaderLogger sets the logger used to report skipped frames.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(o *readerOptions) { o.logger = l }
}

func withCloseHook(f func()) ReaderOption {
	return func(o *readerOptions) { o.onClose = f }
}

// Reader decodes the records of one archive or cache file in order, skipping
// damaged frames. It is not safe for concurrent use.
type Reader struct {
	path    string
	data    []byte
	release func() error
	decoder *codec.Decoder
	logger  *slog.Logger
	onClose func()

	pos       int
	records   int
	recovered int
	broken    bool
	pending   []byte
	err       error

	closeOnce sync.Once
	closeErr  error
}

// OpenReader maps path and validates its header. Format errors are fatal for
// the file.
func OpenReader(path string, opts ...ReaderOption) (*Reader, error) {
	o := readerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var opener *crypt.Opener
	if o.privateKey != "" {
		priv, err := crypt.ParsePrivateKey(o.privateKey)
		if err != nil {
			return nil, err
		}
		opener = crypt.NewOpener(priv)
	}

	data, release, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	h, n, err := codec.DecodeHeader(data)
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if o.proto != "" && h.ProtoName != o.proto {
		_ = release()
		return nil, fmt.Errorf("%w: %s holds %q", ErrProtoMismatch, path, h.ProtoName)
	}
	dec, err := codec.NewDecoder(h, opener)
	if err != nil {
		_ = release()
		return nil, err
	}

	return &Reader{
		path:    path,
		data:    data,
		release: release,
		decoder: dec,
		logger:  o.logger,
		onClose: o.onClose,
		pos:     n,
	}, nil
}

// Header returns the file header.
func (r *Reader) Header() codec.Header { return r.decoder.Header() }

// Path returns the file being read.
func (r *Reader) Path() string { return r.path }

// Next decodes the next record. The returned error is reserved for
// conditions the caller must fix, such as a missing private key; corruption
// is reported as ResultRecovered and the end of data as ResultEOF.
func (r *Reader) Next() (Result, error) {
	if r.data == nil && r.release == nil {
		return Result{}, ErrClosed
	}
	if r.pos >= len(r.data) {
		return Result{Kind: ResultEOF}, nil
	}

	payload, n, err := r.decoder.Decode(nil, r.data[r.pos:])
	switch {
	case err == nil:
		r.pos += n
		r.records++
		return Result{Kind: ResultRecord, Payload: payload}, nil
	case errors.Is(err, codec.ErrMissingKey):
		return Result{}, err
	}

	// Corrupt or incomplete frame: resynchronise on the next marker.
	r.broken = true
	next := codec.Resync(r.data[r.pos+1:])
	if next < 0 {
		r.logger.Debug("unrecoverable tail", "file", r.path, "offset", r.pos, "error", err)
		r.pos = len(r.data)
		return Result{Kind: ResultEOF}, nil
	}
	r.logger.Debug("skipped damaged frame", "file", r.path, "offset", r.pos, "error", err)
	r.pos += 1 + next
	r.recovered++
	return Result{Kind: ResultRecovered}, nil
}

// Read copies the next record into buf and returns its length. It returns 0
// when a damaged frame was skipped and a negative value at the end of the
// stream or on error; Err tells the two apart. A record longer than buf is
// kept for the next call and reported as ErrBufferTooSmall.
func (r *Reader) Read(buf []byte) int {
	r.err = nil
	if r.pending == nil {
		res, err := r.Next()
		if err != nil {
			r.err = err
			return -1
		}
		switch res.Kind {
		case ResultRecovered:
			return 0
		case ResultEOF:
			return -1
		}
		r.pending = res.Payload
	}
	if len(buf) < len(r.pending) {
		r.err = ErrBufferTooSmall
		return -1
	}
	n := copy(buf, r.pending)
	r.pending = nil
	return n
}

// Err returns the error behind the last negative Read.
func (r *Reader) Err() error { return r.err }

// Broken reports whether any corruption was met so far.
func (r *Reader) Broken() bool { return r.broken }

// Recovered returns how many damaged regions were skipped.
func (r *Reader) Recovered() int { return r.recovered }

// Records returns how many records were decoded.
func (r *Reader) Records() int { return r.records }

// Close releases the mapping and decoder state. It is safe to call more than
// once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = errors.Join(r.decoder.Close(), r.release())
		r.data, r.release, r.pending = nil, nil, nil
		if r.onClose != nil {
			r.onClose()
		}
	})
	return r.closeErr
}
