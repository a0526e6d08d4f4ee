package store

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ssargent/glogstore/pkg/clock"
	"github.com/ssargent/glogstore/pkg/codec"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	base := []Option{WithLogger(quietLogger()), WithMaintenanceInterval(0)}
	r := NewRegistry(append(base, opts...)...)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func testConfig(root string) Config {
	return Config{
		RootDirectory: root,
		ProtoName:     "events",
		Compress:      codec.CompressNone,
		CacheSize:     DefaultCacheSize,
	}
}

func openHandle(t *testing.T, r *Registry, cfg Config) *Handle {
	t.Helper()
	h, err := r.Open(cfg)
	require.NoError(t, err)
	return h
}

// readFiles decodes every record of files in order.
func readFiles(t *testing.T, files []string, opts ...ReaderOption) [][]byte {
	t.Helper()
	var out [][]byte
	for _, f := range files {
		r, err := OpenReader(f, append([]ReaderOption{WithReaderLogger(quietLogger())}, opts...)...)
		require.NoError(t, err)
		for {
			res, err := r.Next()
			require.NoError(t, err)
			if res.Kind == ResultEOF {
				break
			}
			if res.Kind == ResultRecord {
				out = append(out, res.Payload)
			}
		}
		require.NoError(t, r.Close())
	}
	return out
}

func snapshotFiles(t *testing.T, h *Handle, flush bool) []string {
	t.Helper()
	snap, err := h.ArchiveSnapshot(SnapshotCondition{Flush: flush}, OrderAscending)
	require.NoError(t, err)
	return snap.Files
}

func totalSize(t *testing.T, files []string) int64 {
	t.Helper()
	var n int64
	for _, f := range files {
		st, err := os.Stat(f)
		require.NoError(t, err)
		n += st.Size()
	}
	return n
}

// frameOffsets returns the start offset of every frame in a V4 file.
func frameOffsets(t *testing.T, data []byte) []int {
	t.Helper()
	h, pos, err := codec.DecodeHeader(data)
	require.NoError(t, err)
	var offs []int
	for pos < len(data) {
		n, _, err := codec.ScanFrame(data[pos:], h)
		require.NoError(t, err)
		offs = append(offs, pos)
		pos += n
	}
	return offs
}

var epoch = time.Date(2024, 5, 10, 9, 30, 0, 0, time.Local)

func fakeClock() *clock.FakeClock { return clock.Fake(epoch) }
