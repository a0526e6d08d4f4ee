//go:build bench
// +build bench

package codec

import (
	"bytes"
	"testing"
)

func BenchmarkEncoder_AppendFrame(b *testing.B) {
	benchmarks := []struct {
		name     string
		size     int
		compress CompressMode
	}{
		{"small_plain", 64, CompressNone},
		{"small_zlib", 64, CompressZlib},
		{"large_plain", 8192, CompressNone},
		{"large_zlib", 8192, CompressZlib},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			enc, err := NewEncoder(nil)
			if err != nil {
				b.Fatal(err)
			}
			payload := bytes.Repeat([]byte("glog"), bm.size/4)
			buf := make([]byte, 0, bm.size*2)
			b.SetBytes(int64(len(payload)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf, err = enc.AppendFrame(buf[:0], payload, bm.compress, EncryptNone)
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkResync(b *testing.B) {
	data := append(bytes.Repeat([]byte{0xB7, 0xDB, 0xE7}, 4096), SyncMarker[:]...)
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		if Resync(data) < 0 {
			b.Fatal("marker not found")
		}
	}
}
