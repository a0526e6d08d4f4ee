package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Compressor produces raw DEFLATE streams (no zlib wrapper) at best
// compression. Each call yields an independent stream so that any frame can
// be decoded without the frames before it. Not safe for concurrent use.
type Compressor struct {
	w   *flate.Writer
	buf bytes.Buffer
}

// NewCompressor creates a level 9 raw DEFLATE compressor.
func NewCompressor() (*Compressor, error) {
	c := &Compressor{}
	w, err := flate.NewWriter(&c.buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	c.w = w
	return c, nil
}

// Compress appends the compressed form of src to dst.
func (c *Compressor) Compress(dst, src []byte) ([]byte, error) {
	c.buf.Reset()
	c.w.Reset(&c.buf)
	if _, err := c.w.Write(src); err != nil {
		return dst, err
	}
	if err := c.w.Close(); err != nil {
		return dst, err
	}
	return append(dst, c.buf.Bytes()...), nil
}

var errInflateOverflow = errors.New("inflated payload exceeds record limit")

// Decompressor inflates payloads written by Compressor. Not safe for
// concurrent use.
type Decompressor struct {
	src bytes.Reader
	r   io.ReadCloser
	buf bytes.Buffer
}

// NewDecompressor creates a raw DEFLATE decompressor.
func NewDecompressor() *Decompressor {
	d := &Decompressor{}
	d.r = flate.NewReader(&d.src)
	return d
}

// Decompress appends the inflated form of src to dst. Output larger than
// MaxRecordLength, empty output and malformed input are errors.
func (d *Decompressor) Decompress(dst, src []byte) ([]byte, error) {
	d.src.Reset(src)
	if err := d.r.(flate.Resetter).Reset(&d.src, nil); err != nil {
		return dst, err
	}
	d.buf.Reset()
	_, err := io.CopyN(&d.buf, d.r, MaxRecordLength+1)
	switch {
	case err == nil:
		return dst, errInflateOverflow
	case !errors.Is(err, io.EOF):
		return dst, err
	}
	if d.buf.Len() == 0 {
		return dst, fmt.Errorf("inflated payload is empty")
	}
	if d.src.Len() > 0 {
		return dst, fmt.Errorf("%d bytes after end of stream", d.src.Len())
	}
	return append(dst, d.buf.Bytes()...), nil
}

// Close releases the inflater.
func (d *Decompressor) Close() error {
	return d.r.Close()
}
