package codec

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor_RoundTrip(t *testing.T) {
	c, err := NewCompressor()
	require.NoError(t, err)
	d := NewDecompressor()
	defer d.Close()

	random := make([]byte, 4096)
	_, err = rand.Read(random)
	require.NoError(t, err)

	inputs := [][]byte{
		[]byte("x"),
		bytes.Repeat([]byte("glog "), 1000),
		random,
		bytes.Repeat([]byte{0}, MaxRecordLength),
	}

	for _, in := range inputs {
		packed, err := c.Compress(nil, in)
		require.NoError(t, err)

		out, err := d.Decompress(nil, packed)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCompressor_IndependentStreams(t *testing.T) {
	c, err := NewCompressor()
	require.NoError(t, err)

	first, err := c.Compress(nil, []byte("same payload"))
	require.NoError(t, err)
	second, err := c.Compress(nil, []byte("same payload"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDecompressor_Rejects(t *testing.T) {
	d := NewDecompressor()
	defer d.Close()

	c, err := NewCompressor()
	require.NoError(t, err)
	tooBig, err := c.Compress(nil, bytes.Repeat([]byte{'a'}, MaxRecordLength+1))
	require.NoError(t, err)
	packed, err := c.Compress(nil, []byte("truncated stream payload"))
	require.NoError(t, err)

	_, err = d.Decompress(nil, tooBig)
	assert.Error(t, err)

	_, err = d.Decompress(nil, packed[:len(packed)/2])
	assert.Error(t, err)

	_, err = d.Decompress(nil, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	assert.Error(t, err)
}
