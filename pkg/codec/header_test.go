package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{"v4", Header{Version: VersionCipher, ProtoName: "events"}},
		{"v4 empty name", Header{Version: VersionCipher}},
		{"v3 plain", Header{Version: VersionRecovery, ProtoName: "trace"}},
		{"v3 zlib", Header{Version: VersionRecovery, ProtoName: "trace", Compress: CompressZlib}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := AppendHeader(nil, tt.header)
			require.NoError(t, err)
			assert.Len(t, buf, tt.header.Size())

			got, n, err := DecodeHeader(append(buf, 0xFF, 0xFF))
			require.NoError(t, err)
			assert.Equal(t, len(buf), n)
			assert.Equal(t, tt.header, got)
		})
	}
}

func TestHeader_Layout(t *testing.T) {
	buf, err := AppendHeader(nil, Header{Version: VersionRecovery, ProtoName: "ab", Compress: CompressZlib})
	require.NoError(t, err)

	want := []byte{0x1B, 0xAD, 0xC0, 0xDE, 3, 0x10, 2, 0, 'a', 'b', 0xB7, 0xDB, 0xE7, 0xDB, 0x80, 0xAD, 0xD9, 0x57}
	assert.Equal(t, want, buf)

	buf, err = AppendHeader(nil, Header{Version: VersionCipher, ProtoName: "ab"})
	require.NoError(t, err)
	want = []byte{0x1B, 0xAD, 0xC0, 0xDE, 4, 2, 0, 'a', 'b', 0xB7, 0xDB, 0xE7, 0xDB, 0x80, 0xAD, 0xD9, 0x57}
	assert.Equal(t, want, buf)
}

func TestDecodeHeader_Errors(t *testing.T) {
	valid, err := AppendHeader(nil, Header{Version: VersionCipher, ProtoName: "events"})
	require.NoError(t, err)

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 0x00

	badVersion := append([]byte(nil), valid...)
	badVersion[4] = 9

	badMarker := append([]byte(nil), valid...)
	badMarker[len(badMarker)-1] ^= 0xFF

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrHeaderTooShort},
		{"magic only", valid[:4], ErrHeaderTooShort},
		{"truncated name", valid[:9], ErrHeaderTooShort},
		{"bad magic", badMagic, ErrBadMagic},
		{"bad version", badVersion, ErrUnsupportedVersion},
		{"bad marker", badMarker, ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeHeader(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, errors.Is(err, ErrFormat))
		})
	}
}

func TestAppendHeader_RejectsUnknownVersion(t *testing.T) {
	_, err := AppendHeader(nil, Header{Version: 7, ProtoName: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseModes(t *testing.T) {
	c, err := ParseCompressMode("ZLIB")
	require.NoError(t, err)
	assert.Equal(t, CompressZlib, c)

	e, err := ParseEncryptMode("aes")
	require.NoError(t, err)
	assert.Equal(t, EncryptAES, e)

	_, err = ParseCompressMode("lz4")
	assert.ErrorIs(t, err, ErrInvalidMode)

	var m EncryptMode
	require.NoError(t, m.UnmarshalText([]byte("none")))
	assert.Equal(t, EncryptNone, m)
	text, err := CompressZlib.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "zlib", string(text))
}
