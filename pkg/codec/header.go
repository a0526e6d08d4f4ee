package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Header is the fixed prefix of every file.
type Header struct {
	Version   Version
	ProtoName string

	// Compress and Encrypt are file-wide modes, stored only by V3 files.
	Compress CompressMode
	Encrypt  EncryptMode
}

// Size returns the encoded length of the header.
func (h Header) Size() int {
	n := magicLen + 1 + 2 + len(h.ProtoName) + markerLen
	if h.Version == VersionRecovery {
		n++
	}
	return n
}

// AppendHeader appends the encoded header to dst.
// Layout: [magic(4)][version(1)][v3 mode(1)][nameLen u16][name][sync marker(8)]
func AppendHeader(dst []byte, h Header) ([]byte, error) {
	if len(h.ProtoName) > math.MaxUint16 {
		return dst, fmt.Errorf("proto name too long: %d bytes", len(h.ProtoName))
	}
	dst = append(dst, Magic[:]...)
	dst = append(dst, byte(h.Version))
	switch h.Version {
	case VersionRecovery:
		if h.Compress > CompressZlib || h.Encrypt > EncryptAES {
			return dst, ErrInvalidMode
		}
		dst = append(dst, byte(h.Compress)<<4|byte(h.Encrypt))
	case VersionCipher:
	default:
		return dst, fmt.Errorf("%w: %d", ErrUnsupportedVersion, byte(h.Version))
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(h.ProtoName)))
	dst = append(dst, h.ProtoName...)
	dst = append(dst, SyncMarker[:]...)
	return dst, nil
}

// DecodeHeader parses a header from the start of b and returns it together
// with the number of bytes consumed. Every failure is a format error.
func DecodeHeader(b []byte) (Header, int, error) {
	var h Header
	if len(b) < magicLen+1 {
		return h, 0, ErrHeaderTooShort
	}
	if !bytes.Equal(b[:magicLen], Magic[:]) {
		return h, 0, ErrBadMagic
	}
	h.Version = Version(b[magicLen])
	pos := magicLen + 1

	switch h.Version {
	case VersionRecovery:
		if len(b) < pos+1 {
			return h, 0, ErrHeaderTooShort
		}
		mode := b[pos]
		pos++
		if mode>>4 > byte(CompressZlib) || mode&0x0F > byte(EncryptAES) {
			return h, 0, fmt.Errorf("%w: header mode byte %#02x", ErrFormat, mode)
		}
		h.Compress = CompressMode(mode >> 4)
		h.Encrypt = EncryptMode(mode & 0x0F)
	case VersionCipher:
	default:
		return h, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, byte(h.Version))
	}

	if len(b) < pos+2 {
		return h, 0, ErrHeaderTooShort
	}
	nameLen := int(binary.LittleEndian.Uint16(b[pos:]))
	pos += 2
	if len(b) < pos+nameLen+markerLen {
		return h, 0, ErrHeaderTooShort
	}
	h.ProtoName = string(b[pos : pos+nameLen])
	pos += nameLen
	if !bytes.Equal(b[pos:pos+markerLen], SyncMarker[:]) {
		return h, 0, fmt.Errorf("%w: header sync marker mismatch", ErrFormat)
	}
	pos += markerLen

	return h, pos, nil
}
