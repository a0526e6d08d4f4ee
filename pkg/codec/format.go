package codec

import (
	"errors"
	"fmt"
	"strings"
)

// MaxRecordLength is the largest payload, and the largest stored frame payload,
// a file may carry.
const MaxRecordLength = 16 * 1024

// Version identifies the on-disk file format.
type Version byte

const (
	// VersionRecovery files declare compression and encryption once in the header.
	VersionRecovery Version = 3
	// VersionCipher files declare compression and encryption on every frame.
	VersionCipher Version = 4
)

func (v Version) String() string {
	switch v {
	case VersionRecovery:
		return "v3"
	case VersionCipher:
		return "v4"
	default:
		return fmt.Sprintf("v%d", byte(v))
	}
}

// Magic starts every file.
var Magic = [4]byte{0x1B, 0xAD, 0xC0, 0xDE}

// SyncMarker terminates the header and every frame.
var SyncMarker = [8]byte{0xB7, 0xDB, 0xE7, 0xDB, 0x80, 0xAD, 0xD9, 0x57}

const (
	magicLen  = len(Magic)
	markerLen = len(SyncMarker)

	// IVSize and PublicKeySize are the lengths of the cipher fields of an
	// encrypted V4 frame.
	IVSize        = 16
	PublicKeySize = 64

	cipherFieldsLen = IVSize + PublicKeySize
)

// CompressMode selects payload compression.
type CompressMode uint8

const (
	CompressNone CompressMode = iota
	CompressZlib
)

// EncryptMode selects payload encryption.
type EncryptMode uint8

const (
	EncryptNone EncryptMode = iota
	EncryptAES
)

func (m CompressMode) String() string {
	switch m {
	case CompressNone:
		return "none"
	case CompressZlib:
		return "zlib"
	default:
		return fmt.Sprintf("compress(%d)", uint8(m))
	}
}

func (m EncryptMode) String() string {
	switch m {
	case EncryptNone:
		return "none"
	case EncryptAES:
		return "aes"
	default:
		return fmt.Sprintf("encrypt(%d)", uint8(m))
	}
}

// ParseCompressMode converts a configuration name to a CompressMode.
func ParseCompressMode(s string) (CompressMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressNone, nil
	case "zlib", "deflate":
		return CompressZlib, nil
	default:
		return 0, fmt.Errorf("%w: unknown compress mode %q", ErrInvalidMode, s)
	}
}

// ParseEncryptMode converts a configuration name to an EncryptMode.
func ParseEncryptMode(s string) (EncryptMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return EncryptNone, nil
	case "aes":
		return EncryptAES, nil
	default:
		return 0, fmt.Errorf("%w: unknown encrypt mode %q", ErrInvalidMode, s)
	}
}

func (m CompressMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *CompressMode) UnmarshalText(text []byte) error {
	v, err := ParseCompressMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m EncryptMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *EncryptMode) UnmarshalText(text []byte) error {
	v, err := ParseEncryptMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// V4 mode byte nibbles. Zero is never valid, which makes zero-filled
// regions fail fast.
const (
	v4CompressNone = 1
	v4CompressZlib = 2
	v4EncryptNone  = 1
	v4EncryptAES   = 2
)

func v4ModeByte(c CompressMode, e EncryptMode) byte {
	hi, lo := byte(v4CompressNone), byte(v4EncryptNone)
	if c == CompressZlib {
		hi = v4CompressZlib
	}
	if e == EncryptAES {
		lo = v4EncryptAES
	}
	return hi<<4 | lo
}

func parseV4ModeByte(b byte) (CompressMode, EncryptMode, bool) {
	var c CompressMode
	var e EncryptMode
	switch b >> 4 {
	case v4CompressNone:
		c = CompressNone
	case v4CompressZlib:
		c = CompressZlib
	default:
		return 0, 0, false
	}
	switch b & 0x0F {
	case v4EncryptNone:
		e = EncryptNone
	case v4EncryptAES:
		e = EncryptAES
	default:
		return 0, 0, false
	}
	return c, e, true
}

// Validation errors are returned to the caller and never touch stored state.
var (
	ErrEmptyRecord    = errors.New("record is empty")
	ErrRecordTooLarge = fmt.Errorf("record exceeds %d bytes", MaxRecordLength)
	ErrInvalidMode    = errors.New("illegal compress or encrypt mode")
	ErrMissingKey     = errors.New("private key required for encrypted record")
)

// Format errors make a whole file unreadable.
var (
	ErrFormat             = errors.New("invalid file format")
	ErrBadMagic           = fmt.Errorf("%w: magic mismatch", ErrFormat)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrFormat)
	ErrHeaderTooShort     = fmt.Errorf("%w: header too short", ErrFormat)
)

// ErrShortFrame reports that the remaining bytes cannot hold a complete frame.
// It is the normal end of a stream.
var ErrShortFrame = errors.New("incomplete frame")

// ErrCorruptFrame is matched by every *CorruptionError.
var ErrCorruptFrame = errors.New("corrupt frame")

// Corruption reasons.
const (
	ReasonIllegalMode   = "illegal mode"
	ReasonBadLength     = "bad length"
	ReasonTruncated     = "truncated payload"
	ReasonDecompress    = "decompress failed"
	ReasonDecrypt       = "decrypt failed"
	ReasonMarkerMissing = "sync marker mismatch"
)

// CorruptionError describes a frame that failed to decode. Offset is relative
// to the slice handed to the decoder.
type CorruptionError struct {
	Reason string
	Offset int
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt frame at %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt frame at %d: %s", e.Offset, e.Reason)
}

func (e *CorruptionError) Is(target error) bool { return target == ErrCorruptFrame }

func (e *CorruptionError) Unwrap() error { return e.Err }

func corrupt(reason string, off int, err error) error {
	return &CorruptionError{Reason: reason, Offset: off, Err: err}
}

// ValidatePayload checks the length bounds of a record payload.
func ValidatePayload(p []byte) error {
	if len(p) == 0 {
		return ErrEmptyRecord
	}
	if len(p) > MaxRecordLength {
		return fmt.Errorf("%w: got %d", ErrRecordTooLarge, len(p))
	}
	return nil
}
