package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ssargent/glogstore/pkg/crypt"
)

// Encoder builds record frames. Not safe for concurrent use.
type Encoder struct {
	compressor *Compressor
	sealer     *crypt.Sealer
	scratch    []byte
	sealed     []byte
}

// NewEncoder creates an Encoder. sealer may be nil when no record is encrypted.
func NewEncoder(sealer *crypt.Sealer) (*Encoder, error) {
	c, err := NewCompressor()
	if err != nil {
		return nil, err
	}
	return &Encoder{compressor: c, sealer: sealer}, nil
}

// SetSealer replaces the encryption session used for subsequent frames.
func (e *Encoder) SetSealer(s *crypt.Sealer) { e.sealer = s }

// AppendFrame appends a V4 frame for payload to dst.
// Layout: [mode(1)][iv(16) pubkey(64) if AES][len u16][payload][sync marker(8)]
//
// Encrypted payloads are always deflated first so that a wrong private key
// shows up as an inflate failure. When deflate does not fit the record
// limit the payload is stored uncompressed and the mode byte says so; a wrong
// key then decrypts such a frame to garbage without an error.
func (e *Encoder) AppendFrame(dst, payload []byte, c CompressMode, enc EncryptMode) ([]byte, error) {
	if err := ValidatePayload(payload); err != nil {
		return dst, err
	}
	if c > CompressZlib || enc > EncryptAES {
		return dst, ErrInvalidMode
	}
	if enc == EncryptAES {
		if e.sealer == nil {
			return dst, fmt.Errorf("%w: no encryption session", ErrMissingKey)
		}
		c = CompressZlib
	}

	body := payload
	if c == CompressZlib {
		var err error
		e.scratch, err = e.compressor.Compress(e.scratch[:0], payload)
		if err != nil {
			return dst, fmt.Errorf("deflate: %w", err)
		}
		if len(e.scratch) <= MaxRecordLength {
			body = e.scratch
		} else {
			c = CompressNone
		}
	}

	dst = append(dst, v4ModeByte(c, enc))
	if enc == EncryptAES {
		var iv [IVSize]byte
		var err error
		e.sealed, iv, err = e.sealer.Seal(e.sealed[:0], body)
		if err != nil {
			return dst[:len(dst)-1], err
		}
		body = e.sealed
		pub := e.sealer.EphemeralKey()
		dst = append(dst, iv[:]...)
		dst = append(dst, pub[:]...)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(body)))
	dst = append(dst, body...)
	dst = append(dst, SyncMarker[:]...)
	return dst, nil
}

// AppendV3Frame appends a V3 frame for payload to dst, compressed when the
// file-wide mode is zlib.
// Layout: [len u16][payload][sync marker(8)]
func (e *Encoder) AppendV3Frame(dst, payload []byte, c CompressMode) ([]byte, error) {
	if err := ValidatePayload(payload); err != nil {
		return dst, err
	}
	body := payload
	switch c {
	case CompressNone:
	case CompressZlib:
		var err error
		e.scratch, err = e.compressor.Compress(e.scratch[:0], payload)
		if err != nil {
			return dst, fmt.Errorf("deflate: %w", err)
		}
		if len(e.scratch) > MaxRecordLength {
			return dst, fmt.Errorf("%w: deflated to %d bytes", ErrRecordTooLarge, len(e.scratch))
		}
		body = e.scratch
	default:
		return dst, ErrInvalidMode
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(body)))
	dst = append(dst, body...)
	dst = append(dst, SyncMarker[:]...)
	return dst, nil
}

// FrameSize returns the encoded size of a V4 frame whose stored payload is n
// bytes long.
func FrameSize(n int, enc EncryptMode) int {
	size := 1 + 2 + n + markerLen
	if enc == EncryptAES {
		size += cipherFieldsLen
	}
	return size
}

// frame is the structural view of one frame inside a buffer.
type frame struct {
	compress CompressMode
	encrypt  EncryptMode
	iv       [IVSize]byte
	session  [PublicKeySize]byte
	body     []byte
	size     int
}

// parseV4 validates the framing of a V4 frame at the start of b.
func parseV4(b []byte) (frame, error) {
	var f frame
	if len(b) == 0 {
		return f, ErrShortFrame
	}
	c, e, ok := parseV4ModeByte(b[0])
	if !ok {
		return f, corrupt(ReasonIllegalMode, 0, nil)
	}
	f.compress, f.encrypt = c, e
	pos := 1
	if e == EncryptAES {
		if len(b) < pos+cipherFieldsLen {
			return f, ErrShortFrame
		}
		copy(f.iv[:], b[pos:])
		copy(f.session[:], b[pos+IVSize:])
		pos += cipherFieldsLen
	}
	return parseBody(b, pos, f)
}

// parseV3 validates the framing of a V3 frame at the start of b.
func parseV3(b []byte, h Header) (frame, error) {
	f := frame{compress: h.Compress, encrypt: h.Encrypt}
	return parseBody(b, 0, f)
}

func parseBody(b []byte, pos int, f frame) (frame, error) {
	if len(b) < pos+2 {
		return f, ErrShortFrame
	}
	n := int(binary.LittleEndian.Uint16(b[pos:]))
	if n == 0 || n > MaxRecordLength {
		return f, corrupt(ReasonBadLength, pos, fmt.Errorf("length %d", n))
	}
	pos += 2
	if len(b) < pos+n+markerLen {
		return f, ErrShortFrame
	}
	f.body = b[pos : pos+n]
	pos += n
	if !bytes.Equal(b[pos:pos+markerLen], SyncMarker[:]) {
		return f, corrupt(ReasonMarkerMissing, pos, nil)
	}
	f.size = pos + markerLen
	return f, nil
}

// ScanFrame validates the framing of the frame at the start of b without
// decoding its payload. It returns the encoded size of the frame and the
// length of its stored payload, after compression and encryption. It is used
// to rebuild positions over files whose payloads cannot be decrypted.
func ScanFrame(b []byte, h Header) (size, stored int, err error) {
	var f frame
	if h.Version == VersionRecovery {
		f, err = parseV3(b, h)
	} else {
		f, err = parseV4(b)
	}
	if err != nil {
		return 0, 0, err
	}
	return f.size, len(f.body), nil
}

// Decoder decodes the frames of one file. It owns the decompression state and
// is not safe for concurrent use.
type Decoder struct {
	header       Header
	decompressor *Decompressor
	opener       *crypt.Opener
	plain        []byte
}

// NewDecoder creates a Decoder for files carrying header h. opener may be nil;
// decoding an encrypted V4 frame then fails with ErrMissingKey.
func NewDecoder(h Header, opener *crypt.Opener) (*Decoder, error) {
	switch h.Version {
	case VersionRecovery:
		if h.Encrypt != EncryptNone {
			return nil, fmt.Errorf("%w: v3 files cannot be encrypted", ErrInvalidMode)
		}
	case VersionCipher:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, byte(h.Version))
	}
	return &Decoder{header: h, decompressor: NewDecompressor(), opener: opener}, nil
}

// Header returns the header the decoder was built for.
func (d *Decoder) Header() Header { return d.header }

// Decode decodes the frame at the start of b, appends its payload to dst and
// reports the number of bytes consumed.
//
// ErrShortFrame means b does not hold a complete frame. A *CorruptionError
// means the frame is damaged and the caller should resynchronise.
// ErrMissingKey means the frame is encrypted and no key was supplied.
func (d *Decoder) Decode(dst, b []byte) ([]byte, int, error) {
	var (
		f   frame
		err error
	)
	if d.header.Version == VersionRecovery {
		f, err = parseV3(b, d.header)
	} else {
		f, err = parseV4(b)
	}
	if err != nil {
		return dst, 0, err
	}

	body := f.body
	if f.encrypt == EncryptAES {
		if d.opener == nil {
			return dst, 0, ErrMissingKey
		}
		d.plain, err = d.opener.Open(d.plain[:0], body, f.iv, f.session)
		if err != nil {
			return dst, 0, corrupt(ReasonDecrypt, 1, err)
		}
		body = d.plain
	}
	if f.compress == CompressZlib {
		out, err := d.decompressor.Decompress(dst, body)
		if err != nil {
			return dst, 0, corrupt(ReasonDecompress, f.size-markerLen-len(f.body), err)
		}
		return out, f.size, nil
	}
	return append(dst, body...), f.size, nil
}

// Close releases the decompression state.
func (d *Decoder) Close() error {
	return d.decompressor.Close()
}
