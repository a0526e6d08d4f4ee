// Package codec provides the binary file format for glog archives.
//
// The codec package is pure: it turns payloads into frames and frames back
// into payloads, and never touches the filesystem. The store package layers
// caching, rotation and reading on top of it.
//
// # File Format
//
// Every file starts with a header:
//
//	[Magic(4)][Version(1)][Mode(1), v3 only][NameLen(2)][ProtoName][SyncMarker(8)]
//
// Magic is 1B AD C0 DE and the sync marker is B7 DB E7 DB 80 AD D9 57. All
// integers are little-endian. A v3 header carries one mode byte whose high
// nibble is the compress mode (0 none, 1 zlib) and low nibble the encrypt
// mode (0 none, 1 aes) for the whole file.
//
// # Frames
//
// Version 3 frames:
//
//	[Length(2)][Payload][SyncMarker(8)]
//
// Version 4 frames declare their own modes:
//
//	[Mode(1)][IV(16) SessionKey(64), aes only][Length(2)][Payload][SyncMarker(8)]
//
// The v4 mode byte uses 1 for none and 2 for zlib/aes in each nibble, so a
// zero byte is always illegal. Length counts the stored payload after
// compression and encryption, and must be in 1..16384.
//
// # Compression and Encryption
//
// Payloads are compressed with raw DEFLATE at level 9, one independent
// stream per frame. Encryption is AES-128-CFB under a key agreed with the
// server's secp256k1 public key (see package crypt); compression happens
// before encryption.
//
// # Recovery
//
// Decode reports three outcomes besides success:
//   - ErrShortFrame: the buffer ends before the frame does
//   - *CorruptionError: bad mode, bad length, failed inflate or decrypt, or
//     a missing sync marker
//   - ErrMissingKey: an encrypted frame and no private key
//
// After corruption, Resync locates the next sync marker with a precomputed
// Knuth-Morris-Pratt table and decoding resumes just past it.
//
// # Usage
//
//	enc, _ := codec.NewEncoder(nil)
//	buf, _ := codec.AppendHeader(nil, codec.Header{Version: codec.VersionCipher, ProtoName: "events"})
//	buf, _ = enc.AppendFrame(buf, []byte("hello"), codec.CompressZlib, codec.EncryptNone)
//
//	h, n, _ := codec.DecodeHeader(buf)
//	dec, _ := codec.NewDecoder(h, nil)
//	payload, _, _ := dec.Decode(nil, buf[n:])
//
// # Thread Safety
//
// Encoder and Decoder hold scratch buffers and compression state and must not
// be shared between goroutines. The package-level functions are safe.
package codec
