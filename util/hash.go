// Package util provides the low-level primitives shared across the chain
// core: the 32-byte block/transaction hash type and its double-SHA-256
// derivation, plus the fixed-width and variable-length binary codecs used by
// every wire type in model/block and model/tx.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// HashSize is the length in bytes of a block or transaction hash.
const HashSize = 32

// Hash is an opaque, bytewise-comparable 32-byte identifier for a block or a
// transaction. The all-zero value denotes "no previous block" (a genesis
// header) and "coinbase source" (an input's OutPoint.Hash).
type Hash [HashSize]byte

// HashZero is the reserved all-zero hash.
var HashZero = Hash{}

// DoubleSha256 computes sha256(sha256(b)), the hash function used for block
// and transaction identifiers.
func DoubleSha256(b []byte) Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == HashZero
}

// Cmp does a bytewise comparison of two hashes, returning -1, 0 or 1.
func (h Hash) Cmp(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// String renders the hash in the reversed-byte-order hex form Bitcoin-style
// tooling displays (the wire/storage order is big-endian internal, but block
// explorers print it little-endian).
func (h Hash) String() string {
	var reversed Hash
	for i, b := range h {
		reversed[HashSize-1-i] = b
	}
	return hex.EncodeToString(reversed[:])
}

// HashFromString parses the reversed-hex form produced by String.
func HashFromString(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("hash: invalid hex %q: %w", s, err)
	}
	if len(raw) != HashSize {
		return Hash{}, fmt.Errorf("hash: invalid length %d, want %d", len(raw), HashSize)
	}
	var h Hash
	for i, b := range raw {
		h[HashSize-1-i] = b
	}
	return h, nil
}

// Serialize writes the hash in its natural (non-reversed) byte order.
func (h Hash) Serialize(w io.Writer) error {
	_, err := w.Write(h[:])
	return err
}

// DeserializeHash reads a Hash in its natural byte order.
func DeserializeHash(r io.Reader) (Hash, error) {
	var h Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// WriteUint32 / ReadUint32 and friends give every wire type a consistent
// little-endian fixed-width codec, matching the Bitcoin wire format.

func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func WriteInt64(w io.Writer, v int64) error {
	return WriteUint64(w, uint64(v))
}

func ReadInt64(r io.Reader) (int64, error) {
	v, err := ReadUint64(r)
	return int64(v), err
}

// WriteVarInt / ReadVarInt implement Bitcoin's CompactSize variable-length
// integer encoding, used for script and slice lengths on the wire.
func WriteVarInt(w io.Writer, v uint64) error {
	switch {
	case v < 0xfd:
		_, err := w.Write([]byte{byte(v)})
		return err
	case v <= 0xffff:
		if _, err := w.Write([]byte{0xfd}); err != nil {
			return err
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(v))
		_, err := w.Write(buf[:])
		return err
	case v <= 0xffffffff:
		if _, err := w.Write([]byte{0xfe}); err != nil {
			return err
		}
		return WriteUint32(w, uint32(v))
	default:
		if _, err := w.Write([]byte{0xff}); err != nil {
			return err
		}
		return WriteUint64(w, v)
	}
}

func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	switch prefix[0] {
	case 0xfd:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(buf[:])), nil
	case 0xfe:
		v, err := ReadUint32(r)
		return uint64(v), err
	case 0xff:
		return ReadUint64(r)
	default:
		return uint64(prefix[0]), nil
	}
}

// WriteVarBytes / ReadVarBytes write a length-prefixed byte slice (scripts,
// witness data) using the VarInt length codec above.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func ReadVarBytes(r io.Reader, maxLen uint64) ([]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, fmt.Errorf("util: varbytes length %d exceeds max %d", n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
