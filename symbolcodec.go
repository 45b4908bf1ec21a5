package fontdiff

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Symbol set file format, version 1:
//
//	magic    "FDSS"
//	version  1 byte
//	count    uvarint
//	deltas   count uvarints; the first is the smallest codepoint, each
//	         following one is the gap to the previous codepoint
//	checksum 8 bytes, little-endian xxhash64 of everything above
const (
	symbolMagic   = "FDSS"
	symbolVersion = 1
)

var (
	errBadMagic    = errors.New("bad magic")
	errBadChecksum = errors.New("checksum mismatch")
	errTruncated   = errors.New("truncated data")
)

// EncodeSymbolSet serializes a set in the versioned binary format.
func EncodeSymbolSet(s SymbolSet) []byte {
	buf := make([]byte, 0, len(symbolMagic)+1+binary.MaxVarintLen64+len(s)*2+8)
	buf = append(buf, symbolMagic...)
	buf = append(buf, symbolVersion)
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	prev := rune(0)
	for _, r := range s {
		buf = binary.AppendUvarint(buf, uint64(r-prev))
		prev = r
	}
	return binary.LittleEndian.AppendUint64(buf, xxhash.Sum64(buf))
}

// DecodeSymbolSet parses data written by EncodeSymbolSet.
func DecodeSymbolSet(data []byte) (SymbolSet, error) {
	head := len(symbolMagic) + 1
	if len(data) < head+8 {
		return nil, errTruncated
	}
	if string(data[:len(symbolMagic)]) != symbolMagic {
		return nil, errBadMagic
	}
	if v := data[len(symbolMagic)]; v != symbolVersion {
		return nil, fmt.Errorf("unsupported version %d", v)
	}
	body, sum := data[:len(data)-8], data[len(data)-8:]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(sum) {
		return nil, errBadChecksum
	}

	p := body[head:]
	count, n := binary.Uvarint(p)
	if n <= 0 {
		return nil, errTruncated
	}
	p = p[n:]
	// Each delta takes at least one byte.
	if count > uint64(len(p)) {
		return nil, errTruncated
	}

	set := make(SymbolSet, 0, count)
	prev := uint64(0)
	for i := uint64(0); i < count; i++ {
		delta, n := binary.Uvarint(p)
		if n <= 0 {
			return nil, errTruncated
		}
		p = p[n:]
		if i > 0 && delta == 0 {
			return nil, errors.New("codepoints not strictly increasing")
		}
		prev += delta
		if prev > 0x10FFFF {
			return nil, fmt.Errorf("codepoint %#x out of range", prev)
		}
		set = append(set, rune(prev))
	}
	if len(p) != 0 {
		return nil, fmt.Errorf("%d trailing bytes", len(p))
	}
	return set, nil
}
