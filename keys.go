package fontdiff

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// CacheKey identifies a cache entry. It is the hex form of a 64-bit hash,
// so the first two characters pick one of 256 disk shards.
type CacheKey string

// keyBuilder hashes length-prefixed fields so that adjacent fields can
// never run together into the same byte stream.
type keyBuilder struct {
	d   *xxhash.Digest
	buf [binary.MaxVarintLen64]byte
}

func newKeyBuilder(kind string) *keyBuilder {
	b := &keyBuilder{d: xxhash.New()}
	b.str(kind)
	return b
}

func (b *keyBuilder) num(v int) {
	n := binary.PutVarint(b.buf[:], int64(v))
	b.d.Write(b.buf[:n])
}

func (b *keyBuilder) str(s string) {
	b.num(len(s))
	b.d.WriteString(s)
}

func (b *keyBuilder) runes(rs []rune) {
	b.num(len(rs))
	for _, r := range rs {
		b.num(int(r))
	}
}

func (b *keyBuilder) key() CacheKey {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], b.d.Sum64())
	return CacheKey(hex.EncodeToString(sum[:]))
}

// SymbolKey is the disk cache key of a font's symbol set.
func SymbolKey(path string) CacheKey {
	b := newKeyBuilder("font")
	b.str(path)
	return b.key()
}

// MatrixKey is the cache key of a rendered matrix. The layout is part of
// the key so renders at different geometries never collide.
func MatrixKey(req MatrixRequest, layout Layout) CacheKey {
	b := newKeyBuilder("matrix")
	b.runes(req.Symbols)
	b.num(req.GridSize)
	b.str(req.Font)
	b.str(req.Title)
	b.num(req.XOffset)
	b.num(req.YOffset)
	b.num(layout.FontSize)
	b.num(layout.Padding)
	b.num(layout.TitleHeight)
	b.str(strconv.FormatFloat(layout.TitleSize, 'g', -1, 64))
	return b.key()
}

// FileDigest returns the hex SHA-256 of a file's content. It names the
// run directory and detects byte-identical candidate fonts.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
