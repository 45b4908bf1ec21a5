package fontdiff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wbrown/fontdiff/imageutil"
)

// DiskCache is the persistent tier shared by the renderer and the symbol
// extractor. Images live in 256 shard directories named by the first byte
// of their key; symbol sets live in a separate symbols directory.
//
// A nil *DiskCache is valid and behaves as an always-empty cache that
// discards writes.
type DiskCache struct {
	root string
}

// OpenDiskCache creates the directory layout under root if needed.
func OpenDiskCache(root string) (*DiskCache, error) {
	if err := os.MkdirAll(filepath.Join(root, "symbols"), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	for i := 0; i < 256; i++ {
		if err := os.MkdirAll(filepath.Join(root, fmt.Sprintf("%02x", i)), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &DiskCache{root: root}, nil
}

// Root returns the cache directory.
func (d *DiskCache) Root() string {
	if d == nil {
		return ""
	}
	return d.root
}

func (d *DiskCache) imagePath(key CacheKey) string {
	k := string(key)
	return filepath.Join(d.root, k[:2], k[2:]+".png")
}

func (d *DiskCache) symbolsPath(key CacheKey) string {
	return filepath.Join(d.root, "symbols", string(key)+".symbols")
}

// LoadImage returns the image stored under key. It returns ErrCacheMiss
// when there is no entry and a *CacheCorruptionError when the entry cannot
// be decoded.
func (d *DiskCache) LoadImage(key CacheKey) (*imageutil.RGBAImage, error) {
	if d == nil {
		return nil, ErrCacheMiss
	}
	path := d.imagePath(key)
	data, err := d.read(path)
	if err != nil {
		return nil, err
	}
	img, err := imageutil.DecodePNG(data)
	if err != nil {
		return nil, &CacheCorruptionError{Path: path, Err: err}
	}
	return img, nil
}

// StoreImage writes img under key.
func (d *DiskCache) StoreImage(key CacheKey, img *imageutil.RGBAImage) error {
	if d == nil {
		return nil
	}
	data, err := imageutil.EncodePNG(img.RGBA)
	if err != nil {
		return err
	}
	return d.write(d.imagePath(key), data)
}

// LoadSymbols returns the symbol set stored under key, with the same
// error contract as LoadImage.
func (d *DiskCache) LoadSymbols(key CacheKey) (SymbolSet, error) {
	if d == nil {
		return nil, ErrCacheMiss
	}
	path := d.symbolsPath(key)
	data, err := d.read(path)
	if err != nil {
		return nil, err
	}
	set, err := DecodeSymbolSet(data)
	if err != nil {
		return nil, &CacheCorruptionError{Path: path, Err: err}
	}
	return set, nil
}

// StoreSymbols writes set under key.
func (d *DiskCache) StoreSymbols(key CacheKey, set SymbolSet) error {
	if d == nil {
		return nil
	}
	return d.write(d.symbolsPath(key), EncodeSymbolSet(set))
}

func (d *DiskCache) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, &CacheCorruptionError{Path: path, Err: err}
	}
	return data, nil
}

// write replaces path atomically. Concurrent writers of the same key
// produce the same bytes, so whichever rename lands last is correct.
func (d *DiskCache) write(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cache write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
