// Package cache implements the content-addressed on-disk store for fetched
// media. Assets are keyed by (source URL, quality selector), written to a
// temporary path and atomically renamed into place, so readers never observe
// a partially written file at a canonical path.
package cache

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ext is the canonical intermediate container extension for all cached
// assets, regardless of the output format eventually requested.
const Ext = ".mp4"

// Key addresses one cached asset. The URL digest groups all quality
// variants of a source URL; the quality tag distinguishes them.
type Key struct {
	urlDigest  string
	qualityTag string
}

// NewKey derives the deterministic cache key for a source URL and quality
// selector. An empty quality maps to the tag "none". Identical inputs always
// produce identical keys.
func NewKey(sourceURL, quality string) Key {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	return Key{
		urlDigest:  hex.EncodeToString(sum[:]),
		qualityTag: qualityTag(quality),
	}
}

// String returns the filename stem for the key.
func (k Key) String() string {
	return k.urlDigest + "-" + k.qualityTag
}

// qualityTag maps a quality selector onto a filesystem-safe token.
func qualityTag(quality string) string {
	quality = strings.TrimSpace(quality)
	if quality == "" {
		return "none"
	}
	var b strings.Builder
	for _, r := range quality {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Store is a directory of cached media assets.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed and returns a Store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the canonical path for a key, whether or not it exists.
func (s *Store) Path(key Key) string {
	return filepath.Join(s.dir, key.String()+Ext)
}

// Ensure reports whether the asset for key is already cached. It performs
// only an existence check; it never creates or reads the file.
func (s *Store) Ensure(key Key) (path string, ok bool) {
	p := s.Path(key)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// TempPath returns a unique temporary path in the cache directory for
// writing the asset before publishing. Unique names keep concurrent workers
// for the same key from clobbering each other's in-progress files.
func (s *Store) TempPath(key Key) string {
	var b [8]byte
	rand.Read(b[:])
	return filepath.Join(s.dir, key.String()+".tmp-"+hex.EncodeToString(b[:])+Ext)
}

// Publish atomically moves a fully written temporary file onto the key's
// canonical path. Temp and canonical paths live in the same directory, so
// the rename is atomic; concurrent publishes for the same key resolve as
// last writer wins.
func (s *Store) Publish(key Key, tempPath string) (string, error) {
	dst := s.Path(key)
	if err := os.Rename(tempPath, dst); err != nil {
		return "", fmt.Errorf("publish cache entry: %w", err)
	}
	return dst, nil
}

// Invalidate removes every cached quality variant for the given source URL
// and returns how many files were removed. Removal is best-effort; a file
// that disappears mid-walk is not an error.
func (s *Store) Invalidate(sourceURL string) (int, error) {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	stem := hex.EncodeToString(sum[:])

	matches, err := filepath.Glob(filepath.Join(s.dir, stem+"-*"+Ext))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed, nil
}
