// Package checksum computes and verifies the SHA-256 and MD5 digests of filter files.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/baronrustamov/bloomsync/internal/filter/domain"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/mru"
)

var ErrMismatch = errors.New("checksum mismatch")

// Compute hashes r with SHA-256 and MD5 in a single pass.
func Compute(r io.Reader) (domain.Checksum, int64, error) {
	sh := sha256.New()
	md := md5.New()
	n, err := io.Copy(io.MultiWriter(sh, md), r)
	if err != nil {
		return domain.Checksum{}, n, err
	}
	return domain.Checksum{
		SHA256: hex.EncodeToString(sh.Sum(nil)),
		MD5:    hex.EncodeToString(md.Sum(nil)),
	}, n, nil
}

// fileStamp identifies a file revision. A file rewritten in place with the
// same size and modification time is indistinguishable, which holds for the
// cache directory because files there are only ever replaced by rename.
type fileStamp struct {
	path    string
	size    int64
	modTime int64
}

// Verifier computes file digests, optionally remembering the digests of
// recently hashed files so an unchanged cache file is not re-read on every sync.
type Verifier struct {
	mu     sync.Mutex
	digest *mru.Cache[fileStamp, domain.Checksum]
}

// NewVerifier returns a Verifier that remembers up to cacheSize file digests.
// cacheSize <= 0 disables the digest cache.
func NewVerifier(cacheSize int) (*Verifier, error) {
	v := &Verifier{}
	if cacheSize <= 0 {
		return v, nil
	}
	c, err := mru.New[fileStamp, domain.Checksum](cacheSize)
	if err != nil {
		return nil, err
	}
	v.digest = c
	return v, nil
}

// ComputeFile returns the digests of the file at path.
func (v *Verifier) ComputeFile(path string) (domain.Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Checksum{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.Checksum{}, err
	}
	stamp := fileStamp{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if c, ok := v.lookup(stamp); ok {
		return c, nil
	}

	c, _, err := Compute(f)
	if err != nil {
		return domain.Checksum{}, fmt.Errorf("hash %s: %w", path, err)
	}
	v.remember(stamp, c)
	return c, nil
}

// VerifyFile returns nil when the file at path matches want, an error
// wrapping ErrMismatch when it does not, or the I/O error that prevented hashing.
func (v *Verifier) VerifyFile(path string, want domain.Checksum) error {
	got, err := v.ComputeFile(path)
	if err != nil {
		return err
	}
	if !want.Matches(got) {
		return fmt.Errorf("%w: %s has sha256 %s md5 %s, want sha256 %s md5 %s",
			ErrMismatch, path, got.SHA256, got.MD5, want.SHA256, want.MD5)
	}
	return nil
}

// CacheStats describes the digest cache. All fields are zero when the cache
// is disabled.
type CacheStats struct {
	Entries   int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns a snapshot of the digest cache counters.
func (v *Verifier) Stats() CacheStats {
	if v.digest == nil {
		return CacheStats{}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	hits, misses, evictions := v.digest.Stats()
	return CacheStats{
		Entries:   v.digest.Len(),
		Capacity:  v.digest.Capacity(),
		Hits:      hits,
		Misses:    misses,
		Evictions: evictions,
	}
}

// Purge forgets every remembered digest.
func (v *Verifier) Purge() {
	if v.digest == nil {
		return
	}
	v.mu.Lock()
	v.digest.Purge()
	v.mu.Unlock()
}

func (v *Verifier) lookup(s fileStamp) (domain.Checksum, bool) {
	if v.digest == nil {
		return domain.Checksum{}, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.digest.Get(s)
}

func (v *Verifier) remember(s fileStamp, c domain.Checksum) {
	if v.digest == nil {
		return
	}
	v.mu.Lock()
	v.digest.Set(s, c)
	v.mu.Unlock()
}
