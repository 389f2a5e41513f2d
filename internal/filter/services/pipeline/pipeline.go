// Package pipeline keeps a local filter file in sync with its remote source:
// fetch the checksum manifest, reuse the cached file when it matches, and
// otherwise download, verify, decode, and atomically install a new one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/baronrustamov/bloomsync/internal/filter/common/log"
	"github.com/baronrustamov/bloomsync/internal/filter/domain"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/bloom"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/checksum"
)

// cacheDirTag marks the cache directory per the Cache Directory Tagging
// Standard, which backup tools honour by skipping the directory.
const (
	cacheDirTagName    = "CACHEDIR.TAG"
	cacheDirTagContent = "Signature: 8a477f597d28d172789f06886806bc55\n" +
		"# This file is a cache directory tag created by bloomsync.\n" +
		"# Its contents are re-downloaded on demand.\n"
)

// Result is a successful sync.
type Result struct {
	Filter    *bloom.Filter
	Checksum  domain.Checksum
	FromCache bool
}

// Pipeline runs syncs. It holds no per-filter state and may be shared by
// any number of resources.
type Pipeline struct {
	fetcher  Fetcher
	verifier Verifier
	logger   log.Logger
}

// New returns a Pipeline. A nil logger uses the global logger.
func New(fetcher Fetcher, verifier Verifier, logger log.Logger) *Pipeline {
	return &Pipeline{fetcher: fetcher, verifier: verifier, logger: log.WithCategory(logger, log.CategoryStorage)}
}

// Sync brings localPath up to date with src and returns the decoded filter.
// Each step starts only after the previous one succeeded. Errors are
// domain.ErrManifestDecode, domain.ErrInvalidFilterBinary, or *domain.IOError.
func (p *Pipeline) Sync(ctx context.Context, src domain.Source, localPath string) (Result, error) {
	fields := map[string]any{"filter": src.Name}

	want, err := p.fetchManifest(ctx, src)
	if err != nil {
		return Result{}, err
	}

	if f, ok, err := p.useCached(localPath, want); err != nil || ok {
		if ok {
			p.logger.Debug(fields, "cached filter matches manifest, skipping download")
		}
		return Result{Filter: f, Checksum: want, FromCache: ok}, err
	}

	dir := filepath.Dir(localPath)
	tmp, err := p.fetcher.Download(ctx, src.FilterURL, dir)
	if err != nil {
		return Result{}, domain.NewIOError("download filter", err)
	}

	f, err := p.verify(tmp, want)
	if err != nil {
		_ = os.Remove(tmp)
		return Result{}, err
	}

	if err := install(tmp, localPath); err != nil {
		_ = os.Remove(tmp)
		return Result{}, domain.NewIOError("install filter", err)
	}
	p.logger.Info(map[string]any{"filter": src.Name, "path": localPath, "bits": f.NumBits()}, "installed new filter")
	return Result{Filter: f, Checksum: want}, nil
}

func (p *Pipeline) fetchManifest(ctx context.Context, src domain.Source) (domain.Checksum, error) {
	body, err := p.fetcher.Fetch(ctx, src.ChecksumURL)
	if err != nil {
		return domain.Checksum{}, domain.NewIOError("fetch manifest", err)
	}
	return domain.DecodeManifest(body)
}

// useCached returns the cached filter when the file at path matches want.
// A missing, unreadable, or stale file is not an error: ok is false and the
// caller downloads. A matching file that does not decode is ErrInvalidFilterBinary,
// since downloading would fetch the same bytes.
func (p *Pipeline) useCached(path string, want domain.Checksum) (*bloom.Filter, bool, error) {
	if err := p.verifier.VerifyFile(path, want); err != nil {
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, checksum.ErrMismatch) {
			p.logger.Warn(map[string]any{"path": path, "error": err}, "cached filter unreadable, re-downloading")
		}
		return nil, false, nil
	}
	f, err := bloom.Load(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: cached %s: %v", domain.ErrInvalidFilterBinary, path, err)
	}
	return f, true, nil
}

// verify checks a downloaded file against the manifest and decodes it.
func (p *Pipeline) verify(path string, want domain.Checksum) (*bloom.Filter, error) {
	if err := p.verifier.VerifyFile(path, want); err != nil {
		switch {
		case errors.Is(err, checksum.ErrMismatch):
			return nil, fmt.Errorf("%w: download: %w", domain.ErrInvalidFilterBinary, err)
		case errors.Is(err, os.ErrNotExist):
			return nil, domain.NewIOError("verify download", fmt.Errorf("%w: %v", domain.ErrDownloadedFileNotFound, err))
		default:
			return nil, domain.NewIOError("verify download", err)
		}
	}
	f, err := bloom.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: verified download does not decode: %v", domain.ErrInvalidFilterBinary, err)
	}
	return f, nil
}

// install moves tmp over dst with a single rename so readers see either the
// old or the new file. It creates the directory and its backup-exclusion tag
// if missing.
func install(tmp, dst string) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := ensureCacheDirTag(dir); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

func ensureCacheDirTag(dir string) error {
	path := filepath.Join(dir, cacheDirTagName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(cacheDirTagContent), 0o644)
}
