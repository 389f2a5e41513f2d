package pipeline

import (
	"context"

	"github.com/baronrustamov/bloomsync/internal/filter/domain"
)

// Fetcher retrieves remote manifests and filter binaries.
type Fetcher interface {
	// Fetch returns the body of a small document.
	Fetch(ctx context.Context, url string) ([]byte, error)
	// Download writes the resource into a new temporary file in dir and returns its path.
	Download(ctx context.Context, url, dir string) (string, error)
}

// Verifier checks a file against expected digests. A mismatch is reported
// as an error wrapping checksum.ErrMismatch.
type Verifier interface {
	VerifyFile(path string, want domain.Checksum) error
}
