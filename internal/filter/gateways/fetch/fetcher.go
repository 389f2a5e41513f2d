// Package fetch is the HTTP transport for filter manifests and binaries.
// Each call is a single attempt: there is no automatic retry.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/baronrustamov/bloomsync/internal/filter/domain"
)

// Error message constants for consistent error handling
const (
	errNewRequest    = "build request for %s: %w"
	errRequestFailed = "request %s: %w"
	errBadStatus     = "request %s: unexpected status %s"
	errTooLarge      = "response from %s exceeds %d bytes"
	errCreateTemp    = "create temp file in %s: %w"
	errWriteTemp     = "write %s: %w"
)

const (
	defaultMaxDocumentBytes = 1 << 20
	defaultPollInterval     = 5 * time.Second
)

// Options configures a Fetcher. Zero values select defaults.
type Options struct {
	// Timeout bounds each request, including the body transfer. 0 disables it.
	Timeout time.Duration
	Policy  NetworkPolicy
	// MaxDocumentBytes caps Fetch responses. Manifests are tiny; anything
	// larger is a misconfigured URL.
	MaxDocumentBytes int64
	// PollInterval is how often the path is re-checked while waiting for connectivity.
	PollInterval time.Duration

	// options to inject for testing purposes
	Client  *http.Client
	Monitor PathMonitor
}

// Fetcher downloads documents and files over HTTP under a NetworkPolicy.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	policy   NetworkPolicy
	monitor  PathMonitor
	maxDoc   int64
	interval time.Duration
}

// New returns a Fetcher configured by opts.
func New(opts Options) *Fetcher {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Monitor == nil {
		opts.Monitor = NewDialMonitor(nil, 0)
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Fetcher{
		client:   opts.Client,
		timeout:  opts.Timeout,
		policy:   opts.Policy,
		monitor:  opts.Monitor,
		maxDoc:   opts.MaxDocumentBytes,
		interval: opts.PollInterval,
	}
}

// awaitPath blocks until the path to rawURL is usable under the policy.
func (f *Fetcher) awaitPath(ctx context.Context, rawURL string) error {
	for {
		if f.policy.usable(f.monitor.Status(ctx, rawURL)) {
			return nil
		}
		if !f.policy.WaitForConnectivity {
			return ErrNoUsablePath
		}
		t := time.NewTimer(f.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("waiting for connectivity: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// get performs a GET and returns the response when the status is 2xx.
// The caller closes the body and calls cancel.
func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, context.CancelFunc, error) {
	if err := f.awaitPath(ctx, rawURL); err != nil {
		return nil, nil, err
	}
	cancel := context.CancelFunc(func() {})
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf(errNewRequest, rawURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf(errRequestFailed, rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		cancel()
		return nil, nil, fmt.Errorf(errBadStatus, rawURL, resp.Status)
	}
	return resp, cancel, nil
}

// Fetch returns the body of a small document such as a checksum manifest.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, cancel, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxDoc+1))
	if err != nil {
		return nil, fmt.Errorf(errRequestFailed, rawURL, err)
	}
	if int64(len(body)) > f.maxDoc {
		return nil, fmt.Errorf(errTooLarge, rawURL, f.maxDoc)
	}
	return body, nil
}

// Download streams rawURL into a new temporary file in dir and returns its
// path. dir is created if missing. The file is placed next to its eventual
// destination so it can be renamed into place atomically. On error no
// temporary file is left behind.
func (f *Fetcher) Download(ctx context.Context, rawURL, dir string) (string, error) {
	resp, cancel, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer resp.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf(errCreateTemp, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return "", fmt.Errorf(errCreateTemp, dir, err)
	}
	name := tmp.Name()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf(errWriteTemp, name, errors.Join(copyErr, closeErr))
	}

	if _, err := os.Stat(name); err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrDownloadedFileNotFound, filepath.Base(name), err)
	}
	return name, nil
}
