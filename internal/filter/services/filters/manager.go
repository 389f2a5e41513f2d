// Package filters owns the named filters of a process: one Resource per
// configured source, triggered lazily by membership queries.
package filters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/baronrustamov/bloomsync/internal/filter/common/clock"
	"github.com/baronrustamov/bloomsync/internal/filter/common/log"
	"github.com/baronrustamov/bloomsync/internal/filter/domain"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/journal"
)

// CacheSubdir is the directory under Options.CacheDir that holds the cached
// filters. The manager owns it entirely; Clear removes it.
const CacheSubdir = "BloomFilter"

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrClosed        = errors.New("filter manager closed")
)

// Options configures a Manager. Journal, Clock and Logger are optional.
type Options struct {
	Sources []domain.Source
	// CacheDir is the parent of the manager's own CacheSubdir. Other
	// contents of CacheDir are never touched.
	CacheDir string
	Syncer   Syncer
	Journal  Journal
	Clock    clock.Clock
	Logger   log.Logger
	// RetryFailed lets a query against a Failed filter start a new sync.
	// Without it Failed is terminal until Reset.
	RetryFailed bool
}

// Manager routes queries to per-name resources.
type Manager struct {
	cacheDir    string
	retryFailed bool
	journal     Journal
	logger      log.Logger
	resources   map[string]*Resource

	// ctx parents every background sync and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewManager builds a Manager with one NotInitialized resource per source.
// No network activity happens until the first query or Load.
func NewManager(opts Options) (*Manager, error) {
	if opts.Syncer == nil {
		return nil, errors.New("filters: nil syncer")
	}
	if opts.CacheDir == "" {
		return nil, errors.New("filters: empty cache dir")
	}

	m := &Manager{
		cacheDir:    filepath.Join(opts.CacheDir, CacheSubdir),
		retryFailed: opts.RetryFailed,
		journal:     opts.Journal,
		logger:      log.WithCategory(opts.Logger, log.CategoryStorage),
		resources:   make(map[string]*Resource, len(opts.Sources)),
	}

	files := make(map[string]string, len(opts.Sources))
	for _, src := range opts.Sources {
		if _, dup := m.resources[src.Name]; dup {
			return nil, fmt.Errorf("filters: duplicate filter name %q", src.Name)
		}
		file, err := src.CacheFileName()
		if err != nil {
			return nil, fmt.Errorf("filters: %s: %w", src.Name, err)
		}
		if other, dup := files[file]; dup {
			return nil, fmt.Errorf("filters: %s and %s share cache file %q", other, src.Name, file)
		}
		files[file] = src.Name

		m.resources[src.Name] = NewResource(src, filepath.Join(m.cacheDir, file), ResourceOptions{
			Syncer:  opts.Syncer,
			Journal: opts.Journal,
			Clock:   opts.Clock,
			Logger:  opts.Logger,
		})
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// CacheDir returns the directory holding the cached filter files.
func (m *Manager) CacheDir() string { return m.cacheDir }

// Names returns the configured filter names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.resources))
	for n := range m.resources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether key may be in the named filter. It never blocks
// on I/O: while the filter is not Ready it answers false, starting a
// background sync first if none has run yet.
func (m *Manager) Contains(name, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}
	r, ok := m.resources[name]
	if !ok {
		return false
	}

	st := r.State()
	switch st.Kind {
	case domain.StateReady:
		return st.Filter.MayContain(key)
	case domain.StateNotInitialized:
		r.LoadAsync(m.ctx)
	case domain.StateFailed:
		if m.retryFailed && r.resetFailed() {
			r.LoadAsync(m.ctx)
		}
	}
	return false
}

// Load synchronously brings the named filter to Ready or Failed. A sync
// already in flight is joined, not duplicated. If ctx ends or the manager is
// closed first, Load returns the Loading state with the context error; a sync
// this call started is cancelled, a joined one keeps running.
func (m *Manager) Load(ctx context.Context, name string) (domain.State, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return domain.State{}, ErrClosed
	}
	r, ok := m.resources[name]
	m.mu.RUnlock()
	if !ok {
		return domain.State{}, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	st := r.Load(ctx)
	if st.Kind == domain.StateLoading {
		return st, ctx.Err()
	}
	return st, nil
}

// LoadAll loads every filter concurrently and returns their final states.
func (m *Manager) LoadAll(ctx context.Context) (map[string]domain.State, error) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		states = make(map[string]domain.State, len(m.resources))
		errs   error
	)
	for _, name := range m.Names() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := m.Load(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				return
			}
			states[name] = st
		}()
	}
	wg.Wait()
	return states, errs
}

// Status returns the current state of the named filter.
func (m *Manager) Status(name string) (domain.State, bool) {
	r, ok := m.resources[name]
	if !ok {
		return domain.State{}, false
	}
	return r.State(), true
}

// LastSync returns the journalled outcome of the most recent sync of the named
// filter, including syncs from earlier runs of the process.
func (m *Manager) LastSync(name string) (journal.Entry, bool, error) {
	if _, ok := m.resources[name]; !ok {
		return journal.Entry{}, false, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
	if m.journal == nil {
		return journal.Entry{}, false, nil
	}
	return m.journal.Get(name)
}

// Reset returns the named filter to NotInitialized. It reports false for an
// unknown name or while a sync is in flight.
func (m *Manager) Reset(name string) bool {
	r, ok := m.resources[name]
	if !ok {
		return false
	}
	return r.Reset()
}

// Clear deletes the cache subdirectory and the journal entries, and resets
// every filter that is not currently loading so the next query downloads
// afresh. Nothing else under Options.CacheDir is removed.
func (m *Manager) Clear() error {
	var errs error
	if err := os.RemoveAll(m.cacheDir); err != nil {
		errs = multierr.Append(errs, domain.NewIOError("clear cache", err))
	}
	for _, name := range m.Names() {
		if !m.resources[name].Reset() {
			m.logger.Warn(map[string]any{"filter": name}, "filter is loading, not reset by clear")
		}
		if m.journal != nil {
			errs = multierr.Append(errs, m.journal.Delete(name))
		}
	}
	return errs
}

// Close cancels in-flight syncs, waits for them to finish, and closes the
// journal. Queries after Close answer false.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	for _, r := range m.resources {
		r.Wait()
	}

	var errs error
	if m.journal != nil {
		errs = multierr.Append(errs, m.journal.Close())
	}
	return errs
}
