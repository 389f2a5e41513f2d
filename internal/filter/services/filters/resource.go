package filters

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/baronrustamov/bloomsync/internal/filter/common/clock"
	"github.com/baronrustamov/bloomsync/internal/filter/common/log"
	"github.com/baronrustamov/bloomsync/internal/filter/domain"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/bloom"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/journal"
	"github.com/baronrustamov/bloomsync/internal/filter/services/pipeline"
)

// Resource is the lifecycle of one named filter:
//
//	NotInitialized -> Loading -> Ready(filter) | Failed(err)
//
// Ready and Failed are final until Reset. Readers take a read lock only and
// see a complete state; the single transition out of NotInitialized happens
// under the write lock, so at most one sync per cycle runs no matter how many
// callers race to start it.
type Resource struct {
	src       domain.Source
	localPath string
	syncer    Syncer
	journal   Journal
	clock     clock.Clock
	logger    log.Logger

	mu    sync.RWMutex
	state domain.State
	// done is closed when the current (or last) sync run finishes; nil
	// before the first run.
	done chan struct{}
}

// ResourceOptions carries a Resource's collaborators. Journal is optional.
type ResourceOptions struct {
	Syncer  Syncer
	Journal Journal
	Clock   clock.Clock
	Logger  log.Logger
}

// NewResource returns a NotInitialized resource that caches src at localPath.
func NewResource(src domain.Source, localPath string, opts ResourceOptions) *Resource {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Resource{
		src:       src,
		localPath: localPath,
		syncer:    opts.Syncer,
		journal:   opts.Journal,
		clock:     opts.Clock,
		logger:    log.WithCategory(opts.Logger, log.CategoryStorage),
		state:     domain.NotInitialized(),
	}
}

// Name returns the filter name.
func (r *Resource) Name() string { return r.src.Name }

// State returns a snapshot of the current state.
func (r *Resource) State() domain.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Filter returns the published filter when the resource is Ready.
func (r *Resource) Filter() (*bloom.Filter, bool) {
	st := r.State()
	return st.Filter, st.Kind == domain.StateReady
}

// begin moves NotInitialized to Loading. Only the caller that makes the move
// gets ok == true and must run the sync and close done.
func (r *Resource) begin() (done chan struct{}, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Kind != domain.StateNotInitialized {
		return nil, false
	}
	r.state = domain.Loading()
	r.done = make(chan struct{})
	return r.done, true
}

// Load runs a sync if the resource is NotInitialized, or joins one in
// flight, and returns the resulting state. On a Ready or Failed resource it
// returns immediately without fetching anything. A joining caller whose ctx
// ends first stops waiting and gets the Loading state; the sync it joined
// keeps running.
func (r *Resource) Load(ctx context.Context) domain.State {
	if done, ok := r.begin(); ok {
		r.run(ctx, done)
		return r.State()
	}
	r.wait(ctx)
	return r.State()
}

// LoadAsync starts a sync in the background if the resource is
// NotInitialized and reports whether this call started it.
func (r *Resource) LoadAsync(ctx context.Context) bool {
	done, ok := r.begin()
	if !ok {
		return false
	}
	go r.run(ctx, done)
	return true
}

// Wait blocks until no sync is in flight.
func (r *Resource) Wait() {
	r.wait(context.Background())
}

// wait blocks until no sync is in flight or ctx ends.
func (r *Resource) wait(ctx context.Context) {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Reset returns a Ready or Failed resource to NotInitialized so the next load
// syncs again. It refuses while a sync is in flight.
func (r *Resource) Reset() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Kind == domain.StateLoading {
		return false
	}
	r.state = domain.NotInitialized()
	return true
}

// resetFailed is Reset restricted to the Failed state.
func (r *Resource) resetFailed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Kind != domain.StateFailed {
		return false
	}
	r.state = domain.NotInitialized()
	return true
}

func (r *Resource) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	runID := uuid.NewString()
	fields := map[string]any{"filter": r.src.Name, "run_id": runID}
	r.logger.Debug(fields, "filter sync started")

	res, err := r.syncer.Sync(ctx, r.src, r.localPath)
	if err == nil && res.Filter == nil {
		err = domain.ErrInvalidFilterBinary
	}

	r.mu.Lock()
	if err != nil {
		r.state = domain.Failed(err)
	} else {
		r.state = domain.Ready(res.Filter)
	}
	r.mu.Unlock()

	if err != nil {
		fields["error"] = err
		r.logger.Error(fields, "filter sync failed")
	} else {
		fields["from_cache"] = res.FromCache
		fields["bits"] = res.Filter.NumBits()
		fields["fill_ratio"] = res.Filter.FillRatio()
		r.logger.Info(fields, "filter ready")
	}
	r.record(runID, res, err)
}

func (r *Resource) record(runID string, res pipeline.Result, err error) {
	if r.journal == nil {
		return
	}
	e := journal.Entry{
		Name:        r.src.Name,
		RunID:       runID,
		SHA256:      res.Checksum.SHA256,
		MD5:         res.Checksum.MD5,
		UpdatedUnix: r.clock.Now().Unix(),
	}
	switch {
	case err != nil:
		e.Outcome = journal.OutcomeFailed
		e.Error = err.Error()
	case res.FromCache:
		e.Outcome = journal.OutcomeCacheHit
		e.NumBits = res.Filter.NumBits()
	default:
		e.Outcome = journal.OutcomeDownloaded
		e.NumBits = res.Filter.NumBits()
	}
	if jerr := r.journal.Record(e); jerr != nil {
		r.logger.Warn(map[string]any{"filter": r.src.Name, "error": jerr}, "failed to journal sync outcome")
	}
}
