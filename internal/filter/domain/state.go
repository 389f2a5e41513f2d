package domain

import "github.com/baronrustamov/bloomsync/internal/filter/repos/bloom"

// StateKind is the tag of a filter resource's lifecycle state.
type StateKind uint8

const (
	StateNotInitialized StateKind = iota
	StateLoading
	StateReady
	StateFailed
)

var stateKindToString = map[StateKind]string{
	StateNotInitialized: "not_initialized",
	StateLoading:        "loading",
	StateReady:          "ready",
	StateFailed:         "failed",
}

func (k StateKind) String() string {
	if s, ok := stateKindToString[k]; ok {
		return s
	}
	return "unknown"
}

// State is the tagged union held by a filter resource. Filter is set only for
// StateReady and Err only for StateFailed.
type State struct {
	Kind   StateKind
	Filter *bloom.Filter
	Err    error
}

func NotInitialized() State { return State{Kind: StateNotInitialized} }

func Loading() State { return State{Kind: StateLoading} }

func Ready(f *bloom.Filter) State { return State{Kind: StateReady, Filter: f} }

func Failed(err error) State { return State{Kind: StateFailed, Err: err} }
