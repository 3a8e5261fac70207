package resolver

import (
	"errors"
	"sync"

	"github.com/pthm/flowscope/pkg/flow"
)

// Store memoizes sub-workflow analyses by name for one run.
//
// Each name is computed at most once. A caller that asks for a name whose
// computation is still running blocks until the first caller finishes and
// then shares its result, unless blocking would close a wait cycle between
// concurrent resolutions; do then reports errWaitCycle and the caller
// computes without the store. Failures are memoized as well so that a
// missing sub-workflow referenced from many places is fetched once.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	hits         int
	misses       int
	computations int
}

type entry struct {
	done     chan struct{}
	owner    *walk
	analysis *flow.WorkflowAnalysis
	err      error
}

// walk is one resolution chain: a top-level analysis or a Resolve call and
// everything it descends into. A walk runs on one goroutine, so it waits on
// at most one entry at a time. Guarded by Store.mu.
type walk struct {
	waitingOn *entry
}

// errWaitCycle is returned by do when waiting for an in-flight entry would
// deadlock.
var errWaitCycle = errors.New("resolver: in-flight entry waits on this resolution")

// Stats are the store counters.
type Stats struct {
	Hits         int `json:"hits"`
	Misses       int `json:"misses"`
	Computations int `json:"computations"`
	Entries      int `json:"entries"`
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// do returns the memoized result for name, running compute on the first
// request on behalf of w. cached reports whether the result came from an
// earlier (or concurrent) computation.
func (s *Store) do(w *walk, name string, compute func() (*flow.WorkflowAnalysis, error)) (a *flow.WorkflowAnalysis, cached bool, err error) {
	s.mu.Lock()
	if e, ok := s.entries[name]; ok {
		select {
		case <-e.done:
		default:
			if s.closesCycle(w, e) {
				s.mu.Unlock()
				return nil, false, errWaitCycle
			}
		}
		s.hits++
		w.waitingOn = e
		s.mu.Unlock()

		<-e.done

		s.mu.Lock()
		w.waitingOn = nil
		s.mu.Unlock()
		return e.analysis, true, e.err
	}
	e := &entry{done: make(chan struct{}), owner: w}
	s.entries[name] = e
	s.misses++
	s.computations++
	s.mu.Unlock()

	defer close(e.done)
	e.analysis, e.err = compute()
	return e.analysis, false, e.err
}

// closesCycle reports whether w waiting on the in-flight entry e would
// deadlock: e is computed by w itself, or by a walk that is (transitively)
// waiting on an entry w computes. Callers hold s.mu.
func (s *Store) closesCycle(w *walk, e *entry) bool {
	for owner := e.owner; owner != nil; {
		if owner == w {
			return true
		}
		next := owner.waitingOn
		if next == nil {
			return false
		}
		owner = next.owner
	}
	return false
}

// Get returns a completed analysis for name.
func (s *Store) Get(name string) (*flow.WorkflowAnalysis, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
		return e.analysis, e.err == nil && e.analysis != nil
	default:
		return nil, false
	}
}

// Has reports whether name has been requested, finished or not.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:         s.hits,
		Misses:       s.misses,
		Computations: s.computations,
		Entries:      len(s.entries),
	}
}
