package papersources

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

// SourceResult holds the outcome of one provider call in a fan-out.
type SourceResult struct {
	// Source identifies the provider.
	Source domain.SourceType

	// Candidates is nil when Err is set.
	Candidates []domain.Candidate

	// Err is the provider error, if any.
	Err error

	// Duration is the wall time of the call.
	Duration time.Duration
}

// Registry manages provider adapters and coordinates concurrent calls.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.SourceType]Adapter
	limit    int
}

// NewRegistry creates an empty registry. maxConcurrency bounds the number of
// in-flight provider calls per fan-out; zero or less means one goroutine per
// provider.
func NewRegistry(maxConcurrency int) *Registry {
	return &Registry{
		adapters: make(map[domain.SourceType]Adapter),
		limit:    maxConcurrency,
	}
}

// Register adds an adapter, replacing any previous one for the same source.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Source()] = a
}

// Get returns the adapter for source.
func (r *Registry) Get(source domain.SourceType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[source]
	return a, ok
}

// All returns every registered adapter in a stable order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(Adapter) bool { return true })
}

// Enabled returns the enabled adapters in a stable order.
func (r *Registry) Enabled() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(Adapter.IsEnabled)
}

func (r *Registry) sortedLocked(keep func(Adapter) bool) []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Adapter) int {
		return sourceRank(a.Source()) - sourceRank(b.Source())
	})
	return out
}

func sourceRank(s domain.SourceType) int {
	if i := slices.Index(domain.AllSourceTypes, s); i >= 0 {
		return i
	}
	return len(domain.AllSourceTypes)
}

// Fanout runs call against each adapter concurrently and waits for all of
// them. Results keep the order of adapters. Errors are reported per source
// and never cancel sibling calls; cancelling ctx aborts calls in flight.
func (r *Registry) Fanout(ctx context.Context, adapters []Adapter, call func(context.Context, Adapter) ([]domain.Candidate, error)) []SourceResult {
	results := make([]SourceResult, len(adapters))
	if len(adapters) == 0 {
		return results
	}

	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, a := range adapters {
		g.Go(func() error {
			start := time.Now()
			cs, err := call(ctx, a)
			if err != nil {
				cs = nil
			}
			results[i] = SourceResult{
				Source:     a.Source(),
				Candidates: cs,
				Err:        err,
				Duration:   time.Since(start),
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
