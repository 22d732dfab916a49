// Package resolver turns partial references into ranked candidate works and
// free-text topics into ranked discovery candidates.
//
// Resolution fans out across the enabled providers. Each provider walks the
// same tier chain and stops at the first tier whose fields the reference
// carries:
//
//  1. identifier lookup (DOI, PubMed ID or arXiv ID, whichever it indexes)
//  2. title plus the first two authors
//  3. title alone
//  4. authors plus year, only when there is no title
//
// A provider failure never fails a resolution. It is logged and the provider
// contributes nothing.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/observability"
	"github.com/helixir/citation-discovery-service/internal/papersources"
	"github.com/helixir/citation-discovery-service/internal/scoring"
)

const (
	// MinRelevance is the acceptance threshold for title tiers.
	MinRelevance = 0.3
	// MinAuthorYearRelevance is the acceptance threshold for the author+year
	// tier, whose signal is weaker.
	MinAuthorYearRelevance = 0.2
	// MaxResults caps a resolution result.
	MaxResults = 5
	// IdentifierRelevance is the score attached to identifier matches.
	IdentifierRelevance = 1.0

	// DefaultTimeout bounds a whole resolution or discovery run.
	DefaultTimeout = 45 * time.Second
)

// Recorder receives resolution telemetry. observability.Metrics implements it.
type Recorder interface {
	RecordResolution(mode string, candidates int, d time.Duration)
	RecordDiscovery(source string, candidates int, d time.Duration)
	RecordProviderCall(source string, tier string, err error, d time.Duration)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for provider diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTimeout bounds every Resolve, ResolveWith and Discover call. Zero or
// less disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithClock sets the clock used for discovery recency scoring.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// Orchestrator coordinates provider adapters, scoring and ranking. It is safe
// for concurrent use.
type Orchestrator struct {
	registry *papersources.Registry
	logger   zerolog.Logger
	recorder Recorder
	timeout  time.Duration
	clock    clock.Clock
}

// New creates an Orchestrator over the adapters in registry.
func New(registry *papersources.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		logger:   zerolog.Nop(),
		timeout:  DefaultTimeout,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resolve queries every enabled provider concurrently and returns the merged,
// thresholded and ranked candidates, at most MaxResults of them. It never
// fails: an empty reference or universal provider failure yields an empty
// result.
func (o *Orchestrator) Resolve(ctx context.Context, ref domain.ParsedReference) []domain.Candidate {
	start := time.Now()
	if ref.IsEmpty() {
		o.record("blended", 0, start)
		return []domain.Candidate{}
	}

	ctx, cancel := o.withTimeout(observability.WithOperation(ctx, observability.OperationResolve))
	defer cancel()

	results := o.registry.Fanout(ctx, o.registry.Enabled(), func(ctx context.Context, a papersources.Adapter) ([]domain.Candidate, error) {
		return o.resolveOne(ctx, a, ref), nil
	})

	var merged []domain.Candidate
	for _, r := range results {
		merged = append(merged, r.Candidates...)
	}
	out := rank(merged)
	o.record("blended", len(out), start)
	return out
}

// ResolveWith resolves ref against a single provider. It fails only when
// source is not registered.
func (o *Orchestrator) ResolveWith(ctx context.Context, source domain.SourceType, ref domain.ParsedReference) ([]domain.Candidate, error) {
	a, ok := o.registry.Get(source)
	if !ok {
		return nil, domain.NewNotFoundError("provider", string(source))
	}

	start := time.Now()
	if ref.IsEmpty() {
		o.record("single", 0, start)
		return []domain.Candidate{}, nil
	}

	ctx, cancel := o.withTimeout(observability.WithOperation(ctx, observability.OperationResolveSingle))
	defer cancel()

	out := rank(o.resolveOne(ctx, a, ref))
	o.record("single", len(out), start)
	return out, nil
}

// Discover runs a topic search on one provider and ranks the results by
// generation score. Candidates with neither title nor abstract are dropped.
// Provider failures yield an empty result; unknown providers and providers
// without topic search are errors.
func (o *Orchestrator) Discover(ctx context.Context, source domain.SourceType, topic string, limit int, filters domain.DiscoveryFilters) ([]domain.Candidate, error) {
	a, ok := o.registry.Get(source)
	if !ok {
		return nil, domain.NewNotFoundError("provider", string(source))
	}
	searcher, ok := a.(papersources.TopicSearcher)
	if !ok {
		return nil, fmt.Errorf("%s topic search: %w", source, domain.ErrUnsupportedQuery)
	}
	if limit <= 0 {
		limit = papersources.DefaultTopicLimit
	}

	start := time.Now()
	ctx, cancel := o.withTimeout(observability.WithOperation(ctx, observability.OperationDiscover))
	defer cancel()

	if !filters.IsZero() {
		logger := observability.FromContext(ctx, o.logger)
		logger.Debug().
			Str("source", string(source)).
			Interface("filters", filters).
			Msg("topic search filtered")
	}

	raw, err := searcher.SearchByTopic(ctx, topic, limit, filters)
	o.observeCall(ctx, a.Source(), domain.QueryKindTopic, err, time.Since(start))
	if err != nil {
		raw = nil
	}

	now := o.clock.Now()
	out := make([]domain.Candidate, 0, len(raw))
	for _, c := range raw {
		if !c.HasContent() {
			continue
		}
		out = append(out, c.WithGeneration(scoring.Generation(c, topic, now)))
	}
	domain.SortByGeneration(out)
	out = domain.Truncate(out, limit)

	if o.recorder != nil {
		o.recorder.RecordDiscovery(string(source), len(out), time.Since(start))
	}
	return out, nil
}

// resolveOne walks the tier chain for one provider and returns its scored
// candidates that pass the tier's threshold. Errors end in a log line.
func (o *Orchestrator) resolveOne(ctx context.Context, a papersources.Adapter, ref domain.ParsedReference) []domain.Candidate {
	if id, ok := ref.IdentifierFor(a.Identifiers()); ok {
		cs := o.call(ctx, a, domain.QueryKindID, func(ctx context.Context) ([]domain.Candidate, error) {
			return a.SearchByID(ctx, id)
		})
		out := make([]domain.Candidate, 0, 1)
		for _, c := range domain.Truncate(cs, 1) {
			out = append(out, c.WithRelevance(IdentifierRelevance, domain.QueryKindID))
		}
		return out
	}

	weights := scoring.WeightsFor(a.Source())
	switch {
	case ref.HasTitle() && ref.HasAuthors():
		authors := ref.LeadAuthors(papersources.MaxLeadAuthors)
		cs := o.call(ctx, a, domain.QueryKindTitleAuthor, func(ctx context.Context) ([]domain.Candidate, error) {
			return a.SearchByTitleAuthor(ctx, ref.Title, authors)
		})
		return accept(cs, domain.QueryKindTitleAuthor, MinRelevance, func(c domain.Candidate) float64 {
			return scoring.Relevance(c, ref.Title, authors, weights)
		})

	case ref.HasTitle():
		cs := o.call(ctx, a, domain.QueryKindTitle, func(ctx context.Context) ([]domain.Candidate, error) {
			return a.SearchByTitle(ctx, ref.Title)
		})
		return accept(cs, domain.QueryKindTitle, MinRelevance, func(c domain.Candidate) float64 {
			return scoring.Relevance(c, ref.Title, nil, weights)
		})

	case ref.HasAuthors() && ref.HasYear():
		searcher, ok := a.(papersources.AuthorYearSearcher)
		if !ok {
			return nil
		}
		authors := ref.LeadAuthors(papersources.MaxLeadAuthors)
		cs := o.call(ctx, a, domain.QueryKindAuthorYear, func(ctx context.Context) ([]domain.Candidate, error) {
			return searcher.SearchByAuthorYear(ctx, authors, ref.Year)
		})
		return accept(cs, domain.QueryKindAuthorYear, MinAuthorYearRelevance, func(c domain.Candidate) float64 {
			return scoring.AuthorYear(c, authors, ref.Year)
		})
	}
	return nil
}

// call invokes one provider query and converts a failure into an empty
// contribution.
func (o *Orchestrator) call(ctx context.Context, a papersources.Adapter, tier domain.QueryKind, fn func(context.Context) ([]domain.Candidate, error)) []domain.Candidate {
	start := time.Now()
	cs, err := fn(ctx)
	o.observeCall(ctx, a.Source(), tier, err, time.Since(start))
	if err != nil {
		return nil
	}
	return cs
}

func (o *Orchestrator) observeCall(ctx context.Context, source domain.SourceType, tier domain.QueryKind, err error, d time.Duration) {
	if o.recorder != nil {
		o.recorder.RecordProviderCall(string(source), string(tier), err, d)
	}
	if err == nil {
		return
	}

	logger := observability.FromContext(ctx, o.logger)
	ev := logger.Warn()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		ev = logger.Info()
	}
	ev.Err(err).
		Str("source", string(source)).
		Str("tier", string(tier)).
		Dur("duration", d).
		Msg("provider query failed; treating as empty")
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *Orchestrator) record(mode string, n int, start time.Time) {
	if o.recorder != nil {
		o.recorder.RecordResolution(mode, n, time.Since(start))
	}
}

// accept scores every candidate and keeps those at or above threshold.
func accept(cs []domain.Candidate, tier domain.QueryKind, threshold float64, score func(domain.Candidate) float64) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(cs))
	for _, c := range cs {
		s := score(c)
		if s < threshold {
			continue
		}
		out = append(out, c.WithRelevance(s, tier))
	}
	return out
}

// rank orders accepted candidates by relevance and keeps the top MaxResults.
func rank(cs []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(cs))
	out = append(out, cs...)
	domain.SortByRelevance(out)
	return domain.Truncate(out, MaxResults)
}
