// Package papersources defines the contract shared by the bibliographic
// provider clients, the rate-limited HTTP transport they use, and a registry
// that fans a query out across providers concurrently.
package papersources

import (
	"context"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

// Result-size limits per resolution tier.
const (
	// TitleAuthorLimit is the number of raw candidates requested for a
	// title plus first-authors search.
	TitleAuthorLimit = 10
	// TitleLimit is the number of raw candidates requested for a title-only
	// search.
	TitleLimit = 5
	// AuthorYearLimit is the number of raw candidates requested for an
	// author plus year search.
	AuthorYearLimit = 10
	// MaxLeadAuthors is how many leading authors a title+author query uses.
	MaxLeadAuthors = 2
	// DefaultTopicLimit applies when discovery is called without a limit.
	DefaultTopicLimit = 10
)

// Adapter is implemented by every provider client. Candidates are returned
// unscored; the caller attaches scores.
//
// Implementations cache every successful provider call and return an error
// matching domain.ErrProviderUnavailable or domain.ErrParseFailure when a call
// fails. A single malformed record is skipped rather than failing the call.
type Adapter interface {
	// Source returns the provider tag.
	Source() domain.SourceType

	// Name returns a human-readable provider name.
	Name() string

	// IsEnabled reports whether the provider should be queried.
	IsEnabled() bool

	// Identifiers lists the identifier schemes the provider can look up
	// directly. An empty list means the identifier tier is skipped.
	Identifiers() []domain.IdentifierType

	// SearchByID looks up a single work by a natively indexed identifier. It
	// returns zero or one candidate.
	SearchByID(ctx context.Context, id domain.Identifier) ([]domain.Candidate, error)

	// SearchByTitleAuthor searches by title and up to MaxLeadAuthors authors,
	// returning at most TitleAuthorLimit candidates.
	SearchByTitleAuthor(ctx context.Context, title string, authors []string) ([]domain.Candidate, error)

	// SearchByTitle searches by title alone, returning at most TitleLimit
	// candidates.
	SearchByTitle(ctx context.Context, title string) ([]domain.Candidate, error)
}

// AuthorYearSearcher is implemented by providers that support the
// title-less author plus year tier.
type AuthorYearSearcher interface {
	SearchByAuthorYear(ctx context.Context, authors []string, year int) ([]domain.Candidate, error)
}

// TopicSearcher is implemented by providers that support topic discovery.
type TopicSearcher interface {
	SearchByTopic(ctx context.Context, topic string, limit int, filters domain.DiscoveryFilters) ([]domain.Candidate, error)
}

// CitationGraph is implemented by providers that expose a work's citation
// neighbourhood. Listings are unscored and not part of ranking.
type CitationGraph interface {
	Citations(ctx context.Context, paperID string, limit int) ([]domain.Candidate, error)
	References(ctx context.Context, paperID string, limit int) ([]domain.Candidate, error)
	Related(ctx context.Context, paperID string, limit int) ([]domain.Candidate, error)
}

// CategoryLister is implemented by providers organized into subject
// categories.
type CategoryLister interface {
	RecentByCategory(ctx context.Context, category string, limit int) ([]domain.Candidate, error)
	SearchByCategory(ctx context.Context, category string, limit int) ([]domain.Candidate, error)
}

// Capabilities summarizes what a registered provider supports.
type Capabilities struct {
	Source      domain.SourceType       `json:"source"`
	Name        string                  `json:"name"`
	Enabled     bool                    `json:"enabled"`
	Identifiers []domain.IdentifierType `json:"identifiers"`
	AuthorYear  bool                    `json:"author_year"`
	Topic       bool                    `json:"topic"`
	Graph       bool                    `json:"citation_graph"`
	Categories  bool                    `json:"categories"`
}

// Describe reports the capabilities of a.
func Describe(a Adapter) Capabilities {
	_, authorYear := a.(AuthorYearSearcher)
	_, topic := a.(TopicSearcher)
	_, graph := a.(CitationGraph)
	_, categories := a.(CategoryLister)
	ids := a.Identifiers()
	if ids == nil {
		ids = []domain.IdentifierType{}
	}
	return Capabilities{
		Source:      a.Source(),
		Name:        a.Name(),
		Enabled:     a.IsEnabled(),
		Identifiers: ids,
		AuthorYear:  authorYear,
		Topic:       topic,
		Graph:       graph,
		Categories:  categories,
	}
}
