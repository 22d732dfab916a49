package cache

import (
	"time"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

// Default TTLs per query kind.
const (
	IdentifierTTL = 86400 * time.Second
	SearchTTL     = 3600 * time.Second
	ListingTTL    = 1800 * time.Second
)

// Policy maps query kinds onto TTL buckets.
type Policy struct {
	// Identifier applies to DOI, PMID, arXiv ID and work-by-id lookups.
	Identifier time.Duration
	// Search applies to title, title+author, author+year and topic searches.
	Search time.Duration
	// Listing applies to category, recent and related listings.
	Listing time.Duration
}

// DefaultPolicy returns the standard TTL buckets.
func DefaultPolicy() Policy {
	return Policy{
		Identifier: IdentifierTTL,
		Search:     SearchTTL,
		Listing:    ListingTTL,
	}
}

// TTL returns the time-to-live for a query kind.
func (p Policy) TTL(kind domain.QueryKind) time.Duration {
	switch kind {
	case domain.QueryKindID:
		return p.Identifier
	case domain.QueryKindCategory, domain.QueryKindRecent, domain.QueryKindRelated:
		return p.Listing
	default:
		return p.Search
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Identifier <= 0 {
		p.Identifier = d.Identifier
	}
	if p.Search <= 0 {
		p.Search = d.Search
	}
	if p.Listing <= 0 {
		p.Listing = d.Listing
	}
	return p
}
