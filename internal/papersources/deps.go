package papersources

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/domain"
)

// Deps carries the collaborators shared by every provider client. The zero
// value is usable: no caching, no logging, no telemetry.
type Deps struct {
	Cache    *cache.Cache
	Logger   zerolog.Logger
	Observer Observer
}

// PoliteUserAgent returns the User-Agent used for providers that ask clients
// to identify themselves with a contact address.
func PoliteUserAgent(email string) string {
	if strings.TrimSpace(email) == "" {
		return DefaultUserAgent
	}
	return DefaultUserAgent + " (mailto:" + strings.TrimSpace(email) + ")"
}

// ParseRecords converts provider records with parse. A record that fails to
// parse is logged and skipped so that one bad record never sinks a response.
func ParseRecords[R any](source domain.SourceType, logger zerolog.Logger, records []R, parse func(R) (domain.Candidate, error)) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(records))
	for i, rec := range records {
		c, err := parse(rec)
		if err != nil {
			logger.Warn().
				Err(domain.NewParseError(string(source), i, err)).
				Str("source", string(source)).
				Int("record", i).
				Msg("skipping malformed record")
			continue
		}
		c.Source = source
		out = append(out, c)
	}
	return out
}

// IsNotFound reports whether err is a provider 404. Identifier lookups treat
// it as an empty result rather than a failure.
func IsNotFound(err error) bool {
	var apiErr *domain.ExternalAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// FilterMinCitations drops candidates with fewer than minCitations citations.
// Used by providers whose APIs cannot filter on citation count server-side.
func FilterMinCitations(cs []domain.Candidate, minCitations int) []domain.Candidate {
	if minCitations <= 0 {
		return cs
	}
	out := cs[:0]
	for _, c := range cs {
		if c.CitationCount >= minCitations {
			out = append(out, c)
		}
	}
	return out
}

// FilterYears drops candidates outside [from, to]. Zero bounds are open;
// candidates with an unknown year are kept.
func FilterYears(cs []domain.Candidate, from, to int) []domain.Candidate {
	if from <= 0 && to <= 0 {
		return cs
	}
	out := cs[:0]
	for _, c := range cs {
		if c.Year > 0 && ((from > 0 && c.Year < from) || (to > 0 && c.Year > to)) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Limit substitutes def for a non-positive n and caps the result at upper.
func Limit(n, def, upper int) int {
	if n <= 0 {
		n = def
	}
	return min(n, upper)
}
