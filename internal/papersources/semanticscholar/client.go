package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/matching"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRecommendationsURL is the base URL of the recommendations API.
	DefaultRecommendationsURL = "https://api.semanticscholar.org/recommendations/v1"

	// DefaultRateLimit is the default rate limit for requests per second.
	// Unauthenticated clients share a pool; an API key raises the ceiling.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxLimit is the page size limit of the search and graph endpoints.
	MaxLimit = 100

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,title,abstract,year,venue,journal,authors,citationCount,isOpenAccess,openAccessPdf,url"

	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the Graph API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// RecommendationsURL is the base URL for the recommendations API.
	RecommendationsURL string

	// APIKey is the optional API key, sent in the x-api-key header.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries caps retries on 429 and 5xx.
	MaxRetries int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RecommendationsURL == "" {
		c.RecommendationsURL = DefaultRecommendationsURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client implements papersources.Adapter for Semantic Scholar.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
	deps       papersources.Deps
}

var (
	_ papersources.Adapter            = (*Client)(nil)
	_ papersources.AuthorYearSearcher = (*Client)(nil)
	_ papersources.TopicSearcher      = (*Client)(nil)
	_ papersources.CitationGraph      = (*Client)(nil)
)

// New creates a new Semantic Scholar client with the given configuration.
func New(cfg Config, deps papersources.Deps) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:       domain.SourceTypeSemanticScholar,
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		MaxRetries:   cfg.MaxRetries,
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
	})
	httpClient.SetObserver(deps.Observer)

	return NewWithHTTPClient(cfg, httpClient, deps)
}

// NewWithHTTPClient creates a new Semantic Scholar client with a custom HTTP
// client. This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, deps papersources.Deps) *Client {
	cfg.applyDefaults()
	return &Client{
		httpClient: httpClient,
		config:     cfg,
		deps:       deps,
	}
}

// Source returns the provider tag.
func (c *Client) Source() domain.SourceType { return domain.SourceTypeSemanticScholar }

// Name returns the human-readable name for this source.
func (c *Client) Name() string { return sourceName }

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Identifiers reports the external identifiers Semantic Scholar resolves.
func (c *Client) Identifiers() []domain.IdentifierType {
	return []domain.IdentifierType{
		domain.IdentifierTypeDOI,
		domain.IdentifierTypePubMedID,
		domain.IdentifierTypeArXivID,
	}
}

// SearchByID looks a paper up through the Graph API's prefixed external ids,
// e.g. "DOI:10.1000/x", "PMID:123" or "ARXIV:1501.00001".
func (c *Client) SearchByID(ctx context.Context, id domain.Identifier) ([]domain.Candidate, error) {
	var paperID string
	switch id.Type {
	case domain.IdentifierTypeDOI:
		paperID = prefixed("DOI:", domain.NormalizeDOI(id.Value))
	case domain.IdentifierTypePubMedID:
		paperID = prefixed("PMID:", domain.NormalizePMID(id.Value))
	case domain.IdentifierTypeArXivID:
		paperID = prefixed("ARXIV:", domain.NormalizeArXivID(id.Value))
	default:
		return nil, fmt.Errorf("semantic scholar lookup by %s: %w", id.Type, domain.ErrUnsupportedQuery)
	}
	if paperID == "" {
		return []domain.Candidate{}, nil
	}

	key := cache.NewKey(c.Source(), domain.QueryKindID, paperID)
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		params := url.Values{}
		params.Set("fields", paperFields)

		body, err := c.httpClient.Get(ctx, c.graphURL("/paper/"+paperID, params), "application/json")
		if err != nil {
			if papersources.IsNotFound(err) {
				return []domain.Candidate{}, nil
			}
			return nil, err
		}
		if !json.Valid(body) {
			return nil, domain.NewParseError(string(c.Source()), -1, errors.New("invalid JSON"))
		}
		return papersources.ParseRecords(c.Source(), c.deps.Logger, []json.RawMessage{body}, parseRecord), nil
	})
}

// SearchByTitleAuthor runs a relevance search over the title followed by the
// lead authors' surnames.
func (c *Client) SearchByTitleAuthor(ctx context.Context, title string, authors []string) ([]domain.Candidate, error) {
	query := strings.TrimSpace(cleanQuery(title) + " " + strings.Join(leadSurnames(authors), " "))

	params := url.Values{}
	params.Set("query", query)
	payload := map[string]any{"title": cache.NormalizeQuery(title), "authors": cache.NormalizeQueries(authors)}
	return c.search(ctx, domain.QueryKindTitleAuthor, payload, params, papersources.TitleAuthorLimit)
}

// SearchByTitle runs a relevance search over the title alone.
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Set("query", cleanQuery(title))
	return c.search(ctx, domain.QueryKindTitle, cache.NormalizeQuery(title), params, papersources.TitleLimit)
}

// SearchByAuthorYear searches the lead authors' surnames within a year
// window of one year either side.
func (c *Client) SearchByAuthorYear(ctx context.Context, authors []string, year int) ([]domain.Candidate, error) {
	surnames := leadSurnames(authors)
	if len(surnames) == 0 {
		return []domain.Candidate{}, nil
	}

	params := url.Values{}
	params.Set("query", strings.Join(surnames, " "))
	params.Set("year", fmt.Sprintf("%d-%d", year-1, year+1))
	payload := map[string]any{"authors": cache.NormalizeQueries(authors), "year": year}
	return c.search(ctx, domain.QueryKindAuthorYear, payload, params, papersources.AuthorYearLimit)
}

// SearchByTopic runs a relevance search with every filter applied
// server-side.
func (c *Client) SearchByTopic(ctx context.Context, topic string, limit int, f domain.DiscoveryFilters) ([]domain.Candidate, error) {
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxLimit)

	params := url.Values{}
	params.Set("query", cleanQuery(topic))
	if yr := yearRange(f.YearFrom, f.YearTo); yr != "" {
		params.Set("year", yr)
	}
	if f.MinCitations > 0 {
		params.Set("minCitationCount", strconv.Itoa(f.MinCitations))
	}
	if f.OpenAccess {
		params.Set("openAccessPdf", "")
	}
	if len(f.FieldsOfStudy) > 0 {
		params.Set("fieldsOfStudy", strings.Join(f.FieldsOfStudy, ","))
	}

	payload := map[string]any{"topic": cache.NormalizeQuery(topic), "limit": limit, "filters": f}
	return c.search(ctx, domain.QueryKindTopic, payload, params, limit)
}

// Citations lists papers that cite paperID.
func (c *Client) Citations(ctx context.Context, paperID string, limit int) ([]domain.Candidate, error) {
	return c.graphListing(ctx, "citations", paperID, limit)
}

// References lists papers that paperID cites.
func (c *Client) References(ctx context.Context, paperID string, limit int) ([]domain.Candidate, error) {
	return c.graphListing(ctx, "references", paperID, limit)
}

// Related lists papers recommended from paperID.
func (c *Client) Related(ctx context.Context, paperID string, limit int) ([]domain.Candidate, error) {
	paperID = strings.TrimSpace(paperID)
	if paperID == "" {
		return nil, domain.NewValidationError("paper_id", "is required")
	}
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxLimit)

	key := cache.NewKey(c.Source(), domain.QueryKindRelated, map[string]any{"paper": paperID, "limit": limit})
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		params := url.Values{}
		params.Set("fields", paperFields)
		params.Set("limit", strconv.Itoa(limit))

		endpoint := strings.TrimRight(c.config.RecommendationsURL, "/") + "/papers/forpaper/" + paperID + "?" + params.Encode()
		body, err := c.httpClient.Get(ctx, endpoint, "application/json")
		if err != nil {
			if papersources.IsNotFound(err) {
				return []domain.Candidate{}, nil
			}
			return nil, err
		}

		var resp RecommendationResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, domain.NewParseError(string(c.Source()), -1, err)
		}
		return papersources.ParseRecords(c.Source(), c.deps.Logger, resp.RecommendedPapers, parseRecord), nil
	})
}

func (c *Client) graphListing(ctx context.Context, edge, paperID string, limit int) ([]domain.Candidate, error) {
	paperID = strings.TrimSpace(paperID)
	if paperID == "" {
		return nil, domain.NewValidationError("paper_id", "is required")
	}
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxLimit)

	payload := map[string]any{"edge": edge, "paper": paperID, "limit": limit}
	key := cache.NewKey(c.Source(), domain.QueryKindRelated, payload)
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		params := url.Values{}
		params.Set("fields", paperFields)
		params.Set("limit", strconv.Itoa(limit))

		body, err := c.httpClient.Get(ctx, c.graphURL("/paper/"+paperID+"/"+edge, params), "application/json")
		if err != nil {
			if papersources.IsNotFound(err) {
				return []domain.Candidate{}, nil
			}
			return nil, err
		}

		var resp CitationResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, domain.NewParseError(string(c.Source()), -1, err)
		}
		papers := make([]json.RawMessage, 0, len(resp.Data))
		for _, e := range resp.Data {
			p := e.CitingPaper
			if edge == "references" {
				p = e.CitedPaper
			}
			if len(p) > 0 {
				papers = append(papers, p)
			}
		}
		return papersources.ParseRecords(c.Source(), c.deps.Logger, papers, parseRecord), nil
	})
}

func (c *Client) search(ctx context.Context, kind domain.QueryKind, payload any, params url.Values, limit int) ([]domain.Candidate, error) {
	params.Set("fields", paperFields)
	params.Set("limit", strconv.Itoa(limit))

	key := cache.NewKey(c.Source(), kind, payload)
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		body, err := c.httpClient.Get(ctx, c.graphURL("/paper/search", params), "application/json")
		if err != nil {
			return nil, err
		}

		var resp SearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, domain.NewParseError(string(c.Source()), -1, err)
		}
		return papersources.ParseRecords(c.Source(), c.deps.Logger, resp.Data, parseRecord), nil
	})
}

func (c *Client) graphURL(path string, params url.Values) string {
	return strings.TrimRight(c.config.BaseURL, "/") + path + "?" + params.Encode()
}

// parseRecord translates one Graph API paper into a candidate.
func parseRecord(raw json.RawMessage) (domain.Candidate, error) {
	var p PaperResult
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Candidate{}, err
	}
	if p.PaperID == "" {
		return domain.Candidate{}, errors.New("paper has no paperId")
	}

	return domain.Candidate{
		ExternalIDs:   p.IDs(),
		Title:         strings.TrimSpace(p.Title),
		Authors:       p.AuthorNames(),
		Year:          p.Year,
		Venue:         p.VenueName(),
		Abstract:      strings.TrimSpace(p.Abstract),
		CitationCount: p.CitationCount,
		OpenAccess:    p.OpenAccess(),
		URL:           p.Link(),
		RawPayload:    raw,
	}, nil
}

// yearRange renders the year filter: "2015-2020", "2015-" or "-2020".
func yearRange(from, to int) string {
	switch {
	case from > 0 && to > 0:
		return fmt.Sprintf("%d-%d", from, to)
	case from > 0:
		return fmt.Sprintf("%d-", from)
	case to > 0:
		return fmt.Sprintf("-%d", to)
	}
	return ""
}

func leadSurnames(authors []string) []string {
	var out []string
	for _, a := range authors {
		if len(out) == papersources.MaxLeadAuthors {
			break
		}
		if last := matching.LastName(a); last != "" {
			out = append(out, last)
		}
	}
	return out
}

// cleanQuery splits hyphenated terms; the search endpoint matches nothing
// for them.
func cleanQuery(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "-", " ")), " ")
}

func prefixed(prefix, value string) string {
	if value == "" {
		return ""
	}
	return prefix + value
}
