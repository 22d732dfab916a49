package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/matching"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// MaxPerPage is the OpenAlex page size limit.
	MaxPerPage = 200

	// maxAbstractWords guards abstract reconstruction against oversized indexes.
	maxAbstractWords = 100_000
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// APIKey is an optional premium API key, sent as the api_key parameter.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries caps retries on 429 and 5xx.
	MaxRetries int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
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

// Client implements papersources.Adapter for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	deps       papersources.Deps
}

var (
	_ papersources.Adapter            = (*Client)(nil)
	_ papersources.AuthorYearSearcher = (*Client)(nil)
	_ papersources.TopicSearcher      = (*Client)(nil)
)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config, deps papersources.Deps) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypeOpenAlex,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  papersources.PoliteUserAgent(cfg.Email),
	})
	httpClient.SetObserver(deps.Observer)

	return NewWithHTTPClient(cfg, httpClient, deps)
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, deps papersources.Deps) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		deps:       deps,
	}
}

// Source returns the provider tag.
func (c *Client) Source() domain.SourceType { return domain.SourceTypeOpenAlex }

// Name returns the human-readable name for this source.
func (c *Client) Name() string { return "OpenAlex" }

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Identifiers reports the external identifiers OpenAlex resolves directly.
func (c *Client) Identifiers() []domain.IdentifierType {
	return []domain.IdentifierType{domain.IdentifierTypeDOI, domain.IdentifierTypePubMedID}
}

// SearchByID fetches a single work by DOI or PubMed ID.
func (c *Client) SearchByID(ctx context.Context, id domain.Identifier) ([]domain.Candidate, error) {
	var scheme, value string
	switch id.Type {
	case domain.IdentifierTypeDOI:
		scheme, value = "doi:", domain.NormalizeDOI(id.Value)
	case domain.IdentifierTypePubMedID:
		scheme, value = "pmid:", domain.NormalizePMID(id.Value)
	default:
		return nil, fmt.Errorf("openalex lookup by %s: %w", id.Type, domain.ErrUnsupportedQuery)
	}
	if value == "" {
		return []domain.Candidate{}, nil
	}
	workID := scheme + value

	key := cache.NewKey(c.Source(), domain.QueryKindID, workID)
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		// The scheme stays literal; DOIs may carry '#', '?' or '%'.
		body, err := c.httpClient.Get(ctx, c.endpoint("/works/"+scheme+url.PathEscape(value), c.baseParams()), "application/json")
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

// SearchByTitleAuthor filters on title words and the lead author's surname.
func (c *Client) SearchByTitleAuthor(ctx context.Context, title string, authors []string) ([]domain.Candidate, error) {
	filters := []string{"title.search:" + filterValue(title)}
	if surname := leadSurname(authors); surname != "" {
		filters = append(filters, "raw_author_name.search:"+surname)
	}

	payload := map[string]any{"title": cache.NormalizeQuery(title), "authors": cache.NormalizeQueries(authors)}
	return c.search(ctx, domain.QueryKindTitleAuthor, payload, "", filters, papersources.TitleAuthorLimit)
}

// SearchByTitle filters on title words alone.
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]domain.Candidate, error) {
	filters := []string{"title.search:" + filterValue(title)}
	return c.search(ctx, domain.QueryKindTitle, cache.NormalizeQuery(title), "", filters, papersources.TitleLimit)
}

// SearchByAuthorYear filters on the lead author's surname and a publication
// year window of one year either side.
func (c *Client) SearchByAuthorYear(ctx context.Context, authors []string, year int) ([]domain.Candidate, error) {
	surname := leadSurname(authors)
	if surname == "" {
		return []domain.Candidate{}, nil
	}
	filters := []string{
		"raw_author_name.search:" + surname,
		fmt.Sprintf("publication_year:%d-%d", year-1, year+1),
	}

	payload := map[string]any{"authors": cache.NormalizeQueries(authors), "year": year}
	return c.search(ctx, domain.QueryKindAuthorYear, payload, "", filters, papersources.AuthorYearLimit)
}

// SearchByTopic runs a relevance-ranked full-text search. Year, citation and
// open-access filters are applied server-side; fields of study are matched
// client-side against each work's topic hierarchy and concepts.
func (c *Client) SearchByTopic(ctx context.Context, topic string, limit int, f domain.DiscoveryFilters) ([]domain.Candidate, error) {
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxPerPage)

	var filters []string
	if f.YearFrom > 0 {
		filters = append(filters, fmt.Sprintf("from_publication_date:%d-01-01", f.YearFrom))
	}
	if f.YearTo > 0 {
		filters = append(filters, fmt.Sprintf("to_publication_date:%d-12-31", f.YearTo))
	}
	if f.MinCitations > 0 {
		filters = append(filters, fmt.Sprintf("cited_by_count:>%d", f.MinCitations-1))
	}
	if f.OpenAccess {
		filters = append(filters, "is_oa:true")
	}

	payload := map[string]any{"topic": cache.NormalizeQuery(topic), "limit": limit, "filters": f}
	key := cache.NewKey(c.Source(), domain.QueryKindTopic, payload)

	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		works, err := c.fetchWorks(ctx, topic, filters, limit)
		if err != nil {
			return nil, err
		}
		if len(f.FieldsOfStudy) > 0 {
			works = filterFields(works, f.FieldsOfStudy)
		}
		return papersources.ParseRecords(c.Source(), c.deps.Logger, works, parseRecord), nil
	})
}

func (c *Client) search(ctx context.Context, kind domain.QueryKind, payload any, query string, filters []string, perPage int) ([]domain.Candidate, error) {
	key := cache.NewKey(c.Source(), kind, payload)
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		works, err := c.fetchWorks(ctx, query, filters, perPage)
		if err != nil {
			return nil, err
		}
		return papersources.ParseRecords(c.Source(), c.deps.Logger, works, parseRecord), nil
	})
}

func (c *Client) fetchWorks(ctx context.Context, query string, filters []string, perPage int) ([]json.RawMessage, error) {
	params := c.baseParams()
	if query != "" {
		params.Set("search", query)
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}
	params.Set("per_page", strconv.Itoa(perPage))

	body, err := c.httpClient.Get(ctx, c.endpoint("/works", params), "application/json")
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewParseError(string(c.Source()), -1, err)
	}
	return resp.Results, nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	if c.config.Email != "" {
		params.Set("mailto", c.config.Email)
	}
	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}
	return params
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// parseRecord translates one OpenAlex work into a candidate.
func parseRecord(raw json.RawMessage) (domain.Candidate, error) {
	var work Work
	if err := json.Unmarshal(raw, &work); err != nil {
		return domain.Candidate{}, err
	}

	ids := work.ExternalIDs()
	if ids.OpenAlexID == "" {
		return domain.Candidate{}, errors.New("work has no OpenAlex id")
	}

	c := domain.Candidate{
		ExternalIDs:   ids,
		Title:         work.DisplayTitle(),
		Authors:       work.AuthorNames(),
		Year:          work.PublicationYear,
		Abstract:      reconstructAbstract(work.AbstractInvertedIndex),
		CitationCount: work.CitedByCount,
		URL:           work.ID,
		RawPayload:    raw,
	}
	if work.PrimaryLocation != nil {
		if work.PrimaryLocation.Source != nil {
			c.Venue = work.PrimaryLocation.Source.DisplayName
		}
		if work.PrimaryLocation.LandingURL != "" {
			c.URL = work.PrimaryLocation.LandingURL
		}
	}
	if work.OpenAccess != nil {
		c.OpenAccess = work.OpenAccess.IsOA
	}
	return c, nil
}

// filterFields keeps works tagged with any of the requested fields of study,
// compared case-insensitively against topic, subfield, field, domain and
// concept names.
func filterFields(works []json.RawMessage, fields []string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(works))
	for _, raw := range works {
		var w Work
		if err := json.Unmarshal(raw, &w); err != nil {
			// let parseRecord report it
			out = append(out, raw)
			continue
		}
		if hasField(w, fields) {
			out = append(out, raw)
		}
	}
	return out
}

func hasField(w Work, fields []string) bool {
	names := w.FieldNames()
	for _, want := range fields {
		for _, name := range names {
			if name != "" && strings.EqualFold(name, want) {
				return true
			}
		}
	}
	return false
}

// reconstructAbstract rebuilds plain text from an inverted index by placing
// every word at each of its positions and reading them in position order.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	if totalPairs > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, totalPairs)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	// Ties are impossible in well-formed input; the word breaks them so that
	// malformed input still reconstructs deterministically.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos != pairs[j].pos {
			return pairs[i].pos < pairs[j].pos
		}
		return pairs[i].word < pairs[j].word
	})

	var b strings.Builder
	b.Grow(totalPairs * 7)
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.word)
	}
	return b.String()
}

// filterValue strips characters that carry meaning in OpenAlex filter syntax.
func filterValue(s string) string {
	s = strings.NewReplacer(",", " ", ":", " ", "|", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func leadSurname(authors []string) string {
	for _, a := range authors {
		if last := matching.LastName(a); last != "" {
			return last
		}
	}
	return ""
}
