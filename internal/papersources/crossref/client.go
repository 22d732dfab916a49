package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/matching"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default CrossRef API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// MaxRows is the CrossRef page size limit.
	MaxRows = 1000

	// selectFields trims search responses to what is parsed.
	selectFields = "DOI,title,subtitle,author,container-title,publisher,type,abstract,is-referenced-by-count,published-print,published-online,URL,license"
)

var jatsTag = regexp.MustCompile(`<[^>]+>`)

// Config holds configuration for the CrossRef client.
type Config struct {
	// BaseURL is the CrossRef API base URL.
	BaseURL string

	// Email identifies the caller for the CrossRef polite pool. It is sent
	// both in the User-Agent and as the mailto parameter.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries caps retries on 429 and 5xx.
	MaxRetries int

	// Enabled indicates whether this source is queried.
	Enabled bool
}

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

// Client implements papersources.Adapter for CrossRef.
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

// New creates a CrossRef client.
func New(cfg Config, deps papersources.Deps) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypeCrossRef,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  papersources.PoliteUserAgent(cfg.Email),
	})
	httpClient.SetObserver(deps.Observer)

	return NewWithHTTPClient(cfg, httpClient, deps)
}

// NewWithHTTPClient creates a CrossRef client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, deps papersources.Deps) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		deps:       deps,
	}
}

// Source returns the provider tag.
func (c *Client) Source() domain.SourceType { return domain.SourceTypeCrossRef }

// Name returns the human-readable name for this source.
func (c *Client) Name() string { return "CrossRef" }

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Identifiers reports that CrossRef resolves DOIs only.
func (c *Client) Identifiers() []domain.IdentifierType {
	return []domain.IdentifierType{domain.IdentifierTypeDOI}
}

// SearchByID fetches a single work by DOI.
func (c *Client) SearchByID(ctx context.Context, id domain.Identifier) ([]domain.Candidate, error) {
	if id.Type != domain.IdentifierTypeDOI {
		return nil, fmt.Errorf("crossref lookup by %s: %w", id.Type, domain.ErrUnsupportedQuery)
	}
	doi := domain.NormalizeDOI(id.Value)
	key := cache.NewKey(c.Source(), domain.QueryKindID, doi)

	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		body, err := c.httpClient.Get(ctx, c.endpoint("/works/"+url.PathEscape(doi), c.politeParams()), "application/json")
		if err != nil {
			if papersources.IsNotFound(err) {
				return []domain.Candidate{}, nil
			}
			return nil, err
		}

		var resp WorkResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, domain.NewParseError(string(c.Source()), -1, err)
		}
		if len(resp.Message) == 0 || string(resp.Message) == "null" {
			return []domain.Candidate{}, nil
		}
		return papersources.ParseRecords(c.Source(), c.deps.Logger, []json.RawMessage{resp.Message}, parseRecord), nil
	})
}

// SearchByTitleAuthor runs a bibliographic query constrained by author names.
func (c *Client) SearchByTitleAuthor(ctx context.Context, title string, authors []string) ([]domain.Candidate, error) {
	params := c.politeParams()
	params.Set("query.bibliographic", title)
	params.Set("query.author", strings.Join(leadSurnames(authors), " "))
	params.Set("rows", strconv.Itoa(papersources.TitleAuthorLimit))
	params.Set("select", selectFields)

	payload := map[string]any{"title": cache.NormalizeQuery(title), "authors": cache.NormalizeQueries(authors)}
	return c.search(ctx, domain.QueryKindTitleAuthor, payload, params)
}

// SearchByTitle runs a bibliographic query on the title alone.
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]domain.Candidate, error) {
	params := c.politeParams()
	params.Set("query.bibliographic", title)
	params.Set("rows", strconv.Itoa(papersources.TitleLimit))
	params.Set("select", selectFields)

	return c.search(ctx, domain.QueryKindTitle, cache.NormalizeQuery(title), params)
}

// SearchByAuthorYear searches by author names within a year either side of
// year, matching the tolerance of author+year scoring.
func (c *Client) SearchByAuthorYear(ctx context.Context, authors []string, year int) ([]domain.Candidate, error) {
	params := c.politeParams()
	params.Set("query.author", strings.Join(leadSurnames(authors), " "))
	params.Set("filter", fmt.Sprintf("from-pub-date:%d,until-pub-date:%d", year-1, year+1))
	params.Set("rows", strconv.Itoa(papersources.AuthorYearLimit))
	params.Set("select", selectFields)

	payload := map[string]any{"authors": cache.NormalizeQueries(authors), "year": year}
	return c.search(ctx, domain.QueryKindAuthorYear, payload, params)
}

// SearchByTopic runs a free-text query. CrossRef has no citation-count,
// open-access or field-of-study filters: citation counts are filtered
// client-side and the other two are ignored.
func (c *Client) SearchByTopic(ctx context.Context, topic string, limit int, filters domain.DiscoveryFilters) ([]domain.Candidate, error) {
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxRows)

	params := c.politeParams()
	params.Set("query", topic)
	params.Set("rows", strconv.Itoa(limit))
	params.Set("select", selectFields)

	var f []string
	if filters.YearFrom > 0 {
		f = append(f, fmt.Sprintf("from-pub-date:%d", filters.YearFrom))
	}
	if filters.YearTo > 0 {
		f = append(f, fmt.Sprintf("until-pub-date:%d", filters.YearTo))
	}
	if len(f) > 0 {
		params.Set("filter", strings.Join(f, ","))
	}
	if filters.OpenAccess || len(filters.FieldsOfStudy) > 0 {
		c.deps.Logger.Debug().Str("source", string(c.Source())).Msg("open access and field filters not supported; ignoring")
	}

	payload := map[string]any{"topic": cache.NormalizeQuery(topic), "limit": limit, "filters": filters}
	cs, err := c.search(ctx, domain.QueryKindTopic, payload, params)
	if err != nil {
		return nil, err
	}
	// from/until-pub-date match any of a work's dates; keep the year we report
	// inside the range.
	cs = papersources.FilterYears(cs, filters.YearFrom, filters.YearTo)
	return papersources.FilterMinCitations(cs, filters.MinCitations), nil
}

func (c *Client) search(ctx context.Context, kind domain.QueryKind, payload any, params url.Values) ([]domain.Candidate, error) {
	key := cache.NewKey(c.Source(), kind, payload)

	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		body, err := c.httpClient.Get(ctx, c.endpoint("/works", params), "application/json")
		if err != nil {
			return nil, err
		}

		var resp ListResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, domain.NewParseError(string(c.Source()), -1, err)
		}
		return papersources.ParseRecords(c.Source(), c.deps.Logger, resp.Message.Items, parseRecord), nil
	})
}

func (c *Client) politeParams() url.Values {
	params := url.Values{}
	if c.config.Email != "" {
		params.Set("mailto", c.config.Email)
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

// parseRecord translates one CrossRef work into a candidate.
func parseRecord(raw json.RawMessage) (domain.Candidate, error) {
	var w Work
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Candidate{}, err
	}
	if w.DOI == "" && len(w.Title) == 0 {
		return domain.Candidate{}, errors.New("work has neither DOI nor title")
	}

	title := first(w.Title)
	if sub := first(w.Subtitle); sub != "" && title != "" {
		title += ": " + sub
	}

	authors := make([]string, 0, len(w.Author))
	for _, a := range w.Author {
		switch {
		case a.Family != "" && a.Given != "":
			authors = append(authors, a.Given+" "+a.Family)
		case a.Family != "":
			authors = append(authors, a.Family)
		case a.Name != "":
			authors = append(authors, a.Name)
		}
	}

	doi := domain.NormalizeDOI(w.DOI)
	c := domain.Candidate{
		ExternalIDs:   domain.ExternalIDs{DOI: doi},
		Title:         strings.TrimSpace(title),
		Authors:       authors,
		Year:          publicationYear(w),
		Venue:         first(w.ContainerTitle),
		Abstract:      stripJATS(w.Abstract),
		CitationCount: w.IsReferencedByCount,
		URL:           w.URL,
		RawPayload:    raw,
	}
	if c.Venue == "" {
		c.Venue = w.Publisher
	}
	if c.URL == "" && doi != "" {
		c.URL = "https://doi.org/" + doi
	}
	return c, nil
}

// publicationYear prefers the print date and falls back to the online date.
func publicationYear(w Work) int {
	if y := w.PublishedPrint.Year(); y > 0 {
		return y
	}
	return w.PublishedOnline.Year()
}

// stripJATS removes JATS markup from abstracts and collapses whitespace.
func stripJATS(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(jatsTag.ReplaceAllString(s, " ")), " ")
}

func first(ss []string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// leadSurnames reduces authors to family names, which is what query.author
// matches best. Names without a recognizable surname are dropped.
func leadSurnames(authors []string) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		if last := matching.LastName(a); last != "" {
			out = append(out, last)
		}
	}
	return out
}
