package arxiv

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/matching"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRSSBaseURL serves the daily announcement feed per category.
	DefaultRSSBaseURL = "https://rss.arxiv.org/rss"

	// DefaultRateLimit is the default rate limit. arXiv asks for no more than
	// one request every three seconds per client in bulk use; short bursts are
	// tolerated.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResults caps max_results on a single query.
	MaxResults = 100

	sourceName = "arXiv"
	venueName  = "arXiv"
)

// arxivIDRegex extracts the arXiv ID from an abs URL, e.g.
// "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// RSSBaseURL is the base URL of the category announcement feeds.
	RSSBaseURL string

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
	if c.RSSBaseURL == "" {
		c.RSSBaseURL = DefaultRSSBaseURL
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

// Client implements papersources.Adapter for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	deps       papersources.Deps
	feeds      *gofeed.Parser
}

var (
	_ papersources.Adapter            = (*Client)(nil)
	_ papersources.AuthorYearSearcher = (*Client)(nil)
	_ papersources.TopicSearcher      = (*Client)(nil)
	_ papersources.CategoryLister     = (*Client)(nil)
)

// New creates a new arXiv client with the given configuration.
func New(cfg Config, deps papersources.Deps) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypeArXiv,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
	})
	httpClient.SetObserver(deps.Observer)

	return NewWithHTTPClient(cfg, httpClient, deps)
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, deps papersources.Deps) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		deps:       deps,
		feeds:      gofeed.NewParser(),
	}
}

// Source returns the provider tag.
func (c *Client) Source() domain.SourceType { return domain.SourceTypeArXiv }

// Name returns the human-readable name for this source.
func (c *Client) Name() string { return sourceName }

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Identifiers reports the external identifiers arXiv resolves directly.
func (c *Client) Identifiers() []domain.IdentifierType {
	return []domain.IdentifierType{domain.IdentifierTypeArXivID}
}

// SearchByID fetches a single preprint by arXiv ID.
func (c *Client) SearchByID(ctx context.Context, id domain.Identifier) ([]domain.Candidate, error) {
	if id.Type != domain.IdentifierTypeArXivID {
		return nil, fmt.Errorf("arxiv lookup by %s: %w", id.Type, domain.ErrUnsupportedQuery)
	}
	arxivID := domain.NormalizeArXivID(id.Value)
	if arxivID == "" {
		return []domain.Candidate{}, nil
	}

	params := url.Values{}
	params.Set("id_list", arxivID)
	params.Set("max_results", "1")

	key := cache.NewKey(c.Source(), domain.QueryKindID, arxivID)
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		cs, err := c.query(ctx, params)
		if err != nil {
			if papersources.IsNotFound(err) {
				return []domain.Candidate{}, nil
			}
			return nil, err
		}
		return domain.Truncate(cs, 1), nil
	})
}

// SearchByTitleAuthor matches the title phrase and any of the lead authors'
// surnames.
func (c *Client) SearchByTitleAuthor(ctx context.Context, title string, authors []string) ([]domain.Candidate, error) {
	q := titleClause(title)
	if au := authorClause(authors); au != "" {
		q += " AND " + au
	}

	payload := map[string]any{"title": cache.NormalizeQuery(title), "authors": cache.NormalizeQueries(authors)}
	return c.search(ctx, domain.QueryKindTitleAuthor, payload, q, papersources.TitleAuthorLimit, "relevance")
}

// SearchByTitle matches the title phrase alone.
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]domain.Candidate, error) {
	return c.search(ctx, domain.QueryKindTitle, cache.NormalizeQuery(title), titleClause(title), papersources.TitleLimit, "relevance")
}

// SearchByAuthorYear matches the lead authors' surnames within a submission
// window of one year either side.
func (c *Client) SearchByAuthorYear(ctx context.Context, authors []string, year int) ([]domain.Candidate, error) {
	au := authorClause(authors)
	if au == "" {
		return []domain.Candidate{}, nil
	}
	q := au + " AND " + dateClause(year-1, year+1)

	payload := map[string]any{"authors": cache.NormalizeQueries(authors), "year": year}
	return c.search(ctx, domain.QueryKindAuthorYear, payload, q, papersources.AuthorYearLimit, "relevance")
}

// SearchByTopic searches all fields. Year bounds become a submission date
// range. arXiv reports no citation counts, so any positive MinCitations
// filter leaves nothing; every preprint is open access.
func (c *Client) SearchByTopic(ctx context.Context, topic string, limit int, f domain.DiscoveryFilters) ([]domain.Candidate, error) {
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxResults)

	q := "all:" + quote(topic)
	if f.YearFrom > 0 || f.YearTo > 0 {
		q += " AND " + dateClause(f.YearFrom, f.YearTo)
	}

	payload := map[string]any{"topic": cache.NormalizeQuery(topic), "limit": limit, "filters": f}
	cs, err := c.search(ctx, domain.QueryKindTopic, payload, q, limit, "relevance")
	if err != nil {
		return nil, err
	}
	return papersources.FilterMinCitations(cs, f.MinCitations), nil
}

// SearchByCategory lists the newest submissions in a subject category such
// as "cs.CL".
func (c *Client) SearchByCategory(ctx context.Context, category string, limit int) ([]domain.Candidate, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, domain.NewValidationError("category", "is required")
	}
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxResults)

	payload := map[string]any{"category": category, "limit": limit}
	return c.search(ctx, domain.QueryKindCategory, payload, "cat:"+category, limit, "submittedDate")
}

// RecentByCategory reads the category's announcement feed, which lists the
// most recent mailing rather than a searchable archive.
func (c *Client) RecentByCategory(ctx context.Context, category string, limit int) ([]domain.Candidate, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, domain.NewValidationError("category", "is required")
	}
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxResults)

	payload := map[string]any{"category": category, "limit": limit}
	key := cache.NewKey(c.Source(), domain.QueryKindRecent, payload)

	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		feedURL := strings.TrimRight(c.config.RSSBaseURL, "/") + "/" + url.PathEscape(category)
		body, err := c.httpClient.Get(ctx, feedURL, "application/rss+xml")
		if err != nil {
			return nil, err
		}

		feed, err := c.feeds.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, domain.NewParseError(string(c.Source()), -1, err)
		}
		cs := papersources.ParseRecords(c.Source(), c.deps.Logger, feed.Items, parseFeedItem)
		return domain.Truncate(cs, limit), nil
	})
}

func (c *Client) search(ctx context.Context, kind domain.QueryKind, payload any, searchQuery string, maxResults int, sortBy string) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Set("search_query", searchQuery)
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", sortBy)
	params.Set("sortOrder", "descending")

	key := cache.NewKey(c.Source(), kind, payload)
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		return c.query(ctx, params)
	})
}

func (c *Client) query(ctx context.Context, params url.Values) ([]domain.Candidate, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/query?" + params.Encode()
	body, err := c.httpClient.Get(ctx, endpoint, "application/atom+xml")
	if err != nil {
		return nil, err
	}

	var feed Feed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, domain.NewParseError(string(c.Source()), -1, err)
	}
	return papersources.ParseRecords(c.Source(), c.deps.Logger, feed.Entries, parseEntry), nil
}

// parseEntry translates one Atom entry into a candidate.
func parseEntry(entry Entry) (domain.Candidate, error) {
	arxivID := extractArXivID(entry.ID)
	if arxivID == "" {
		// the API reports bad queries as an entry pointing at its error page
		return domain.Candidate{}, fmt.Errorf("entry id %q is not an arXiv abs URL", entry.ID)
	}

	venue := normalizeWhitespace(entry.JournalRef)
	if venue == "" {
		venue = venueName
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return domain.Candidate{}, err
	}

	return domain.Candidate{
		ExternalIDs: domain.ExternalIDs{
			ArXivID: arxivID,
			DOI:     domain.NormalizeDOI(entry.DOI),
		},
		Title:      normalizeWhitespace(entry.Title),
		Authors:    entry.AuthorNames(),
		Year:       entry.Year(),
		Venue:      venue,
		Abstract:   normalizeWhitespace(entry.Summary),
		OpenAccess: true,
		URL:        "https://arxiv.org/abs/" + arxivID,
		RawPayload: raw,
	}, nil
}

// parseFeedItem translates one announcement feed item into a candidate.
func parseFeedItem(item *gofeed.Item) (domain.Candidate, error) {
	if item == nil {
		return domain.Candidate{}, errors.New("nil feed item")
	}
	arxivID := extractArXivID(strings.TrimSpace(item.Link))
	if arxivID == "" {
		arxivID = domain.NormalizeArXivID(strings.TrimPrefix(item.GUID, "oai:arXiv.org:"))
	}
	if arxivID == "" {
		return domain.Candidate{}, fmt.Errorf("feed item %q has no arXiv id", item.Link)
	}

	var year int
	switch {
	case item.PublishedParsed != nil:
		year = item.PublishedParsed.Year()
	case item.UpdatedParsed != nil:
		year = item.UpdatedParsed.Year()
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return domain.Candidate{}, err
	}

	return domain.Candidate{
		ExternalIDs: domain.ExternalIDs{ArXivID: arxivID},
		Title:       normalizeWhitespace(item.Title),
		Authors:     feedAuthors(item),
		Year:        year,
		Venue:       venueName,
		Abstract:    feedAbstract(item.Description),
		OpenAccess:  true,
		URL:         "https://arxiv.org/abs/" + arxivID,
		RawPayload:  raw,
	}, nil
}

// feedAuthors reads dc:creator, which arXiv fills with one comma-separated
// list per item.
func feedAuthors(item *gofeed.Item) []string {
	var lists []string
	if item.DublinCoreExt != nil {
		lists = item.DublinCoreExt.Creator
	}
	if len(lists) == 0 {
		for _, p := range item.Authors {
			if p != nil {
				lists = append(lists, p.Name)
			}
		}
	}

	authors := []string{}
	for _, list := range lists {
		for _, name := range strings.Split(list, ",") {
			if name = normalizeWhitespace(name); name != "" {
				authors = append(authors, name)
			}
		}
	}
	return authors
}

// feedAbstract drops the "arXiv:NNNN Announce Type: new Abstract:" preamble.
func feedAbstract(description string) string {
	if _, after, ok := strings.Cut(description, "Abstract:"); ok {
		description = after
	}
	return normalizeWhitespace(description)
}

func titleClause(title string) string {
	return "ti:" + quote(title)
}

func authorClause(authors []string) string {
	var surnames []string
	for _, a := range authors {
		if len(surnames) == papersources.MaxLeadAuthors {
			break
		}
		if last := matching.LastName(a); last != "" {
			surnames = append(surnames, "au:"+last)
		}
	}
	switch len(surnames) {
	case 0:
		return ""
	case 1:
		return surnames[0]
	default:
		return "(" + strings.Join(surnames, " OR ") + ")"
	}
}

// dateClause builds a submittedDate range; a zero bound is open.
func dateClause(fromYear, toYear int) string {
	from, to := "*", "*"
	if fromYear > 0 {
		from = fmt.Sprintf("%04d01010000", fromYear)
	}
	if toYear > 0 {
		to = fmt.Sprintf("%04d12312359", toYear)
	}
	return fmt.Sprintf("submittedDate:[%s TO %s]", from, to)
}

// quote wraps s as a phrase, dropping characters that break arXiv query
// syntax.
func quote(s string) string {
	s = strings.NewReplacer(`"`, " ", "(", " ", ")", " ", ":", " ").Replace(s)
	return `"` + strings.Join(strings.Fields(s), " ") + `"`
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" -> "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return domain.NormalizeArXivID(matches[1])
}
