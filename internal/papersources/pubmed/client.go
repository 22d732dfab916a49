package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
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
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResults caps retmax on a topic search.
	MaxResults = 200

	// FetchBatchSize is the number of PMIDs sent per efetch request.
	FetchBatchSize = 200

	// toolName identifies this client to NCBI.
	toolName = "helixir-citation-discovery"

	sourceName = "PubMed"
)

var markupTag = regexp.MustCompile(`<[^>]+>`)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Email is sent with every request as NCBI asks of E-utilities clients.
	Email string

	// Timeout is the request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit (3 req/sec) if zero.
	// With an API key, you can increase this to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxRetries caps retries on 429 and 5xx.
	MaxRetries int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults applies default values to the config.
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

// Client implements papersources.Adapter for PubMed.
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

// New creates a new PubMed client with the given configuration.
func New(cfg Config, deps papersources.Deps) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypePubMed,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  papersources.PoliteUserAgent(cfg.Email),
	})
	httpClient.SetObserver(deps.Observer)

	return NewWithHTTPClient(cfg, httpClient, deps)
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
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
func (c *Client) Source() domain.SourceType { return domain.SourceTypePubMed }

// Name returns the human-readable name for this source.
func (c *Client) Name() string { return sourceName }

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Identifiers reports the external identifiers PubMed resolves directly.
func (c *Client) Identifiers() []domain.IdentifierType {
	return []domain.IdentifierType{domain.IdentifierTypePubMedID, domain.IdentifierTypeDOI}
}

// SearchByID fetches a PMID directly, or resolves a DOI through esearch's
// [doi] field first.
func (c *Client) SearchByID(ctx context.Context, id domain.Identifier) ([]domain.Candidate, error) {
	var value string
	switch id.Type {
	case domain.IdentifierTypePubMedID:
		value = domain.NormalizePMID(id.Value)
	case domain.IdentifierTypeDOI:
		value = domain.NormalizeDOI(id.Value)
	default:
		return nil, fmt.Errorf("pubmed lookup by %s: %w", id.Type, domain.ErrUnsupportedQuery)
	}
	if value == "" {
		return []domain.Candidate{}, nil
	}

	key := cache.NewKey(c.Source(), domain.QueryKindID, map[string]string{"type": string(id.Type), "value": value})
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		pmids := []string{value}
		if id.Type == domain.IdentifierTypeDOI {
			var err error
			if pmids, err = c.esearch(ctx, quoteTerm(value)+"[doi]", 1, nil); err != nil {
				return nil, err
			}
		}
		cs, err := c.efetch(ctx, pmids)
		if err != nil {
			return nil, err
		}
		return domain.Truncate(cs, 1), nil
	})
}

// SearchByTitleAuthor matches title words and any of the lead authors.
func (c *Client) SearchByTitleAuthor(ctx context.Context, title string, authors []string) ([]domain.Candidate, error) {
	term := titleTerm(title)
	if au := authorTerm(authors); au != "" {
		term += " AND " + au
	}

	payload := map[string]any{"title": cache.NormalizeQuery(title), "authors": cache.NormalizeQueries(authors)}
	return c.search(ctx, domain.QueryKindTitleAuthor, payload, term, papersources.TitleAuthorLimit, nil)
}

// SearchByTitle matches title words alone.
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]domain.Candidate, error) {
	return c.search(ctx, domain.QueryKindTitle, cache.NormalizeQuery(title), titleTerm(title), papersources.TitleLimit, nil)
}

// SearchByAuthorYear matches the lead authors within a publication date
// window of one year either side.
func (c *Client) SearchByAuthorYear(ctx context.Context, authors []string, year int) ([]domain.Candidate, error) {
	au := authorTerm(authors)
	if au == "" {
		return []domain.Candidate{}, nil
	}
	term := fmt.Sprintf("%s AND %d:%d[dp]", au, year-1, year+1)

	payload := map[string]any{"authors": cache.NormalizeQueries(authors), "year": year}
	return c.search(ctx, domain.QueryKindAuthorYear, payload, term, papersources.AuthorYearLimit, nil)
}

// SearchByTopic runs a relevance-sorted free-text search. Fields of study are
// matched as MeSH terms and OpenAccess restricts to free full text. PubMed
// reports no citation counts, so any positive MinCitations leaves nothing.
func (c *Client) SearchByTopic(ctx context.Context, topic string, limit int, f domain.DiscoveryFilters) ([]domain.Candidate, error) {
	limit = papersources.Limit(limit, papersources.DefaultTopicLimit, MaxResults)

	term := strings.TrimSpace(topic)
	if len(f.FieldsOfStudy) > 0 {
		mesh := make([]string, 0, len(f.FieldsOfStudy))
		for _, field := range f.FieldsOfStudy {
			mesh = append(mesh, quoteTerm(field)+"[MeSH Terms]")
		}
		term = "(" + term + ") AND (" + strings.Join(mesh, " OR ") + ")"
	}
	if f.OpenAccess {
		term += ` AND "free full text"[sb]`
	}

	extra := url.Values{}
	if f.YearFrom > 0 || f.YearTo > 0 {
		extra.Set("datetype", "pdat")
		extra.Set("mindate", yearBound(f.YearFrom, 1800))
		extra.Set("maxdate", yearBound(f.YearTo, 3000))
	}

	payload := map[string]any{"topic": cache.NormalizeQuery(topic), "limit": limit, "filters": f}
	cs, err := c.search(ctx, domain.QueryKindTopic, payload, term, limit, extra)
	if err != nil {
		return nil, err
	}
	// pdat can match an electronic date while the issue year falls outside.
	cs = papersources.FilterYears(cs, f.YearFrom, f.YearTo)
	return papersources.FilterMinCitations(cs, f.MinCitations), nil
}

func (c *Client) search(ctx context.Context, kind domain.QueryKind, payload any, term string, retmax int, extra url.Values) ([]domain.Candidate, error) {
	key := cache.NewKey(c.Source(), kind, payload)
	return cache.Fetch(ctx, c.deps.Cache, key, func(ctx context.Context) ([]domain.Candidate, error) {
		pmids, err := c.esearch(ctx, term, retmax, extra)
		if err != nil {
			return nil, err
		}
		return c.efetch(ctx, pmids)
	})
}

// esearch returns the PMIDs matching term in relevance order.
func (c *Client) esearch(ctx context.Context, term string, retmax int, extra url.Values) ([]string, error) {
	params := c.baseParams()
	for k, vs := range extra {
		params[k] = vs
	}
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(retmax))
	params.Set("sort", "relevance")

	body, err := c.httpClient.Get(ctx, c.endpoint("esearch.fcgi", params), "application/json")
	if err != nil {
		return nil, err
	}

	var resp ESearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewParseError(string(c.Source()), -1, err)
	}
	if msg := firstNonEmpty(resp.Error, resp.Result.Error); msg != "" {
		return nil, domain.NewExternalAPIError(string(c.Source()), http.StatusOK, msg, nil)
	}
	if el := resp.Result.ErrorList; el != nil && len(el.PhrasesNotFound) > 0 {
		c.deps.Logger.Debug().
			Strs("phrases", el.PhrasesNotFound).
			Msg("pubmed phrases not found")
	}
	return resp.Result.IDList, nil
}

// efetch retrieves the article records for pmids in batches and returns them
// in the order of pmids.
func (c *Client) efetch(ctx context.Context, pmids []string) ([]domain.Candidate, error) {
	out := []domain.Candidate{}
	for start := 0; start < len(pmids); start += FetchBatchSize {
		batch := pmids[start:min(start+FetchBatchSize, len(pmids))]

		params := c.baseParams()
		params.Set("id", strings.Join(batch, ","))
		params.Set("retmode", "xml")
		params.Set("rettype", "abstract")

		body, err := c.httpClient.Get(ctx, c.endpoint("efetch.fcgi", params), "application/xml")
		if err != nil {
			return nil, err
		}

		var set PubmedArticleSet
		if err := xml.Unmarshal(body, &set); err != nil {
			return nil, domain.NewParseError(string(c.Source()), -1, err)
		}
		out = append(out, papersources.ParseRecords(c.Source(), c.deps.Logger, set.Articles, parseRecord)...)
	}
	return inOrder(out, pmids), nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("tool", toolName)
	if c.config.Email != "" {
		params.Set("email", c.config.Email)
	}
	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}
	return params
}

func (c *Client) endpoint(name string, params url.Values) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + name + "?" + params.Encode()
}

// parseRecord translates one efetch article into a candidate.
func parseRecord(article PubmedArticle) (domain.Candidate, error) {
	citation := article.MedlineCitation
	pmid := domain.NormalizePMID(citation.PMID.Value)
	if pmid == "" {
		return domain.Candidate{}, fmt.Errorf("invalid PMID %q", citation.PMID.Value)
	}

	title := stripMarkup(citation.Article.ArticleTitle.Inner)
	if title == "" {
		return domain.Candidate{}, errors.New("article has no title")
	}

	venue := citation.Article.Journal.Title
	if venue == "" {
		venue = citation.Article.Journal.ISOAbbreviation
	}

	raw, err := json.Marshal(article)
	if err != nil {
		return domain.Candidate{}, err
	}

	pmcid := articleID(article.PubmedData, "pmc")
	return domain.Candidate{
		ExternalIDs: domain.ExternalIDs{
			PubMedID: pmid,
			DOI:      domain.NormalizeDOI(extractDOI(citation.Article, article.PubmedData)),
		},
		Title:      strings.TrimSuffix(title, "."),
		Authors:    extractAuthors(citation.Article.AuthorList),
		Year:       extractYear(citation.Article),
		Venue:      strings.TrimSpace(venue),
		Abstract:   extractAbstract(citation.Article.Abstract),
		OpenAccess: pmcid != "",
		URL:        "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		RawPayload: raw,
	}, nil
}

// extractDOI checks ELocationID first, then ArticleIdList.
func extractDOI(article Article, data PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}
	return articleID(data, "doi")
}

func articleID(data PubmedData, idType string) string {
	for _, aid := range data.ArticleIdList.ArticleIds {
		if aid.IdType == idType {
			return strings.TrimSpace(aid.Value)
		}
	}
	return ""
}

// extractYear prefers the journal issue date, which is what citations carry,
// then MedlineDate, then the electronic publication date.
func extractYear(article Article) int {
	pub := article.Journal.JournalIssue.PubDate
	if y, err := strconv.Atoi(strings.TrimSpace(pub.Year)); err == nil {
		return y
	}
	if y := extractYearFromMedlineDate(pub.MedlineDate); y > 0 {
		return y
	}
	for _, ad := range article.ArticleDate {
		if y, err := strconv.Atoi(strings.TrimSpace(ad.Year)); err == nil {
			return y
		}
	}
	return 0
}

// extractYearFromMedlineDate extracts the year from a MedlineDate string such
// as "2020 Jan-Feb", "2020 Spring" or "2019-2020".
func extractYearFromMedlineDate(medlineDate string) int {
	parts := strings.Fields(medlineDate)
	if len(parts) == 0 {
		return 0
	}
	year, err := strconv.Atoi(strings.Split(parts[0], "-")[0])
	if err != nil {
		return 0
	}
	return year
}

// extractAbstract joins the abstract segments with a single space.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil {
		return ""
	}
	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, at := range abstract.AbstractTexts {
		if text := stripMarkup(at.Inner); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// extractAuthors renders authors as "ForeName LastName", falling back to
// initials or the collective name.
func extractAuthors(list *AuthorList) []string {
	authors := []string{}
	if list == nil {
		return authors
	}
	for _, a := range list.Authors {
		if a.ValidYN == "N" {
			continue
		}
		name := strings.TrimSpace(a.CollectiveName)
		if name == "" {
			first := a.ForeName
			if first == "" {
				first = a.Initials
			}
			name = strings.TrimSpace(strings.Join(strings.Fields(first+" "+a.LastName), " "))
		}
		if name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

// inOrder arranges cs to follow the esearch ranking in pmids.
func inOrder(cs []domain.Candidate, pmids []string) []domain.Candidate {
	rank := make(map[string]int, len(pmids))
	for i, id := range pmids {
		rank[id] = i
	}
	out := make([]domain.Candidate, len(cs))
	copy(out, cs)
	sort.SliceStable(out, func(i, j int) bool {
		ra, oka := rank[out[i].ExternalIDs.PubMedID]
		rb, okb := rank[out[j].ExternalIDs.PubMedID]
		if oka != okb {
			return oka
		}
		return ra < rb
	})
	return out
}

func stripMarkup(s string) string {
	s = markupTag.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

func titleTerm(title string) string {
	return "(" + cleanTerm(title) + ")[Title]"
}

func authorTerm(authors []string) string {
	var terms []string
	for _, a := range authors {
		if len(terms) == papersources.MaxLeadAuthors {
			break
		}
		if last := matching.LastName(a); last != "" {
			terms = append(terms, last+"[Author]")
		}
	}
	switch len(terms) {
	case 0:
		return ""
	case 1:
		return terms[0]
	default:
		return "(" + strings.Join(terms, " OR ") + ")"
	}
}

// cleanTerm removes characters that carry meaning in Entrez query syntax.
func cleanTerm(s string) string {
	s = strings.NewReplacer("[", " ", "]", " ", "(", " ", ")", " ", `"`, " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func quoteTerm(s string) string {
	return `"` + cleanTerm(s) + `"`
}

func yearBound(year, fallback int) string {
	if year <= 0 {
		year = fallback
	}
	return strconv.Itoa(year)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
