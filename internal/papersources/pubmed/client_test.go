package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

const esearchResponse = `{
	"header": {"type": "esearch", "version": "0.3"},
	"esearchresult": {
		"count": "2", "retmax": "2", "retstart": "0",
		"idlist": ["87654321", "12345678"]
	}
}`

const efetchResponse = `<?xml version="1.0" encoding="UTF-8" ?>
<!DOCTYPE PubmedArticleSet PUBLIC "-//NLM//DTD PubMedArticle, 1st January 2019//EN" "https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_190101.dtd">
<PubmedArticleSet>
	<PubmedArticle>
		<MedlineCitation Status="MEDLINE" Owner="NLM">
			<PMID Version="1">12345678</PMID>
			<Article PubModel="Print-Electronic">
				<Journal>
					<JournalIssue CitedMedium="Internet">
						<Volume>25</Volume>
						<PubDate><Year>2023</Year><Month>Mar</Month></PubDate>
					</JournalIssue>
					<Title>Journal of Testing</Title>
					<ISOAbbreviation>J Test</ISOAbbreviation>
				</Journal>
				<ArticleTitle>CRISPR-Cas9 editing of <i>Mus musculus</i> embryos.</ArticleTitle>
				<ELocationID EIdType="doi" ValidYN="Y">10.1234/TEST.2023.001</ELocationID>
				<Abstract>
					<AbstractText Label="BACKGROUND">Gene editing has changed research.</AbstractText>
					<AbstractText Label="RESULTS">Efficiency rose by 10 &amp; more.</AbstractText>
				</Abstract>
				<AuthorList CompleteYN="Y">
					<Author ValidYN="Y"><LastName>Smith</LastName><ForeName>John A</ForeName><Initials>JA</Initials></Author>
					<Author ValidYN="Y"><LastName>Johnson</LastName><Initials>E</Initials></Author>
					<Author ValidYN="N"><LastName>Ghost</LastName></Author>
					<Author ValidYN="Y"><CollectiveName>CRISPR Research Consortium</CollectiveName></Author>
				</AuthorList>
				<ArticleDate DateType="Electronic"><Year>2022</Year></ArticleDate>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList>
				<ArticleId IdType="pubmed">12345678</ArticleId>
				<ArticleId IdType="pmc">PMC9999999</ArticleId>
			</ArticleIdList>
		</PubmedData>
	</PubmedArticle>
	<PubmedArticle>
		<MedlineCitation>
			<PMID Version="1">87654321</PMID>
			<Article>
				<Journal>
					<JournalIssue><PubDate><MedlineDate>2019 Jan-Feb</MedlineDate></PubDate></JournalIssue>
					<ISOAbbreviation>Other J</ISOAbbreviation>
				</Journal>
				<ArticleTitle>Second article</ArticleTitle>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList><ArticleId IdType="doi">10.5555/second</ArticleId></ArticleIdList>
		</PubmedData>
	</PubmedArticle>
	<PubmedArticle>
		<MedlineCitation><PMID>not-a-number</PMID></MedlineCitation>
	</PubmedArticle>
</PubmedArticleSet>`

// eutilsServer records every request and serves canned esearch and efetch
// responses.
type eutilsServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []*url.URL
}

func newEutilsServer(t *testing.T, esearch, efetch string) *eutilsServer {
	t.Helper()
	s := &eutilsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL)
		s.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(esearch))
		case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
			w.Header().Set("Content-Type", "text/xml")
			w.Write([]byte(efetch))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *eutilsServer) last(path string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if strings.HasSuffix(s.requests[i].Path, path) {
			return s.requests[i].Query()
		}
	}
	return nil
}

func (s *eutilsServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := cache.New(cache.Config{MaxEntries: 100})
	require.NoError(t, err)

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypePubMed,
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: -1,
		Timeout:    5 * time.Second,
	})
	cfg := Config{BaseURL: serverURL, APIKey: "k", Email: "dev@example.org", Enabled: true}
	return NewWithHTTPClient(cfg, httpClient, papersources.Deps{Cache: c})
}

func TestClient_SearchByID(t *testing.T) {
	t.Run("PMID goes straight to efetch", func(t *testing.T) {
		server := newEutilsServer(t, esearchResponse, efetchResponse)
		client := newTestClient(t, server.URL)
		id := domain.Identifier{Type: domain.IdentifierTypePubMedID, Value: "pmid:12345678"}

		cs, err := client.SearchByID(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, cs, 1)

		q := server.last("/efetch.fcgi")
		assert.Equal(t, "12345678", q.Get("id"))
		assert.Equal(t, "pubmed", q.Get("db"))
		assert.Equal(t, "k", q.Get("api_key"))
		assert.Equal(t, "dev@example.org", q.Get("email"))
		assert.Nil(t, server.last("/esearch.fcgi"))

		c := cs[0]
		assert.Equal(t, domain.SourceTypePubMed, c.Source)
		assert.Equal(t, "12345678", c.ExternalIDs.PubMedID)
		assert.Equal(t, "10.1234/test.2023.001", c.ExternalIDs.DOI)
		assert.Equal(t, "CRISPR-Cas9 editing of Mus musculus embryos", c.Title)
		assert.Equal(t, []string{"John A Smith", "E Johnson", "CRISPR Research Consortium"}, c.Authors)
		assert.Equal(t, 2023, c.Year)
		assert.Equal(t, "Journal of Testing", c.Venue)
		assert.Equal(t, "Gene editing has changed research. Efficiency rose by 10 & more.", c.Abstract)
		assert.True(t, c.OpenAccess)
		assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/12345678/", c.URL)

		_, err = client.SearchByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1, server.count())
	})

	t.Run("DOI resolves through esearch", func(t *testing.T) {
		server := newEutilsServer(t, `{"esearchresult":{"count":"1","idlist":["87654321"]}}`, efetchResponse)

		cs, err := newTestClient(t, server.URL).SearchByID(context.Background(), domain.Identifier{Type: domain.IdentifierTypeDOI, Value: "https://doi.org/10.5555/SECOND"})
		require.NoError(t, err)
		require.Len(t, cs, 1)
		assert.Equal(t, "87654321", cs[0].ExternalIDs.PubMedID)
		assert.Equal(t, `"10.5555/second"[doi]`, server.last("/esearch.fcgi").Get("term"))
	})

	t.Run("unknown DOI yields no candidates", func(t *testing.T) {
		server := newEutilsServer(t, `{"esearchresult":{"count":"0","idlist":[]}}`, efetchResponse)

		cs, err := newTestClient(t, server.URL).SearchByID(context.Background(), domain.Identifier{Type: domain.IdentifierTypeDOI, Value: "10.1/none"})
		require.NoError(t, err)
		assert.Empty(t, cs)
		assert.Nil(t, server.last("/efetch.fcgi"))
	})

	t.Run("arXiv ids are unsupported", func(t *testing.T) {
		_, err := newTestClient(t, "http://unused").SearchByID(context.Background(), domain.Identifier{Type: domain.IdentifierTypeArXivID, Value: "1501.00001"})
		assert.ErrorIs(t, err, domain.ErrUnsupportedQuery)
	})
}

func TestClient_Search(t *testing.T) {
	server := newEutilsServer(t, esearchResponse, efetchResponse)
	client := newTestClient(t, server.URL)

	t.Run("title and authors keep esearch order", func(t *testing.T) {
		cs, err := client.SearchByTitleAuthor(context.Background(), "CRISPR [editing]", []string{"Smith, J.A.", "Emily Johnson", "Third Author"})
		require.NoError(t, err)

		require.Len(t, cs, 2, "record without a numeric PMID is skipped")
		assert.Equal(t, "87654321", cs[0].ExternalIDs.PubMedID)
		assert.Equal(t, 2019, cs[0].Year, "year from MedlineDate")
		assert.Equal(t, "Other J", cs[0].Venue)
		assert.Equal(t, "12345678", cs[1].ExternalIDs.PubMedID)

		q := server.last("/esearch.fcgi")
		assert.Equal(t, "(CRISPR editing)[Title] AND (smith[Author] OR johnson[Author])", q.Get("term"))
		assert.Equal(t, "10", q.Get("retmax"))
		assert.Equal(t, "json", q.Get("retmode"))
		assert.Equal(t, "87654321,12345678", server.last("/efetch.fcgi").Get("id"))
	})

	t.Run("title only", func(t *testing.T) {
		_, err := client.SearchByTitle(context.Background(), "CRISPR")
		require.NoError(t, err)
		q := server.last("/esearch.fcgi")
		assert.Equal(t, "(CRISPR)[Title]", q.Get("term"))
		assert.Equal(t, "5", q.Get("retmax"))
	})

	t.Run("author and year", func(t *testing.T) {
		_, err := client.SearchByAuthorYear(context.Background(), []string{"John Smith"}, 2023)
		require.NoError(t, err)
		assert.Equal(t, "smith[Author] AND 2022:2024[dp]", server.last("/esearch.fcgi").Get("term"))
	})

	t.Run("topic filters", func(t *testing.T) {
		_, err := client.SearchByTopic(context.Background(), "gene editing", 0, domain.DiscoveryFilters{
			YearFrom:      2015,
			OpenAccess:    true,
			FieldsOfStudy: []string{"Genetics"},
		})
		require.NoError(t, err)

		q := server.last("/esearch.fcgi")
		assert.Equal(t, `(gene editing) AND ("Genetics"[MeSH Terms]) AND "free full text"[sb]`, q.Get("term"))
		assert.Equal(t, "pdat", q.Get("datetype"))
		assert.Equal(t, "2015", q.Get("mindate"))
		assert.Equal(t, "3000", q.Get("maxdate"))
		assert.Equal(t, "10", q.Get("retmax"))
	})

	t.Run("topic keeps issue years inside the range", func(t *testing.T) {
		cs, err := client.SearchByTopic(context.Background(), "gene editing", 0, domain.DiscoveryFilters{YearFrom: 2020})
		require.NoError(t, err)

		require.Len(t, cs, 1)
		assert.Equal(t, "12345678", cs[0].ExternalIDs.PubMedID)
		assert.Equal(t, 2023, cs[0].Year)
	})
}

func TestClient_Errors(t *testing.T) {
	t.Run("esearch error message", func(t *testing.T) {
		server := newEutilsServer(t, `{"error":"API rate limit exceeded"}`, efetchResponse)
		_, err := newTestClient(t, server.URL).SearchByTitle(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	})

	t.Run("malformed efetch", func(t *testing.T) {
		server := newEutilsServer(t, esearchResponse, "<PubmedArticleSet><PubmedArticle>")
		_, err := newTestClient(t, server.URL).SearchByTitle(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrParseFailure)
	})
}

func TestExtractYearFromMedlineDate(t *testing.T) {
	tests := map[string]int{
		"2020 Jan-Feb": 2020,
		"2020 Spring":  2020,
		"2019-2020":    2019,
		"":             0,
		"Spring":       0,
	}
	for in, want := range tests {
		assert.Equal(t, want, extractYearFromMedlineDate(in), in)
	}
}
