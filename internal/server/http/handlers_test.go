package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeResolver struct {
	mu         sync.Mutex
	resolveFn  func(ref domain.ParsedReference) []domain.Candidate
	withFn     func(source domain.SourceType, ref domain.ParsedReference) ([]domain.Candidate, error)
	discoverFn func(source domain.SourceType, topic string, limit int, f domain.DiscoveryFilters) ([]domain.Candidate, error)
	lastRef    domain.ParsedReference
	lastSource domain.SourceType
}

func (f *fakeResolver) Resolve(_ context.Context, ref domain.ParsedReference) []domain.Candidate {
	f.mu.Lock()
	f.lastRef = ref
	f.mu.Unlock()
	if f.resolveFn != nil {
		return f.resolveFn(ref)
	}
	return []domain.Candidate{}
}

func (f *fakeResolver) ResolveWith(_ context.Context, source domain.SourceType, ref domain.ParsedReference) ([]domain.Candidate, error) {
	f.mu.Lock()
	f.lastRef, f.lastSource = ref, source
	f.mu.Unlock()
	if f.withFn != nil {
		return f.withFn(source, ref)
	}
	return []domain.Candidate{}, nil
}

func (f *fakeResolver) Discover(_ context.Context, source domain.SourceType, topic string, limit int, filters domain.DiscoveryFilters) ([]domain.Candidate, error) {
	if f.discoverFn != nil {
		return f.discoverFn(source, topic, limit, filters)
	}
	return []domain.Candidate{}, nil
}

type fakeAdapter struct {
	source  domain.SourceType
	enabled bool
}

func (a *fakeAdapter) Source() domain.SourceType            { return a.source }
func (a *fakeAdapter) Name() string                         { return string(a.source) }
func (a *fakeAdapter) IsEnabled() bool                      { return a.enabled }
func (a *fakeAdapter) Identifiers() []domain.IdentifierType { return []domain.IdentifierType{domain.IdentifierTypeDOI} }
func (a *fakeAdapter) SearchByID(context.Context, domain.Identifier) ([]domain.Candidate, error) {
	return nil, nil
}
func (a *fakeAdapter) SearchByTitleAuthor(context.Context, string, []string) ([]domain.Candidate, error) {
	return nil, nil
}
func (a *fakeAdapter) SearchByTitle(context.Context, string) ([]domain.Candidate, error) {
	return nil, nil
}

type graphAdapter struct {
	fakeAdapter
	err       error
	gotID     string
	gotLimit  int
	gotCalled string
}

func (g *graphAdapter) listing(op, id string, limit int) ([]domain.Candidate, error) {
	g.gotCalled, g.gotID, g.gotLimit = op, id, limit
	if g.err != nil {
		return nil, g.err
	}
	return []domain.Candidate{{Source: g.source, Title: op + " of " + id}}, nil
}

func (g *graphAdapter) Citations(_ context.Context, id string, limit int) ([]domain.Candidate, error) {
	return g.listing("citations", id, limit)
}

func (g *graphAdapter) References(_ context.Context, id string, limit int) ([]domain.Candidate, error) {
	return g.listing("references", id, limit)
}

func (g *graphAdapter) Related(_ context.Context, id string, limit int) ([]domain.Candidate, error) {
	return g.listing("related", id, limit)
}

type categoryAdapter struct {
	fakeAdapter
	gotCalled string
}

func (c *categoryAdapter) RecentByCategory(_ context.Context, category string, limit int) ([]domain.Candidate, error) {
	c.gotCalled = "recent"
	return []domain.Candidate{{Source: c.source, Title: "recent " + category}}, nil
}

func (c *categoryAdapter) SearchByCategory(_ context.Context, category string, limit int) ([]domain.Candidate, error) {
	c.gotCalled = "search"
	return []domain.Candidate{{Source: c.source, Title: "search " + category}}, nil
}

type fakeProviders struct {
	adapters []papersources.Adapter
}

func (p *fakeProviders) All() []papersources.Adapter { return p.adapters }

func (p *fakeProviders) Get(source domain.SourceType) (papersources.Adapter, bool) {
	for _, a := range p.adapters {
		if a.Source() == source {
			return a, true
		}
	}
	return nil, false
}

type fakeRecorder struct {
	mu     sync.Mutex
	routes []string
	status []int
}

func (r *fakeRecorder) RecordHTTPRequest(route, method string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, method+" "+route)
	r.status = append(r.status, status)
}

func newTestServer(res Resolver, providers Providers, opts ...Option) *Server {
	if providers == nil {
		providers = &fakeProviders{}
	}
	return NewServer(Config{ListingTimeout: time.Second}, res, providers, zerolog.Nop(), opts...)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeCandidates(t *testing.T, rr *httptest.ResponseRecorder) candidatesResponse {
	t.Helper()
	var resp candidatesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v (%s)", err, rr.Body.String())
	}
	return resp
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body["error"]
}

func score(v float64) *float64 { return &v }

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolveReference_Blended(t *testing.T) {
	res := &fakeResolver{resolveFn: func(ref domain.ParsedReference) []domain.Candidate {
		return []domain.Candidate{{
			Source:         domain.SourceTypeCrossRef,
			Title:          "Deep Learning",
			RelevanceScore: score(0.9),
			RawPayload:     json.RawMessage(`{"DOI":"10.1/x"}`),
		}}
	}}
	s := newTestServer(res, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/references/resolve",
		`{"title":"  Deep Learning ","authors":["LeCun, Y."],"year":2015}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeCandidates(t, rr)
	if resp.Count != 1 || len(resp.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %+v", resp)
	}
	if resp.Candidates[0].RawPayload != nil {
		t.Error("raw payload should be omitted by default")
	}
	if resp.Provider != "" {
		t.Errorf("blended resolution has no provider, got %q", resp.Provider)
	}
	if res.lastRef.Title != "Deep Learning" || res.lastRef.Year != 2015 {
		t.Errorf("unexpected reference passed to resolver: %+v", res.lastRef)
	}
}

func TestResolveReference_IncludeRaw(t *testing.T) {
	res := &fakeResolver{resolveFn: func(domain.ParsedReference) []domain.Candidate {
		return []domain.Candidate{{Source: domain.SourceTypeArXiv, RawPayload: json.RawMessage(`{"id":"x"}`)}}
	}}
	s := newTestServer(res, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/references/resolve?include_raw=true", `{"arxiv_id":"2101.00001"}`)
	resp := decodeCandidates(t, rr)
	if len(resp.Candidates) != 1 || string(resp.Candidates[0].RawPayload) != `{"id":"x"}` {
		t.Fatalf("expected raw payload, got %s", rr.Body.String())
	}
}

func TestResolveReference_EmptyReferenceIsEmptyResult(t *testing.T) {
	s := newTestServer(&fakeResolver{}, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/references/resolve", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"candidates":[]`) {
		t.Errorf("expected empty candidates array, got %s", rr.Body.String())
	}
}

func TestResolveReference_SingleProvider(t *testing.T) {
	t.Run("uses named provider", func(t *testing.T) {
		res := &fakeResolver{}
		s := newTestServer(res, nil)

		rr := doRequest(t, s, http.MethodPost, "/api/v1/references/resolve", `{"doi":"10.1/x","provider":"s2"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if res.lastSource != domain.SourceTypeSemanticScholar {
			t.Errorf("expected semantic_scholar, got %s", res.lastSource)
		}
		if resp := decodeCandidates(t, rr); resp.Provider != "semantic_scholar" {
			t.Errorf("expected provider in response, got %q", resp.Provider)
		}
	})

	t.Run("unknown provider name is 404", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil)
		rr := doRequest(t, s, http.MethodPost, "/api/v1/references/resolve", `{"doi":"10.1/x","provider":"scopus"}`)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("unregistered provider is 404", func(t *testing.T) {
		res := &fakeResolver{withFn: func(source domain.SourceType, _ domain.ParsedReference) ([]domain.Candidate, error) {
			return nil, domain.NewNotFoundError("provider", string(source))
		}}
		s := newTestServer(res, nil)
		rr := doRequest(t, s, http.MethodPost, "/api/v1/references/resolve", `{"doi":"10.1/x","provider":"pubmed"}`)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
		if msg := errorMessage(t, rr); msg != "provider not found: pubmed" {
			t.Errorf("unexpected message %q", msg)
		}
	})
}

func TestResolveReference_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"malformed json", `{"title":`, http.StatusBadRequest, "invalid JSON request body"},
		{"unknown field", `{"titel":"x"}`, http.StatusBadRequest, "invalid JSON request body"},
		{"year out of range", `{"title":"x","year":99}`, http.StatusBadRequest, "year must be at least 1000"},
		{"title too long", fmt.Sprintf(`{"title":%q}`, strings.Repeat("a", 2001)), http.StatusBadRequest, "title must be at most 2000"},
		{"too many authors", fmt.Sprintf(`{"authors":[%s"x"]}`, strings.Repeat(`"a",`, 100)), http.StatusBadRequest, "authors must be at most 100"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeResolver{}, nil)
			rr := doRequest(t, s, http.MethodPost, "/api/v1/references/resolve", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if msg := errorMessage(t, rr); msg != tc.message {
				t.Errorf("expected message %q, got %q", tc.message, msg)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Discover
// ---------------------------------------------------------------------------

func TestDiscoverTopic(t *testing.T) {
	t.Run("passes topic limit and filters", func(t *testing.T) {
		var (
			gotSource  domain.SourceType
			gotTopic   string
			gotLimit   int
			gotFilters domain.DiscoveryFilters
		)
		res := &fakeResolver{discoverFn: func(source domain.SourceType, topic string, limit int, f domain.DiscoveryFilters) ([]domain.Candidate, error) {
			gotSource, gotTopic, gotLimit, gotFilters = source, topic, limit, f
			return []domain.Candidate{{Source: source, Title: "GNNs", GenerationScore: score(0.8)}}, nil
		}}
		s := newTestServer(res, nil)

		rr := doRequest(t, s, http.MethodPost, "/api/v1/topics/discover",
			`{"topic":" graph neural networks ","limit":5,"provider":"openalex","filters":{"year_from":"2020","open_access":true}}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if gotSource != domain.SourceTypeOpenAlex || gotTopic != "graph neural networks" || gotLimit != 5 {
			t.Errorf("unexpected call: %s %q %d", gotSource, gotTopic, gotLimit)
		}
		if gotFilters.YearFrom != 2020 || !gotFilters.OpenAccess {
			t.Errorf("unexpected filters: %+v", gotFilters)
		}
		if resp := decodeCandidates(t, rr); resp.Count != 1 || resp.Provider != "openalex" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("requires topic and provider", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil)

		rr := doRequest(t, s, http.MethodPost, "/api/v1/topics/discover", `{"provider":"openalex"}`)
		if rr.Code != http.StatusBadRequest || errorMessage(t, rr) != "topic is required" {
			t.Errorf("expected topic is required, got %d %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(t, s, http.MethodPost, "/api/v1/topics/discover", `{"topic":"   ","provider":"openalex"}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("blank topic: expected 400, got %d", rr.Code)
		}

		rr = doRequest(t, s, http.MethodPost, "/api/v1/topics/discover", `{"topic":"x"}`)
		if rr.Code != http.StatusBadRequest || errorMessage(t, rr) != "provider is required" {
			t.Errorf("expected provider is required, got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("limit bounds", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil)
		rr := doRequest(t, s, http.MethodPost, "/api/v1/topics/discover", `{"topic":"x","provider":"arxiv","limit":101}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("unsupported provider is 422", func(t *testing.T) {
		res := &fakeResolver{discoverFn: func(source domain.SourceType, _ string, _ int, _ domain.DiscoveryFilters) ([]domain.Candidate, error) {
			return nil, fmt.Errorf("%s topic search: %w", source, domain.ErrUnsupportedQuery)
		}}
		s := newTestServer(res, nil)
		rr := doRequest(t, s, http.MethodPost, "/api/v1/topics/discover", `{"topic":"x","provider":"crossref"}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected 422, got %d", rr.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// Providers and listings
// ---------------------------------------------------------------------------

func TestListProviders(t *testing.T) {
	providers := &fakeProviders{adapters: []papersources.Adapter{
		&fakeAdapter{source: domain.SourceTypeCrossRef, enabled: true},
		&graphAdapter{fakeAdapter: fakeAdapter{source: domain.SourceTypeSemanticScholar, enabled: true}},
	}}
	s := newTestServer(&fakeResolver{}, providers)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/providers", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp providersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 providers, got %d", resp.Count)
	}
	if resp.Providers[0].Graph || !resp.Providers[1].Graph {
		t.Errorf("unexpected graph capabilities: %+v", resp.Providers)
	}
}

func TestPaperListings(t *testing.T) {
	graph := &graphAdapter{fakeAdapter: fakeAdapter{source: domain.SourceTypeSemanticScholar, enabled: true}}
	s := newTestServer(&fakeResolver{}, &fakeProviders{adapters: []papersources.Adapter{graph}})

	for _, op := range []string{"citations", "references", "related"} {
		t.Run(op, func(t *testing.T) {
			rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/abc123/"+op+"?limit=7", "")
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if graph.gotCalled != op || graph.gotID != "abc123" || graph.gotLimit != 7 {
				t.Errorf("unexpected call %s(%s, %d)", graph.gotCalled, graph.gotID, graph.gotLimit)
			}
			if resp := decodeCandidates(t, rr); resp.Candidates[0].Title != op+" of abc123" {
				t.Errorf("unexpected body %s", rr.Body.String())
			}
		})
	}

	t.Run("limit is clamped and validated", func(t *testing.T) {
		doRequest(t, s, http.MethodGet, "/api/v1/papers/abc/related?limit=1000", "")
		if graph.gotLimit != maxListLimit {
			t.Errorf("expected clamp to %d, got %d", maxListLimit, graph.gotLimit)
		}
		doRequest(t, s, http.MethodGet, "/api/v1/papers/abc/related", "")
		if graph.gotLimit != defaultListLimit {
			t.Errorf("expected default %d, got %d", defaultListLimit, graph.gotLimit)
		}
		rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/abc/related?limit=zero", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("provider failure is 502", func(t *testing.T) {
		failing := &graphAdapter{
			fakeAdapter: fakeAdapter{source: domain.SourceTypeSemanticScholar, enabled: true},
			err:         domain.NewExternalAPIError("semantic_scholar", http.StatusServiceUnavailable, "down", nil),
		}
		s := newTestServer(&fakeResolver{}, &fakeProviders{adapters: []papersources.Adapter{failing}})
		rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/abc/citations", "")
		if rr.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "down") {
			t.Error("provider message leaked into response")
		}
	})

	t.Run("disabled provider is 404", func(t *testing.T) {
		disabled := &graphAdapter{fakeAdapter: fakeAdapter{source: domain.SourceTypeSemanticScholar}}
		s := newTestServer(&fakeResolver{}, &fakeProviders{adapters: []papersources.Adapter{disabled}})
		rr := doRequest(t, s, http.MethodGet, "/api/v1/papers/abc/citations", "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestArxivListings(t *testing.T) {
	lister := &categoryAdapter{fakeAdapter: fakeAdapter{source: domain.SourceTypeArXiv, enabled: true}}
	s := newTestServer(&fakeResolver{}, &fakeProviders{adapters: []papersources.Adapter{lister}})

	rr := doRequest(t, s, http.MethodGet, "/api/v1/arxiv/categories/cs.LG/recent", "")
	if rr.Code != http.StatusOK || lister.gotCalled != "recent" {
		t.Fatalf("recent: got %d, called %q", rr.Code, lister.gotCalled)
	}
	if resp := decodeCandidates(t, rr); resp.Candidates[0].Title != "recent cs.LG" {
		t.Errorf("unexpected body %s", rr.Body.String())
	}

	rr = doRequest(t, s, http.MethodGet, "/api/v1/arxiv/categories/cs.LG/papers", "")
	if rr.Code != http.StatusOK || lister.gotCalled != "search" {
		t.Fatalf("papers: got %d, called %q", rr.Code, lister.gotCalled)
	}

	s = newTestServer(&fakeResolver{}, &fakeProviders{})
	rr = doRequest(t, s, http.MethodGet, "/api/v1/arxiv/categories/cs.LG/recent", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 without arxiv, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(&fakeResolver{}, nil, WithReadiness(func(context.Context) error {
		return fmt.Errorf("no paper source enabled")
	}))

	if rr := doRequest(t, s, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rr.Code)
	}
	rr := doRequest(t, s, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz: expected 503, got %d", rr.Code)
	}

	ok := newTestServer(&fakeResolver{}, nil, WithReadiness(func(context.Context) error { return nil }))
	if rr := doRequest(t, ok, http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
		t.Errorf("readyz: expected 200, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(&fakeResolver{}, nil)
	rr := doRequest(t, s, http.MethodGet, "/api/v1/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = doRequest(t, s, http.MethodGet, "/api/v1/references/resolve", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
