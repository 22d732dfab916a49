package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-discovery-service/internal/app"
	"github.com/helixir/citation-discovery-service/internal/config"
	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/papersources"
	"github.com/helixir/citation-discovery-service/internal/resolver"
)

type stubAdapter struct {
	source  domain.SourceType
	work    domain.Candidate
	topic   []domain.Candidate
	filters domain.DiscoveryFilters
	lastKey string
}

func (s *stubAdapter) Source() domain.SourceType { return s.source }
func (s *stubAdapter) Name() string              { return "Stub " + string(s.source) }
func (s *stubAdapter) IsEnabled() bool           { return true }
func (s *stubAdapter) Identifiers() []domain.IdentifierType {
	return []domain.IdentifierType{domain.IdentifierTypeDOI}
}

func (s *stubAdapter) SearchByID(_ context.Context, id domain.Identifier) ([]domain.Candidate, error) {
	if id.Value != s.work.ExternalIDs.DOI {
		return nil, nil
	}
	return []domain.Candidate{s.work}, nil
}

func (s *stubAdapter) SearchByTitleAuthor(context.Context, string, []string) ([]domain.Candidate, error) {
	return nil, nil
}

func (s *stubAdapter) SearchByTitle(context.Context, string) ([]domain.Candidate, error) {
	return nil, nil
}

func (s *stubAdapter) SearchByTopic(_ context.Context, _ string, _ int, f domain.DiscoveryFilters) ([]domain.Candidate, error) {
	s.filters = f
	return s.topic, nil
}

func (s *stubAdapter) Citations(_ context.Context, id string, _ int) ([]domain.Candidate, error) {
	s.lastKey = "citations:" + id
	return []domain.Candidate{s.work}, nil
}

func (s *stubAdapter) References(_ context.Context, id string, _ int) ([]domain.Candidate, error) {
	s.lastKey = "references:" + id
	return nil, nil
}

func (s *stubAdapter) Related(_ context.Context, id string, _ int) ([]domain.Candidate, error) {
	s.lastKey = "related:" + id
	return nil, nil
}

var (
	_ papersources.TopicSearcher = (*stubAdapter)(nil)
	_ papersources.CitationGraph = (*stubAdapter)(nil)
)

func newStub() *stubAdapter {
	return &stubAdapter{
		source: domain.SourceTypeSemanticScholar,
		work: domain.Candidate{
			Source:        domain.SourceTypeSemanticScholar,
			ExternalIDs:   domain.ExternalIDs{DOI: "10.1038/nature14539", SemanticScholarID: "abc123"},
			Title:         "Deep learning",
			Authors:       []string{"Yann LeCun", "Yoshua Bengio", "Geoffrey Hinton"},
			Year:          2015,
			CitationCount: 50000,
		},
		topic: []domain.Candidate{
			{Source: domain.SourceTypeSemanticScholar, Title: "Graph neural networks: a review", Abstract: "A survey of graph neural networks.", Year: 2020, CitationCount: 900},
			{Source: domain.SourceTypeSemanticScholar},
		},
	}
}

func runCLI(t *testing.T, stub *stubAdapter, args ...string) (string, error) {
	t.Helper()

	c := newCLI()
	c.loadConfig = func() (*config.Config, error) { return &config.Config{}, nil }
	c.newService = func(_ context.Context, cfg *config.Config, logger zerolog.Logger) (*app.Service, error) {
		registry := papersources.NewRegistry(0)
		if stub != nil {
			registry.Register(stub)
		}
		return &app.Service{
			Config:   cfg,
			Logger:   logger,
			Registry: registry,
			Resolver: resolver.New(registry),
		}, nil
	}

	var out bytes.Buffer
	root := newRootCmd(c)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResolveCmd(t *testing.T) {
	t.Run("table output", func(t *testing.T) {
		out, err := runCLI(t, newStub(), "resolve", "--doi", "https://doi.org/10.1038/nature14539")
		require.NoError(t, err)
		assert.Contains(t, out, "SCORE")
		assert.Contains(t, out, "doi:10.1038/nature14539")
		assert.Contains(t, out, "Deep learning")
	})

	t.Run("json output", func(t *testing.T) {
		out, err := runCLI(t, newStub(), "resolve", "--doi", "10.1038/nature14539", "--json")
		require.NoError(t, err)

		var cs []domain.Candidate
		require.NoError(t, json.Unmarshal([]byte(out), &cs))
		require.Len(t, cs, 1)
		assert.Equal(t, domain.QueryKindID, cs[0].MatchTier)
		assert.NotNil(t, cs[0].RelevanceScore)
	})

	t.Run("no match", func(t *testing.T) {
		out, err := runCLI(t, newStub(), "resolve", "--doi", "10.1/none")
		require.NoError(t, err)
		assert.Equal(t, "no candidates found\n", out)
	})

	t.Run("empty reference", func(t *testing.T) {
		_, err := runCLI(t, newStub(), "resolve")
		assert.ErrorIs(t, err, domain.ErrInvalidReference)
	})

	t.Run("single provider", func(t *testing.T) {
		out, err := runCLI(t, newStub(), "resolve", "--doi", "10.1038/nature14539", "--provider", "s2")
		require.NoError(t, err)
		assert.Contains(t, out, "semantic_scholar")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := runCLI(t, newStub(), "resolve", "--doi", "10.1038/nature14539", "--provider", "scopus")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDiscoverCmd(t *testing.T) {
	t.Run("ranks and parses filters", func(t *testing.T) {
		stub := newStub()
		out, err := runCLI(t, stub, "discover", "graph", "neural", "networks",
			"--provider", "semantic_scholar", "--filter", "year_from=2018", "--filter", "open_access=true", "--json")
		require.NoError(t, err)

		var cs []domain.Candidate
		require.NoError(t, json.Unmarshal([]byte(out), &cs))
		require.Len(t, cs, 1, "candidates without title or abstract are dropped")
		assert.NotNil(t, cs[0].GenerationScore)
		assert.Equal(t, 2018, stub.filters.YearFrom)
		assert.True(t, stub.filters.OpenAccess)
	})

	t.Run("malformed filter", func(t *testing.T) {
		_, err := runCLI(t, newStub(), "discover", "x", "--provider", "s2", "--filter", "year_from")
		assert.ErrorContains(t, err, "key=value")
	})

	t.Run("topic is required", func(t *testing.T) {
		_, err := runCLI(t, newStub(), "discover")
		assert.Error(t, err)
	})
}

func TestProvidersCmd(t *testing.T) {
	out, err := runCLI(t, newStub(), "providers")
	require.NoError(t, err)
	assert.Contains(t, out, "semantic_scholar")
	assert.Contains(t, out, "citations")

	out, err = runCLI(t, newStub(), "providers", "--json")
	require.NoError(t, err)
	var caps []papersources.Capabilities
	require.NoError(t, json.Unmarshal([]byte(out), &caps))
	require.Len(t, caps, 1)
	assert.True(t, caps[0].Graph)
	assert.True(t, caps[0].Topic)
	assert.False(t, caps[0].Categories)
}

func TestPaperCmd(t *testing.T) {
	stub := newStub()
	out, err := runCLI(t, stub, "paper", "citations", "DOI:10.1038/nature14539")
	require.NoError(t, err)
	assert.Equal(t, "citations:DOI:10.1038/nature14539", stub.lastKey)
	assert.Contains(t, out, "Deep learning")

	_, err = runCLI(t, stub, "paper", "references", "  ")
	assert.ErrorContains(t, err, "identifier is required")

	_, err = runCLI(t, nil, "paper", "related", "abc")
	assert.ErrorContains(t, err, "not enabled")
}

func TestArxivCmd(t *testing.T) {
	// The stub is registered under semantic_scholar, so arxiv is absent.
	_, err := runCLI(t, newStub(), "arxiv", "recent", "cs.LG")
	assert.ErrorContains(t, err, "arxiv provider not enabled")
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"year_to = 2020", "fields_of_study=Biology,Medicine"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"year_to": "2020", "fields_of_study": "Biology,Medicine"}, got)

	f := domain.ParseDiscoveryFilters(got)
	assert.Equal(t, 2020, f.YearTo)
	assert.Equal(t, []string{"Biology", "Medicine"}, f.FieldsOfStudy)

	_, err = parseFilters([]string{"=1"})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a \n  b", 10))
	assert.Equal(t, "abcdefg...", truncate(strings.Repeat("abcdefghij", 3), 10))
}
