package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/observability"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

type listingFunc func(ctx context.Context, key string, limit int) ([]domain.Candidate, error)

// paperCitations handles GET /api/v1/papers/{paperID}/citations.
func (s *Server) paperCitations(w http.ResponseWriter, r *http.Request) {
	s.serveGraphListing(w, r, "citations", func(g papersources.CitationGraph) listingFunc { return g.Citations })
}

// paperReferences handles GET /api/v1/papers/{paperID}/references.
func (s *Server) paperReferences(w http.ResponseWriter, r *http.Request) {
	s.serveGraphListing(w, r, "references", func(g papersources.CitationGraph) listingFunc { return g.References })
}

// paperRelated handles GET /api/v1/papers/{paperID}/related.
func (s *Server) paperRelated(w http.ResponseWriter, r *http.Request) {
	s.serveGraphListing(w, r, "related", func(g papersources.CitationGraph) listingFunc { return g.Related })
}

// arxivRecent handles GET /api/v1/arxiv/categories/{category}/recent.
func (s *Server) arxivRecent(w http.ResponseWriter, r *http.Request) {
	s.serveCategoryListing(w, r, "recent", func(l papersources.CategoryLister) listingFunc { return l.RecentByCategory })
}

// arxivCategoryPapers handles GET /api/v1/arxiv/categories/{category}/papers.
func (s *Server) arxivCategoryPapers(w http.ResponseWriter, r *http.Request) {
	s.serveCategoryListing(w, r, "category", func(l papersources.CategoryLister) listingFunc { return l.SearchByCategory })
}

func (s *Server) serveGraphListing(w http.ResponseWriter, r *http.Request, op string, pick func(papersources.CitationGraph) listingFunc) {
	graph, ok := lookup[papersources.CitationGraph](s.providers, domain.SourceTypeSemanticScholar)
	if !ok {
		writeError(w, http.StatusNotFound, "citation graph provider not enabled")
		return
	}
	s.serveListing(w, r, domain.SourceTypeSemanticScholar, op, strings.TrimSpace(chi.URLParam(r, "paperID")), pick(graph))
}

func (s *Server) serveCategoryListing(w http.ResponseWriter, r *http.Request, op string, pick func(papersources.CategoryLister) listingFunc) {
	lister, ok := lookup[papersources.CategoryLister](s.providers, domain.SourceTypeArXiv)
	if !ok {
		writeError(w, http.StatusNotFound, "arxiv provider not enabled")
		return
	}
	s.serveListing(w, r, domain.SourceTypeArXiv, op, strings.TrimSpace(chi.URLParam(r, "category")), pick(lister))
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, source domain.SourceType, op, key string, list listingFunc) {
	if key == "" {
		writeDomainError(w, domain.NewValidationError("path", "identifier is required"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ctx := observability.WithOperation(r.Context(), observability.OperationListing)
	if s.listingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.listingTimeout)
		defer cancel()
	}

	candidates, err := list(ctx, key, limit)
	if err != nil {
		logger := observability.FromContext(ctx, s.logger)
		logger.Warn().
			Err(err).
			Str("source", string(source)).
			Str("operation", op).
			Str("key", key).
			Msg("listing failed")
		writeDomainError(w, fmt.Errorf("%s %s: %w", source, op, err))
		return
	}

	writeJSON(w, http.StatusOK, newCandidatesResponse(string(source), candidates, includeRaw(r)))
}

// lookup returns the registered, enabled adapter for source if it
// implements T.
func lookup[T any](providers Providers, source domain.SourceType) (T, bool) {
	var zero T
	a, ok := providers.Get(source)
	if !ok || !a.IsEnabled() {
		return zero, false
	}
	t, ok := a.(T)
	return t, ok
}
