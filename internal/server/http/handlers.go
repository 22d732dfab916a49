package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/observability"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

// Request limits.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	defaultListLimit   = 20
	maxListLimit       = 100
)

// resolveRequest is the JSON request body for reference resolution. Provider
// restricts resolution to one provider; empty means all enabled providers.
type resolveRequest struct {
	DOI      string   `json:"doi" validate:"max=512"`
	PubMedID string   `json:"pubmed_id" validate:"max=32"`
	ArXivID  string   `json:"arxiv_id" validate:"max=64"`
	Title    string   `json:"title" validate:"max=2000"`
	Authors  []string `json:"authors" validate:"max=100,dive,max=512"`
	Year     int      `json:"year" validate:"omitempty,gte=1000,lte=9999"`
	Provider string   `json:"provider" validate:"max=64"`
}

func (r resolveRequest) reference() domain.ParsedReference {
	return domain.ParsedReference{
		DOI:      strings.TrimSpace(r.DOI),
		PubMedID: strings.TrimSpace(r.PubMedID),
		ArXivID:  strings.TrimSpace(r.ArXivID),
		Title:    strings.TrimSpace(r.Title),
		Authors:  r.Authors,
		Year:     r.Year,
	}
}

// discoverRequest is the JSON request body for topic discovery.
type discoverRequest struct {
	Topic    string         `json:"topic" validate:"required,max=1000"`
	Limit    int            `json:"limit" validate:"gte=0,lte=100"`
	Provider string         `json:"provider" validate:"required,max=64"`
	Filters  map[string]any `json:"filters"`
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// resolveReference handles POST /api/v1/references/resolve.
func (s *Server) resolveReference(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	ref := req.reference()

	var (
		candidates []domain.Candidate
		provider   string
	)
	if strings.TrimSpace(req.Provider) == "" {
		candidates = s.resolver.Resolve(ctx, ref)
	} else {
		source, err := domain.ParseSourceType(req.Provider)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		candidates, err = s.resolver.ResolveWith(ctx, source, ref)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		provider = string(source)
	}

	logger := observability.FromContext(ctx, s.logger)
	logger.Debug().
		Str("provider", provider).
		Int("candidates", len(candidates)).
		Msg("reference resolved")

	writeJSON(w, http.StatusOK, newCandidatesResponse(provider, candidates, includeRaw(r)))
}

// discoverTopic handles POST /api/v1/topics/discover.
func (s *Server) discoverTopic(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	source, err := domain.ParseSourceType(req.Provider)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	candidates, err := s.resolver.Discover(r.Context(), source, topic, req.Limit, domain.ParseDiscoveryFilters(req.Filters))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newCandidatesResponse(string(source), candidates, includeRaw(r)))
}

// listProviders handles GET /api/v1/providers.
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	adapters := s.providers.All()
	resp := providersResponse{Providers: make([]papersources.Capabilities, 0, len(adapters))}
	for _, a := range adapters {
		resp.Providers = append(resp.Providers, papersources.Describe(a))
	}
	resp.Count = len(resp.Providers)
	writeJSON(w, http.StatusOK, resp)
}

// decodeAndValidate reads a bounded JSON body into dst and validates it. It
// writes the error response and returns false on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage describes the first failed constraint.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid input"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// writeDomainError maps domain errors to HTTP status codes. Internal detail
// is never echoed for unexpected errors.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, nf.Error())
		} else {
			writeError(w, http.StatusNotFound, "resource not found")
		}
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrUnsupportedQuery):
		writeError(w, http.StatusUnprocessableEntity, "provider does not support this query")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrParseFailure):
		writeError(w, http.StatusBadGateway, "provider unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "provider timed out")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseLimit reads the limit query parameter, defaulting and clamping it.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, domain.NewValidationError("limit", "must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

func includeRaw(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("include_raw"))
	return v
}
