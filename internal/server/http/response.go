package httpserver

import (
	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

type candidatesResponse struct {
	Provider   string             `json:"provider,omitempty"`
	Candidates []domain.Candidate `json:"candidates"`
	Count      int                `json:"count"`
}

type providersResponse struct {
	Providers []papersources.Capabilities `json:"providers"`
	Count     int                         `json:"count"`
}

// newCandidatesResponse copies cs, dropping provider payloads unless
// withRaw is set.
func newCandidatesResponse(provider string, cs []domain.Candidate, withRaw bool) candidatesResponse {
	out := make([]domain.Candidate, len(cs))
	for i, c := range cs {
		if !withRaw {
			c.RawPayload = nil
		}
		out[i] = c
	}
	return candidatesResponse{
		Provider:   provider,
		Candidates: out,
		Count:      len(out),
	}
}
