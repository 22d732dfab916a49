package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

// Key addresses one cached provider response. Digest is the hex SHA-256 of
// the provider, query kind and normalized query payload.
type Key struct {
	Source domain.SourceType
	Kind   domain.QueryKind
	Digest string
}

// NewKey derives a deterministic key. payload must be JSON-encodable; maps
// are encoded with sorted keys, so equal payloads always hash alike.
func NewKey(source domain.SourceType, kind domain.QueryKind, payload any) Key {
	raw, err := json.Marshal(struct {
		Source  domain.SourceType `json:"source"`
		Kind    domain.QueryKind  `json:"kind"`
		Payload any               `json:"payload"`
	}{source, kind, payload})
	if err != nil {
		// Unencodable payloads still need a stable key.
		raw = []byte(string(source) + "|" + string(kind) + "|" + err.Error())
	}
	sum := sha256.Sum256(raw)
	return Key{Source: source, Kind: kind, Digest: hex.EncodeToString(sum[:])}
}

// String renders the key as "source:kind:digest".
func (k Key) String() string {
	return string(k.Source) + ":" + string(k.Kind) + ":" + k.Digest
}

// NormalizeQuery lowercases s and collapses whitespace so that trivially
// different spellings of a query share a cache entry.
func NormalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeQueries applies NormalizeQuery to each element, dropping blanks.
func NormalizeQueries(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if n := NormalizeQuery(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
