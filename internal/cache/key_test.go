package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

func TestNewKey(t *testing.T) {
	payload := map[string]any{"title": "deep learning", "authors": []string{"a smith"}}

	a := NewKey(domain.SourceTypeCrossRef, domain.QueryKindTitleAuthor, payload)
	b := NewKey(domain.SourceTypeCrossRef, domain.QueryKindTitleAuthor, map[string]any{"authors": []string{"a smith"}, "title": "deep learning"})

	assert.Equal(t, a, b)
	assert.Len(t, a.Digest, 64)
	assert.NotEqual(t, a, NewKey(domain.SourceTypeOpenAlex, domain.QueryKindTitleAuthor, payload))
	assert.NotEqual(t, a, NewKey(domain.SourceTypeCrossRef, domain.QueryKindTitle, payload))
	assert.Equal(t, "crossref:title_author:"+a.Digest, a.String())
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "deep learning for x", NormalizeQuery("  Deep   Learning\tfor X "))
	assert.Equal(t, []string{"a smith", "b jones"}, NormalizeQueries([]string{"A  Smith", " ", "B Jones"}))
}

func TestPolicy_TTL(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 86400*time.Second, p.TTL(domain.QueryKindID))
	assert.Equal(t, 3600*time.Second, p.TTL(domain.QueryKindTitle))
	assert.Equal(t, 3600*time.Second, p.TTL(domain.QueryKindTitleAuthor))
	assert.Equal(t, 3600*time.Second, p.TTL(domain.QueryKindAuthorYear))
	assert.Equal(t, 3600*time.Second, p.TTL(domain.QueryKindTopic))
	assert.Equal(t, 1800*time.Second, p.TTL(domain.QueryKindCategory))
	assert.Equal(t, 1800*time.Second, p.TTL(domain.QueryKindRecent))
	assert.Equal(t, 1800*time.Second, p.TTL(domain.QueryKindRelated))

	custom := Policy{Search: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, custom.TTL(domain.QueryKindTitle))
	assert.Equal(t, IdentifierTTL, custom.TTL(domain.QueryKindID))
}
