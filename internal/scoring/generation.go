package scoring

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

const (
	topicWeight    = 0.4
	citationWeight = 0.3
	recencyWeight  = 0.2
	abstractWeight = 0.1

	minTopicWordLen     = 3
	citationCap         = 100
	recencyHorizonYears = 20
	fullAbstractLen     = 1000
)

// Generation scores a candidate for topic discovery:
//
//	0.4 * topic-word overlap with title and abstract
//	0.3 * min(citations, 100) / 100
//	0.2 * max(0, 1 - yearsSincePublication/20)
//	0.1 * min(1, abstractLength/1000)
//
// now anchors the recency term.
func Generation(c domain.Candidate, topic string, now time.Time) float64 {
	score := topicWeight * TopicOverlap(topic, c.Title+" "+c.Abstract)

	citations := min(max(c.CitationCount, 0), citationCap)
	score += citationWeight * float64(citations) / citationCap

	if c.Year > 0 {
		yearsSince := max(now.Year()-c.Year, 0)
		score += recencyWeight * math.Max(0, 1-float64(yearsSince)/recencyHorizonYears)
	}

	abstractLen := utf8.RuneCountInString(strings.TrimSpace(c.Abstract))
	score += abstractWeight * math.Min(1, float64(abstractLen)/fullAbstractLen)

	return score
}

// TopicOverlap returns the fraction of topic words (three characters or
// longer) that occur in text. A topic word occurs when it is a substring of a
// text word or a text word is a substring of it.
func TopicOverlap(topic, text string) float64 {
	topicWords := uniqueWords(topic)
	if len(topicWords) == 0 {
		return 0
	}
	textWords := uniqueWords(text)

	matched := 0
	for _, tw := range topicWords {
		for _, w := range textWords {
			if strings.Contains(w, tw) || strings.Contains(tw, w) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(topicWords))
}

// uniqueWords lowercases s and splits it on anything that is not a letter or
// digit, keeping distinct words of at least minTopicWordLen runes.
func uniqueWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTopicWordLen {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		words = append(words, f)
	}
	return words
}
