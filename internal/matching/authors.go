// Package matching provides the fuzzy string comparisons used to score
// provider candidates against a partially known reference: normalized edit
// distance between titles and author-name equivalence.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName normalizes an author name for comparison:
//   - Folds diacritics ("Müller" becomes "muller")
//   - Converts to lowercase
//   - Reorders "Last, First" to "First Last"
//   - Removes every non-letter character (periods, apostrophes, hyphens, digits)
//   - Collapses runs of whitespace to a single space
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(foldDiacritics(name))

	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	prevSpace := false

	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '.':
			// "J.Doe" must still split into two tokens.
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

// AuthorsMatch reports whether two author strings name the same person.
// Names match when their normalized forms are equal, or when the last names
// are equal and the first given names agree: either identical, or one is a
// bare initial matching the other's first letter.
//
//	AuthorsMatch("Jane A. Doe", "J. Doe") == true
//	AuthorsMatch("Jane Doe", "John Doe")  == false
func AuthorsMatch(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}

	partsA := strings.Fields(na)
	partsB := strings.Fields(nb)
	if partsA[len(partsA)-1] != partsB[len(partsB)-1] {
		return false
	}

	firstA := partsA[:len(partsA)-1]
	firstB := partsB[:len(partsB)-1]
	if len(firstA) == 0 || len(firstB) == 0 {
		return false
	}

	return firstA[0] == firstB[0] || isInitialMatch(firstA[0], firstB[0])
}

// AuthorMatchScore returns the fraction of search authors that match at least
// one candidate author. It is 0 when there are no search authors.
func AuthorMatchScore(searchAuthors, candidateAuthors []string) float64 {
	total := 0
	matched := 0
	for _, s := range searchAuthors {
		if strings.TrimSpace(s) == "" {
			continue
		}
		total++
		for _, c := range candidateAuthors {
			if AuthorsMatch(s, c) {
				matched++
				break
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// LastName returns the normalized family name, the final token of the
// normalized form.
func LastName(name string) string {
	parts := strings.Fields(NormalizeName(name))
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// isInitialMatch returns true if one token is a single-character initial that
// matches the first character of the other token.
func isInitialMatch(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 1 && len(rb) > 1 && ra[0] == rb[0] {
		return true
	}
	if len(rb) == 1 && len(ra) > 1 && rb[0] == ra[0] {
		return true
	}
	return false
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
