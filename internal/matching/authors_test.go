package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple lowercase", input: "John Smith", expected: "john smith"},
		{name: "extra whitespace", input: "  John   Smith  ", expected: "john smith"},
		{name: "last comma first format", input: "SMITH, John", expected: "john smith"},
		{name: "apostrophe removed", input: "O'Brien", expected: "obrien"},
		{name: "periods split initials", input: "J.K. Rowling", expected: "j k rowling"},
		{name: "hyphens removed", input: "Mary-Jane Watson", expected: "maryjane watson"},
		{name: "diacritics folded", input: "José Müller", expected: "jose muller"},
		{name: "digits removed", input: "Smith 2nd", expected: "smith nd"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestAuthorsMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "initial against full first name", a: "Jane A. Doe", b: "J. Doe", want: true},
		{name: "different first names same initial", a: "Jane Doe", b: "John Doe", want: false},
		{name: "identical after normalization", a: "DOE, Jane", b: "jane doe", want: true},
		{name: "same first name extra middle", a: "Jane Doe", b: "Jane Q. Doe", want: true},
		{name: "different last names", a: "J. Doe", b: "J. Roe", want: false},
		{name: "last name only on one side", a: "Doe", b: "Jane Doe", want: false},
		{name: "both initials", a: "J. Doe", b: "J Doe", want: true},
		{name: "different initials", a: "A. Smith", b: "B. Smith", want: false},
		{name: "diacritics", a: "Zoë Ångström", b: "Z. Angstrom", want: true},
		{name: "empty", a: "", b: "J. Doe", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AuthorsMatch(tt.a, tt.b))
			assert.Equal(t, tt.want, AuthorsMatch(tt.b, tt.a), "match must be symmetric")
		})
	}
}

func TestAuthorMatchScore(t *testing.T) {
	t.Parallel()

	candidate := []string{"Alice Smith", "Robert Jones", "Carol White"}

	assert.Equal(t, 1.0, AuthorMatchScore([]string{"A. Smith", "R. Jones"}, candidate))
	assert.Equal(t, 0.5, AuthorMatchScore([]string{"A. Smith", "Z. Brown"}, candidate))
	assert.Equal(t, 0.0, AuthorMatchScore([]string{"Z. Brown"}, candidate))
	assert.Equal(t, 0.0, AuthorMatchScore(nil, candidate))
	assert.Equal(t, 0.0, AuthorMatchScore([]string{"A. Smith"}, nil))
}

func TestLastName(t *testing.T) {
	assert.Equal(t, "doe", LastName("Jane A. Doe"))
	assert.Equal(t, "doe", LastName("Doe, Jane"))
	assert.Equal(t, "", LastName(" "))
}
