package graph

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidIRI marks a malformed or non-absolute IRI encountered during
// subject resolution or column IRI minting. It is fatal for the whole run.
var ErrInvalidIRI = errors.New("invalid IRI")

// ValidateIRI checks that iri is a syntactically plausible absolute IRI:
// parseable, carrying a scheme, and free of characters that must be
// percent-encoded. It is a syntactic gate, not full RFC 3987 validation.
func ValidateIRI(iri string) error {
	if iri == "" {
		return fmt.Errorf("%w: empty IRI", ErrInvalidIRI)
	}
	u, err := url.Parse(iri)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidIRI, iri, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: %q is not absolute (missing scheme)", ErrInvalidIRI, iri)
	}
	if first := u.Scheme[0]; !(first >= 'a' && first <= 'z' || first >= 'A' && first <= 'Z') {
		return fmt.Errorf("%w: %q: scheme must start with a letter", ErrInvalidIRI, iri)
	}
	if i := strings.IndexAny(iri, "<>\"{}|\\^` \t\n\r"); i >= 0 {
		return fmt.Errorf("%w: %q: character %q at position %d must be percent-encoded",
			ErrInvalidIRI, iri, iri[i], i)
	}
	return nil
}

// TrimAngles strips one pair of surrounding angle brackets, if present.
func TrimAngles(s string) string {
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}
