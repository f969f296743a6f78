package graph

import (
	"errors"
	"testing"
)

func stmt(s, p, o string) Statement {
	return Statement{S: IRI{s}, P: IRI{Value: p}, O: Literal{Lexical: o, Datatype: XSDString}}
}

func TestSetDeduplicates(t *testing.T) {
	s := NewSet()
	if !s.Add(stmt("http://x/s", "http://x/p", "v")) {
		t.Fatal("first Add reported duplicate")
	}
	if s.Add(stmt("http://x/s", "http://x/p", "v")) {
		t.Fatal("second Add of identical statement not deduplicated")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d; want 1", s.Len())
	}
}

func TestSetKeySeparatesTermKinds(t *testing.T) {
	s := NewSet()
	s.Add(Statement{S: IRI{"http://x/s"}, P: IRI{Value: "http://x/p"}, O: IRI{"http://x/o"}})
	s.Add(Statement{S: IRI{"http://x/s"}, P: IRI{Value: "http://x/p"}, O: Literal{Lexical: "http://x/o"}})
	if s.Len() != 2 {
		t.Fatalf("IRI object and literal object collapsed; Len = %d", s.Len())
	}
}

func TestUnionIdempotent(t *testing.T) {
	a, b := NewSet(), NewSet()
	a.Add(stmt("http://x/1", "http://x/p", "a"))
	b.Add(stmt("http://x/1", "http://x/p", "a"))
	b.Add(stmt("http://x/2", "http://x/p", "b"))

	a.Union(b)
	a.Union(b)
	if a.Len() != 2 {
		t.Fatalf("union not idempotent; Len = %d, want 2", a.Len())
	}
}

func TestEstimatedBytesTracksMutation(t *testing.T) {
	s := NewSet()
	if s.EstimatedBytes() != 0 {
		t.Fatalf("empty set estimate = %d", s.EstimatedBytes())
	}
	s.Add(stmt("http://x/s", "http://x/p", "value"))
	grown := s.EstimatedBytes()
	if grown <= 0 {
		t.Fatalf("estimate did not grow on Add: %d", grown)
	}
	s.RemoveWhere(func(Statement) bool { return true })
	if s.EstimatedBytes() != 0 {
		t.Fatalf("estimate after removing everything = %d; want 0", s.EstimatedBytes())
	}
}

func TestRemoveWhere(t *testing.T) {
	s := NewSet()
	s.Add(stmt("http://x/1", "http://x/p", ""))
	s.Add(stmt("http://x/2", "http://x/p", "keep"))
	n := s.RemoveWhere(func(st Statement) bool {
		l, ok := st.O.(Literal)
		return ok && l.Lexical == ""
	})
	if n != 1 || s.Len() != 1 {
		t.Fatalf("removed=%d len=%d; want 1 and 1", n, s.Len())
	}
}

func TestValidateIRI(t *testing.T) {
	valid := []string{
		"http://example.org/thing",
		"https://example.org/a?b=c#d",
		"urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	}
	for _, iri := range valid {
		if err := ValidateIRI(iri); err != nil {
			t.Errorf("ValidateIRI(%q) = %v; want nil", iri, err)
		}
	}

	invalid := []string{
		"",
		"no-scheme/path",
		"http://example.org/with space",
		"http://example.org/<angle>",
		"1http://example.org/",
	}
	for _, iri := range invalid {
		err := ValidateIRI(iri)
		if err == nil {
			t.Errorf("ValidateIRI(%q) = nil; want error", iri)
			continue
		}
		if !errors.Is(err, ErrInvalidIRI) {
			t.Errorf("ValidateIRI(%q) error not wrapped in ErrInvalidIRI: %v", iri, err)
		}
	}
}

func TestTrimAngles(t *testing.T) {
	if got := TrimAngles("<http://x/>"); got != "http://x/" {
		t.Errorf("TrimAngles = %q", got)
	}
	if got := TrimAngles("http://x/"); got != "http://x/" {
		t.Errorf("TrimAngles without brackets = %q", got)
	}
	if got := TrimAngles("<"); got != "<" {
		t.Errorf("TrimAngles single bracket = %q", got)
	}
}
