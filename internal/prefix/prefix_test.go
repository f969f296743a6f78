package prefix

import (
	"strings"
	"testing"
)

func TestExpand(t *testing.T) {
	tbl := NewTable()
	tbl.Bind("ex", "http://example.org/")
	tbl.Bind("xsd", "http://www.w3.org/2001/XMLSchema#")

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ex:thing", "http://example.org/thing", true},
		{"xsd:string", "http://www.w3.org/2001/XMLSchema#string", true},
		{"unknown:thing", "", false},
		{"noColon", "", false},
		{"http://example.org/thing", "", false}, // already an IRI, not a CURIE
	}
	for _, tc := range tests {
		got, ok := tbl.Expand(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Expand(%q) = (%q, %v); want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCompact(t *testing.T) {
	tbl := NewTable()
	tbl.Bind("ex", "http://example.org/")
	tbl.Bind("exv", "http://example.org/vocab/")

	// Longest namespace wins.
	if got, ok := tbl.Compact("http://example.org/vocab/name"); !ok || got != "exv:name" {
		t.Errorf("Compact longest-match = (%q, %v); want (exv:name, true)", got, ok)
	}
	// Unsafe local names fall back to full IRIs.
	if _, ok := tbl.Compact("http://example.org/a/b"); ok {
		t.Error("Compact accepted a local name containing '/'")
	}
	if _, ok := tbl.Compact("http://other.org/x"); ok {
		t.Error("Compact matched an unbound namespace")
	}
	// Trailing dot is not a valid prefixed-name ending.
	if _, ok := tbl.Compact("http://example.org/name."); ok {
		t.Error("Compact accepted a local name ending in '.'")
	}
}

func TestFrontmatter(t *testing.T) {
	tbl := NewTable()
	tbl.Bind("ex", "http://example.org/")
	tbl.Bind("dct", "http://purl.org/dc/terms/")

	fm := tbl.Frontmatter()
	if !strings.Contains(fm, "@prefix ex: <http://example.org/> .\n") {
		t.Errorf("frontmatter missing ex declaration:\n%s", fm)
	}
	// Sorted by name: dct before ex.
	if strings.Index(fm, "dct:") > strings.Index(fm, "ex:") {
		t.Errorf("frontmatter not sorted:\n%s", fm)
	}
}

func TestBindOverride(t *testing.T) {
	tbl := NewTable()
	tbl.Bind("ex", "http://old.example.org/")
	tbl.Bind("ex", "http://example.org/")
	if got, _ := tbl.Lookup("ex"); got != "http://example.org/" {
		t.Errorf("later Bind did not override: %q", got)
	}
}
