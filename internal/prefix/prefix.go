// Package prefix implements the prefix table used for CURIE expansion and for
// prefix declarations in serialized output.
//
// A Table is built once by the configuration resolver and then shared,
// read-only, by every downstream component (row mapping, template rendering,
// serialization). It is never package-level state: callers pass the table by
// reference. Bind must not be called after resolution completes; with that
// contract the table needs no locking.
package prefix

import (
	"sort"
	"strings"
)

// Table maps short prefix names to absolute namespace IRIs.
type Table struct {
	byName map[string]string
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{byName: make(map[string]string)}
}

// Bind registers a prefix. A later Bind for the same name overrides the
// earlier one, mirroring import precedence in the resolver.
func (t *Table) Bind(name, iri string) {
	t.byName[name] = iri
}

// Lookup returns the namespace IRI bound to name.
func (t *Table) Lookup(name string) (string, bool) {
	iri, ok := t.byName[name]
	return iri, ok
}

// Len returns the number of bound prefixes.
func (t *Table) Len() int { return len(t.byName) }

// Names returns the bound prefix names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Expand resolves a CURIE ("ex:thing") against the table. It returns the
// expanded IRI and true, or ("", false) when the string is not a CURIE or
// its prefix is not bound. Strings that already carry a URI scheme separator
// ("://") are never treated as CURIEs.
func (t *Table) Expand(curie string) (string, bool) {
	if strings.Contains(curie, "://") {
		return "", false
	}
	name, local, ok := strings.Cut(curie, ":")
	if !ok {
		return "", false
	}
	ns, bound := t.byName[name]
	if !bound {
		return "", false
	}
	return ns + local, true
}

// Compact rewrites an absolute IRI as a CURIE when a bound namespace is a
// prefix of it and the remaining local part is a safe prefixed-name suffix.
// The longest matching namespace wins.
func (t *Table) Compact(iri string) (string, bool) {
	bestName, bestNS := "", ""
	for name, ns := range t.byName {
		if strings.HasPrefix(iri, ns) && len(ns) > len(bestNS) {
			bestName, bestNS = name, ns
		}
	}
	if bestNS == "" {
		return "", false
	}
	local := iri[len(bestNS):]
	if !safeLocalName(local) {
		return "", false
	}
	return bestName + ":" + local, true
}

// Frontmatter renders one @prefix directive per bound prefix, sorted by
// name. The same text is prepended to statement templates before rendering
// and written at the top of serialized chunks.
func (t *Table) Frontmatter() string {
	var b strings.Builder
	for _, name := range t.Names() {
		b.WriteString("@prefix ")
		b.WriteString(name)
		b.WriteString(": <")
		b.WriteString(t.byName[name])
		b.WriteString("> .\n")
	}
	return b.String()
}

// Snapshot returns a copy of the bindings as a plain map, for components
// that need map access (e.g. the Turtle parser).
func (t *Table) Snapshot() map[string]string {
	m := make(map[string]string, len(t.byName))
	for k, v := range t.byName {
		m[k] = v
	}
	return m
}

// safeLocalName reports whether local can appear after "prefix:" in Turtle
// without escaping. Deliberately conservative: anything unusual is written
// as a full IRI instead.
func safeLocalName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-':
		case r == '.':
			// a dot must not end the local name
			if i == len(s)-1 {
				return false
			}
		default:
			return false
		}
	}
	// a leading digit or dash is fine for PN_LOCAL, a leading dot is not
	return s[0] != '.'
}
