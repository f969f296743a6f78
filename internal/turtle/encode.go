// Package turtle serializes statement sets as Turtle or TriG and parses the
// Turtle subset produced by statement templates.
package turtle

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"rdfconv/internal/graph"
	"rdfconv/internal/prefix"
)

// xsdString literals are written in their plain quoted form.
const xsdString = "http://www.w3.org/2001/XMLSchema#string"

// WriteTurtle serializes set as Turtle: prefix frontmatter followed by one
// statement per line, sorted, so identical sets always produce identical
// bytes.
func WriteTurtle(w io.Writer, set *graph.Set, prefixes *prefix.Table) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(prefixes.Frontmatter()); err != nil {
		return err
	}
	for _, line := range renderLines(set, prefixes) {
		if _, err := bw.WriteString(line + " .\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteTriG serializes set as a single named graph in TriG.
func WriteTriG(w io.Writer, set *graph.Set, graphIRI graph.IRI, prefixes *prefix.Table) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(prefixes.Frontmatter()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "%s {\n", renderIRI(graphIRI, prefixes)); err != nil {
		return err
	}
	for _, line := range renderLines(set, prefixes) {
		if _, err := bw.WriteString("    " + line + " .\n"); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("}\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func renderLines(set *graph.Set, prefixes *prefix.Table) []string {
	stmts := set.Statements()
	lines := make([]string, len(stmts))
	for i, st := range stmts {
		lines[i] = RenderTerm(st.S, prefixes) + " " + renderIRI(st.P, prefixes) + " " + RenderTerm(st.O, prefixes)
	}
	sort.Strings(lines)
	return lines
}

// RenderTerm returns the Turtle form of a term, compacting IRIs against the
// prefix table where possible.
func RenderTerm(t graph.Term, prefixes *prefix.Table) string {
	switch v := t.(type) {
	case graph.IRI:
		return renderIRI(v, prefixes)
	case graph.BlankNode:
		return "_:" + v.ID
	case graph.Literal:
		return renderLiteral(v, prefixes)
	}
	return ""
}

func renderIRI(i graph.IRI, prefixes *prefix.Table) string {
	if prefixes != nil {
		if curie, ok := prefixes.Compact(i.Value); ok {
			return curie
		}
	}
	return "<" + i.Value + ">"
}

func renderLiteral(l graph.Literal, prefixes *prefix.Table) string {
	quoted := `"` + EscapeString(l.Lexical) + `"`
	if l.Lang != "" {
		return quoted + "@" + l.Lang
	}
	if l.Datatype.Value != "" && l.Datatype.Value != xsdString {
		return quoted + "^^" + renderIRI(l.Datatype, prefixes)
	}
	return quoted
}

// EscapeString escapes the characters that would break a Turtle quoted
// string: backslash, double quote, and the ASCII control characters.
func EscapeString(s string) string {
	if !strings.ContainsAny(s, "\\\"\n\r\t") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
