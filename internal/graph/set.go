package graph

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// statementOverhead approximates the per-statement serialization cost beyond
// the term text itself (whitespace, punctuation, map bookkeeping).
const statementOverhead = 16

// Set is an unordered, duplicate-free collection of statements. Union is
// commutative and idempotent, so merged output is independent of worker
// completion order.
//
// A Set is not safe for concurrent mutation; in the pipeline each row's Set
// is owned by one worker and merged into the accumulator by the coordinator
// alone.
type Set struct {
	stmts map[uint64]Statement
	bytes int64
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{stmts: make(map[uint64]Statement)}
}

// Add inserts a statement, reporting whether it was not already present.
func (s *Set) Add(st Statement) bool {
	k := key(st)
	if _, ok := s.stmts[k]; ok {
		return false
	}
	s.stmts[k] = st
	s.bytes += estimate(st)
	return true
}

// Union merges every statement of o into s.
func (s *Set) Union(o *Set) {
	if o == nil {
		return
	}
	for k, st := range o.stmts {
		if _, ok := s.stmts[k]; !ok {
			s.stmts[k] = st
			s.bytes += estimate(st)
		}
	}
}

// Len returns the number of distinct statements.
func (s *Set) Len() int { return len(s.stmts) }

// EstimatedBytes returns a heuristic byte-size estimate of the serialized
// set. It is used only for chunk-threshold checks and is deliberately cheap,
// tracked incrementally on Add/Union/Remove.
func (s *Set) EstimatedBytes() int64 { return s.bytes }

// Statements returns a snapshot of the set in unspecified order.
func (s *Set) Statements() []Statement {
	out := make([]Statement, 0, len(s.stmts))
	for _, st := range s.stmts {
		out = append(out, st)
	}
	return out
}

// RemoveWhere deletes every statement matching pred and returns how many
// were removed.
func (s *Set) RemoveWhere(pred func(Statement) bool) int {
	removed := 0
	for k, st := range s.stmts {
		if pred(st) {
			delete(s.stmts, k)
			s.bytes -= estimate(st)
			removed++
		}
	}
	return removed
}

// Reset empties the set, keeping the allocation for reuse between chunks.
func (s *Set) Reset() {
	clear(s.stmts)
	s.bytes = 0
}

// key derives the set key from the terms' kinds and values. The kind byte
// and \x1f separators keep distinct terms with equal text ("a" the literal
// vs <a> the IRI) from colliding.
func key(st Statement) uint64 {
	var b strings.Builder
	b.Grow(len(st.P.Value) + 32)
	writeTermKey(&b, st.S)
	b.WriteByte('\x1f')
	b.WriteString(st.P.Value)
	b.WriteByte('\x1f')
	writeTermKey(&b, st.O)
	return xxh3.HashString(b.String())
}

func writeTermKey(b *strings.Builder, t Term) {
	b.WriteByte(byte('0' + t.Kind()))
	switch v := t.(type) {
	case IRI:
		b.WriteString(v.Value)
	case BlankNode:
		b.WriteString(v.ID)
	case Literal:
		b.WriteString(v.Lexical)
		b.WriteByte('\x00')
		b.WriteString(v.Datatype.Value)
		b.WriteByte('\x00')
		b.WriteString(v.Lang)
	}
}

func estimate(st Statement) int64 {
	n := statementOverhead + len(st.P.Value)
	n += termLen(st.S)
	n += termLen(st.O)
	return int64(n)
}

func termLen(t Term) int {
	switch v := t.(type) {
	case IRI:
		return len(v.Value)
	case BlankNode:
		return len(v.ID)
	case Literal:
		return len(v.Lexical) + len(v.Datatype.Value) + len(v.Lang)
	}
	return 0
}
