// Package graph defines the RDF term model and the statement set that the
// conversion pipeline accumulates before serialization.
package graph

import "fmt"

// TermKind identifies RDF term types.
type TermKind uint8

const (
	// TermIRI is an IRI term.
	TermIRI TermKind = iota
	// TermBlankNode is an anonymous node scoped to one document.
	TermBlankNode
	// TermLiteral is a literal value, optionally typed or language-tagged.
	TermLiteral
)

// Term is a value that can appear in an RDF statement.
type Term interface {
	Kind() TermKind
	String() string
}

// IRI names a subject, predicate, object, or graph.
type IRI struct {
	Value string
}

// Kind returns TermIRI.
func (i IRI) Kind() TermKind { return TermIRI }

// String returns the N-Triples form of the IRI.
func (i IRI) String() string { return "<" + i.Value + ">" }

// BlankNode is an anonymous RDF resource.
type BlankNode struct {
	ID string
}

// Kind returns TermBlankNode.
func (b BlankNode) Kind() TermKind { return TermBlankNode }

// String returns the "_:" label form.
func (b BlankNode) String() string { return "_:" + b.ID }

// Literal is an RDF literal.
type Literal struct {
	Lexical  string
	Datatype IRI
	Lang     string
}

// Kind returns TermLiteral.
func (l Literal) Kind() TermKind { return TermLiteral }

// String returns a diagnostic form of the literal.
func (l Literal) String() string {
	if l.Lang != "" {
		return fmt.Sprintf("%q@%s", l.Lexical, l.Lang)
	}
	if l.Datatype.Value != "" {
		return fmt.Sprintf("%q^^<%s>", l.Lexical, l.Datatype.Value)
	}
	return fmt.Sprintf("%q", l.Lexical)
}

// Statement is one (subject, predicate, object) triple. The optional named
// graph for quad output is a property of the run, not of individual
// statements, and is applied at serialization time.
type Statement struct {
	S Term
	P IRI
	O Term
}

// RDFType is the rdf:type predicate.
var RDFType = IRI{Value: "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"}

// XSDString is the default column-rule datatype.
var XSDString = IRI{Value: "http://www.w3.org/2001/XMLSchema#string"}

// Sentinel is the placeholder IRI substituted for undeclared prefix
// references in rendered templates. Statements touching it are pruned
// before output.
var Sentinel = IRI{Value: "urn:rdfconv:undefined"}
