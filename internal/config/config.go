// Package config defines the canonical mapping-specification model for the
// tabular→RDF converter and turns one or more YAML fragments into a single
// frozen, validated specification.
//
// Design goals:
//
//  1. Explicitness: the specification is a typed struct with explicit
//     optional fields, not a string-keyed map consulted ad hoc.
//  2. Whole-file diagnostics: validation returns every finding at once as a
//     list of Issues rather than stopping at the first.
//  3. Frozen result: after Resolve returns, nothing mutates the Spec or the
//     prefix table; all downstream components share them read-only.
package config

// Spec is the mapping specification as written in YAML. Field values are raw
// until Resolve rewrites CURIEs/IRIs and resolves paths.
type Spec struct {
	// Imports lists specification fragments merged beneath this one. Later
	// imports override earlier ones; the importing fragment always merges
	// last and therefore wins.
	Imports []string `yaml:"import"`

	// Prefixes binds short names to namespace IRIs, used for CURIE
	// expansion in the spec itself, inside templates, and as prefix
	// declarations in serialized output.
	Prefixes map[string]string `yaml:"prefixes"`

	// Infile is the delimited input file, resolved against the root
	// fragment's directory. Required on the merged result.
	Infile string `yaml:"infile"`

	// Encoding names the input character encoding (IANA name, e.g.
	// "utf-8", "windows-1250"). Defaults to UTF-8.
	Encoding string `yaml:"encoding"`

	// Delimiter is the field separator, first rune used. Defaults to ",".
	Delimiter string `yaml:"delimiter"`

	// Outdir receives output chunks and the run log. Defaults to the
	// input file's directory.
	Outdir string `yaml:"outdir"`

	// Graph, when set, names the graph for quad output (TriG). Empty
	// means plain triples (Turtle).
	Graph string `yaml:"graph"`

	// Namespace, when set, is prepended to the identifier cell to mint
	// each row's subject IRI. When empty, identifier cells must carry
	// absolute IRIs themselves.
	Namespace string `yaml:"namespace"`

	// Identifier names the column whose cell identifies the row subject.
	// Required whenever Columns is non-empty.
	Identifier string `yaml:"identifier"`

	// Types lists rdf:type IRIs asserted for every row subject.
	Types []string `yaml:"types"`

	// Columns are the structured per-column conversion rules.
	Columns []ColumnRule `yaml:"columns"`

	// Template is a free-form statement template rendered once per row.
	// It is deliberately exempt from CURIE/IRI rewriting: its placeholder
	// syntax must survive untouched until render time.
	Template string `yaml:"template"`

	// Functions is the path to a custom-function module (a Go plugin
	// exposing a Funcs symbol) made callable inside the template.
	Functions string `yaml:"functions"`

	// MaxGraphSizeMb caps the estimated in-memory size of the statement
	// accumulator; crossing it flushes a numbered chunk. Zero disables
	// chunking.
	MaxGraphSizeMb int `yaml:"maxGraphSizeMb"`

	// SizeCheckFrequency is how many merged rows pass between size
	// checks. Defaults to 1000.
	SizeCheckFrequency int `yaml:"sizeCheckFrequency"`

	// OnValueError selects the policy for per-value datatype and date
	// conversion failures: "skip" logs and drops the single value,
	// "fail" aborts the run. Subject and column IRI minting failures
	// always abort; identity must be correct, literals are best-effort.
	OnValueError string `yaml:"onValueError"`

	// Workers sizes the row worker pool. Zero means available
	// parallelism minus one.
	Workers int `yaml:"workers"`
}

// ColumnRule maps one input column to RDF statements. Rules are pure and
// read-only after resolution.
type ColumnRule struct {
	// Column names the input column; it must exist in the header.
	Column string `yaml:"column"`

	// Predicate is the statement predicate (IRI or CURIE).
	Predicate string `yaml:"predicate"`

	// Datatype is the literal datatype. Defaults to xsd:string.
	Datatype string `yaml:"datatype"`

	// Datestr, when set, is a strptime-style pattern the cell value is
	// parsed with before being reformatted canonically.
	Datestr string `yaml:"datestr"`

	// Separator splits the cell into multiple values. Interpreted as a
	// regular expression when Regex is true, else as a literal string.
	Separator string `yaml:"separator"`

	// Regex marks Separator as a regular expression.
	Regex bool `yaml:"regex"`

	// AsIRI mints object IRIs instead of literals.
	AsIRI bool `yaml:"as_iri"`

	// Namespace prefixes minted IRIs. Without it, values must already be
	// absolute IRIs.
	Namespace string `yaml:"namespace"`

	// AsUUID replaces each value with a deterministic name-based UUID
	// before minting, stable across runs and workers.
	AsUUID bool `yaml:"as_uuid"`

	// IgnoreCase lower-cases values before minting.
	IgnoreCase bool `yaml:"ignore_case"`

	// Label, when set, additionally emits (iri, Label, literal(value)).
	Label string `yaml:"label"`

	// Type, when set, additionally emits (iri, rdf:type, Type) for every
	// minted IRI.
	Type string `yaml:"type"`
}

// Policy values for Spec.OnValueError.
const (
	OnValueErrorSkip = "skip"
	OnValueErrorFail = "fail"
)

// applyDefaults fills the documented defaults on a merged spec.
func applyDefaults(s *Spec) {
	if s.Encoding == "" {
		s.Encoding = "utf-8"
	}
	if s.Delimiter == "" {
		s.Delimiter = ","
	}
	if s.SizeCheckFrequency == 0 {
		s.SizeCheckFrequency = 1000
	}
	if s.OnValueError == "" {
		s.OnValueError = OnValueErrorSkip
	}
	for i := range s.Columns {
		if s.Columns[i].Datatype == "" {
			s.Columns[i].Datatype = "http://www.w3.org/2001/XMLSchema#string"
		}
	}
}
