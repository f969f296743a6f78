// Package mapper converts one input row into RDF statements under the
// structured column rules of a resolved mapping specification.
package mapper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rdfconv/internal/config"
	"rdfconv/internal/graph"
	"rdfconv/internal/source"
)

// canonicalTimeLayout is the output form every date-parsed value is
// reformatted to.
const canonicalTimeLayout = "2006-01-02T15:04:05"

// Rules is the compiled, header-bound form of a specification's column
// rules. Compile once per run; MapRow is safe for concurrent use because
// Rules is read-only afterwards.
type Rules struct {
	idIndex   int
	namespace string
	types     []graph.IRI
	cols      []compiledRule
	failFast  bool

	header   []string
	template string
}

type compiledRule struct {
	name      string
	index     int
	predicate graph.IRI
	datatype  graph.IRI

	split func(string) []string

	layout string

	asIRI      bool
	namespace  string
	asUUID     bool
	ignoreCase bool
	label      string
	typ        string
}

// Compile binds the resolved specification's column rules to the input
// header. A rule naming a column absent from the header is fatal here,
// before any row is read.
func Compile(res *config.Resolved, header []string) (*Rules, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[h] = i
	}

	r := &Rules{
		idIndex:   -1,
		namespace: res.Spec.Namespace,
		failFast:  res.Spec.OnValueError == config.OnValueErrorFail,
		header:    header,
		template:  res.Spec.Template,
	}
	if res.Spec.Identifier != "" {
		ix, ok := byName[res.Spec.Identifier]
		if !ok {
			return nil, fmt.Errorf("identifier column %q not found in header", res.Spec.Identifier)
		}
		r.idIndex = ix
	}
	for _, t := range res.Spec.Types {
		if err := graph.ValidateIRI(t); err != nil {
			return nil, fmt.Errorf("type %q: %w", t, err)
		}
		r.types = append(r.types, graph.IRI{Value: t})
	}

	for i, col := range res.Spec.Columns {
		ix, ok := byName[col.Column]
		if !ok {
			return nil, fmt.Errorf("columns[%d]: column %q not found in header", i, col.Column)
		}
		cr := compiledRule{
			name:       col.Column,
			index:      ix,
			predicate:  graph.IRI{Value: col.Predicate},
			datatype:   graph.IRI{Value: col.Datatype},
			asIRI:      col.AsIRI,
			namespace:  col.Namespace,
			asUUID:     col.AsUUID,
			ignoreCase: col.IgnoreCase,
			label:      col.Label,
			typ:        col.Type,
		}
		if col.Separator != "" {
			if col.Regex {
				re, err := regexp.Compile(col.Separator)
				if err != nil {
					return nil, fmt.Errorf("columns[%d]: separator: %w", i, err)
				}
				cr.split = func(s string) []string { return re.Split(s, -1) }
			} else {
				sep := col.Separator
				cr.split = func(s string) []string { return strings.Split(s, sep) }
			}
		}
		if col.Datestr != "" {
			layout, err := translateDatePattern(col.Datestr)
			if err != nil {
				return nil, fmt.Errorf("columns[%d]: datestr: %w", i, err)
			}
			cr.layout = layout
		}
		r.cols = append(r.cols, cr)
	}
	return r, nil
}

// MapRow converts one row. IRI minting failures are returned as errors and
// abort the run; per-value datatype and date failures go to onErr and are
// dropped, unless the onValueError policy is "fail", in which case they too
// are returned.
//
// A row whose identifier cell is empty yields an empty set.
func (r *Rules) MapRow(row source.Row, onErr func(line int, err error)) (*graph.Set, error) {
	set := graph.NewSet()

	if r.EmptyIdentifier(row) || r.idIndex < 0 {
		return set, nil
	}
	id := strings.TrimSpace(row.Cells[r.idIndex])

	subject, err := r.mintSubject(id)
	if err != nil {
		return nil, fmt.Errorf("line %d: subject: %w", row.Line, err)
	}
	for _, t := range r.types {
		set.Add(graph.Statement{S: subject, P: graph.RDFType, O: t})
	}

	for _, col := range r.cols {
		if col.index >= len(row.Cells) {
			continue
		}
		for _, value := range col.values(row.Cells[col.index]) {
			if err := r.applyRule(set, subject, col, value, row.Line, onErr); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}

// values splits a non-empty cell into trimmed candidate values, dropping
// empty segments.
func (c compiledRule) values(cell string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	if c.split == nil {
		return []string{cell}
	}
	parts := c.split(cell)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EmptyIdentifier reports whether an identifier column is configured but
// the row's cell for it is blank. Such a row mints no subject, so neither
// the column rules nor the template produce anything for it.
func (r *Rules) EmptyIdentifier(row source.Row) bool {
	if r.idIndex < 0 {
		return false
	}
	if r.idIndex >= len(row.Cells) {
		return true
	}
	return strings.TrimSpace(row.Cells[r.idIndex]) == ""
}

func (r *Rules) mintSubject(id string) (graph.IRI, error) {
	if r.namespace != "" {
		return graph.IRI{Value: r.namespace + id}, nil
	}
	raw := graph.TrimAngles(id)
	if err := graph.ValidateIRI(raw); err != nil {
		return graph.IRI{}, fmt.Errorf("identifier %q with no namespace configured: %w", id, err)
	}
	return graph.IRI{Value: raw}, nil
}

func (r *Rules) applyRule(set *graph.Set, subject graph.IRI, col compiledRule, value string, line int, onErr func(int, error)) error {
	if col.asIRI {
		obj, err := col.mintObject(value)
		if err != nil {
			return fmt.Errorf("line %d: column %q: %w", line, col.name, err)
		}
		set.Add(graph.Statement{S: subject, P: col.predicate, O: obj})
		if col.label != "" {
			set.Add(graph.Statement{
				S: obj,
				P: graph.IRI{Value: col.label},
				O: graph.Literal{Lexical: value, Datatype: col.datatype},
			})
		}
		if col.typ != "" {
			set.Add(graph.Statement{S: obj, P: graph.RDFType, O: graph.IRI{Value: col.typ}})
		}
		return nil
	}

	if col.layout != "" {
		t, err := time.Parse(col.layout, value)
		if err != nil {
			return r.valueError(line, onErr, fmt.Errorf("column %q: date %q does not match pattern: %w", col.name, value, err))
		}
		value = t.Format(canonicalTimeLayout)
	}
	if err := checkLexical(value, col.datatype.Value); err != nil {
		return r.valueError(line, onErr, fmt.Errorf("column %q: %w", col.name, err))
	}
	set.Add(graph.Statement{
		S: subject,
		P: col.predicate,
		O: graph.Literal{Lexical: value, Datatype: col.datatype},
	})
	return nil
}

// valueError routes a per-value conversion failure according to the
// onValueError policy: dropped with a log line, or fatal.
func (r *Rules) valueError(line int, onErr func(int, error), err error) error {
	if r.failFast {
		return fmt.Errorf("line %d: %w", line, err)
	}
	if onErr != nil {
		onErr(line, err)
	}
	return nil
}

// mintObject turns one candidate value into the object IRI of an as_iri
// rule.
func (c compiledRule) mintObject(value string) (graph.IRI, error) {
	value = graph.TrimAngles(value)
	if c.namespace == "" {
		if err := graph.ValidateIRI(value); err != nil {
			return graph.IRI{}, fmt.Errorf("value %q with no namespace configured: %w", value, err)
		}
		return graph.IRI{Value: value}, nil
	}
	if c.ignoreCase {
		value = strings.ToLower(value)
	}
	if c.asUUID {
		// Name-based UUIDs are pure functions of the value, so minting
		// is stable across runs and across workers.
		value = uuid.NewSHA1(uuid.NameSpaceURL, []byte(value)).String()
	}
	iri := c.namespace + value
	if err := graph.ValidateIRI(iri); err != nil {
		return graph.IRI{}, fmt.Errorf("minted IRI %q (namespace %q): %w", iri, c.namespace, err)
	}
	return graph.IRI{Value: iri}, nil
}

// checkLexical rejects values whose lexical form cannot belong to common
// numeric and boolean XSD datatypes. Anything else passes unchecked.
func checkLexical(value, datatype string) error {
	const xsd = "http://www.w3.org/2001/XMLSchema#"
	switch datatype {
	case xsd + "integer", xsd + "int", xsd + "long", xsd + "short", xsd + "nonNegativeInteger", xsd + "positiveInteger":
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("%q is not a valid %s", value, datatype)
		}
	case xsd + "decimal", xsd + "double", xsd + "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%q is not a valid %s", value, datatype)
		}
	case xsd + "boolean":
		switch value {
		case "true", "false", "0", "1":
		default:
			return fmt.Errorf("%q is not a valid %s", value, datatype)
		}
	}
	return nil
}

// strptime directives with a Go reference-time equivalent.
var datePatternParts = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'f': ".000000",
}

// translateDatePattern converts a strptime-style pattern into a Go time
// layout. Directives without a layout equivalent are rejected at compile
// time rather than mis-parsing rows later.
func translateDatePattern(pattern string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		if i+1 >= len(pattern) {
			return "", fmt.Errorf("trailing %% in %q", pattern)
		}
		i++
		d := pattern[i]
		if d == '%' {
			b.WriteByte('%')
			continue
		}
		part, ok := datePatternParts[d]
		if !ok {
			return "", fmt.Errorf("unsupported directive %%%c in %q", d, pattern)
		}
		b.WriteString(part)
	}
	return b.String(), nil
}

// placeholderRe matches the shorthand column placeholders of a statement
// template.
var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// UnmappedColumns reports header columns referenced by neither the
// identifier, any column rule, nor (syntactically) the template. Emitted
// once per file as a warning.
func (r *Rules) UnmappedColumns() []string {
	used := map[string]bool{}
	if r.idIndex >= 0 && r.idIndex < len(r.header) {
		used[r.header[r.idIndex]] = true
	}
	for _, col := range r.cols {
		used[col.name] = true
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(r.template, -1) {
		used[strings.TrimSpace(m[1])] = true
	}

	var unmapped []string
	for _, h := range r.header {
		if !used[h] {
			unmapped = append(unmapped, h)
		}
	}
	return unmapped
}
