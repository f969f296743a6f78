package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"rdfconv/internal/graph"
	"rdfconv/internal/prefix"
)

// Resolved is the frozen output of specification resolution: the merged,
// defaulted, rewritten spec plus the prefix table and absolute paths. It is
// shared read-only by every pipeline worker.
type Resolved struct {
	Spec     Spec
	Prefixes *prefix.Table

	// Infile and Outdir are absolute. Infile exists and is a regular
	// file; Outdir exists and is a directory.
	Infile string
	Outdir string
}

// GraphIRI returns the named-graph IRI and true when quad output is
// configured.
func (r *Resolved) GraphIRI() (graph.IRI, bool) {
	if r.Spec.Graph == "" {
		return graph.IRI{}, false
	}
	return graph.IRI{Value: r.Spec.Graph}, true
}

// Resolve loads the root fragment at path, recursively merges its imports,
// validates, binds prefixes, rewrites CURIE/IRI fields, and resolves
// filesystem locations. Any validation failure is reported as a
// *ValidationError carrying every violation for the offending fragment.
func Resolve(path string) (*Resolved, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	merged, err := loadMerged(root, nil)
	if err != nil {
		return nil, err
	}

	var spec Spec
	if err := decodeStrict(merged, &spec); err != nil {
		return nil, &ValidationError{Source: root, Issues: []Issue{{
			Severity: SeverityError,
			Path:     "",
			Message:  err.Error(),
		}}}
	}
	applyDefaults(&spec)

	if issues := validateMerged(spec); hasError(issues) {
		return nil, &ValidationError{Issues: issues}
	}

	table := prefix.NewTable()
	for name, iri := range spec.Prefixes {
		table.Bind(name, graph.TrimAngles(iri))
	}
	rewriteSpecIRIs(&spec, table)

	res := &Resolved{Spec: spec, Prefixes: table}
	if err := res.resolvePaths(filepath.Dir(root)); err != nil {
		return nil, err
	}
	return res, nil
}

// loadMerged loads one fragment and deep-merges its import chain beneath it.
// chain carries the absolute paths of in-progress imports so that circular
// imports fail explicitly instead of recursing forever.
func loadMerged(path string, chain []string) (map[string]any, error) {
	for _, seen := range chain {
		if seen == path {
			cycle := append(append([]string{}, chain...), path)
			return nil, &ValidationError{Source: path, Issues: []Issue{{
				Severity: SeverityError,
				Path:     "import",
				Message:  fmt.Sprintf("circular import: %s", strings.Join(cycle, " -> ")),
			}}}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("specification fragment: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Source: path, Issues: []Issue{{
			Severity: SeverityError,
			Message:  fmt.Sprintf("not valid YAML: %v", err),
		}}}
	}

	// Validate the fragment in isolation before merging: unknown keys and
	// type mismatches via strict decoding, field constraints via
	// validateFragment. All findings for the fragment surface together.
	var frag Spec
	if err := decodeStrict(raw, &frag); err != nil {
		return nil, &ValidationError{Source: path, Issues: []Issue{{
			Severity: SeverityError,
			Message:  err.Error(),
		}}}
	}
	if issues := validateFragment(frag); hasError(issues) {
		return nil, &ValidationError{Source: path, Issues: issues}
	}

	merged := map[string]any{}
	dir := filepath.Dir(path)
	for _, imp := range frag.Imports {
		impPath := imp
		if !filepath.IsAbs(impPath) {
			impPath = filepath.Join(dir, impPath)
		}
		sub, err := loadMerged(impPath, append(chain, path))
		if err != nil {
			return nil, err
		}
		deepMerge(merged, sub)
	}
	delete(raw, "import")
	deepMerge(merged, raw)
	return merged, nil
}

// deepMerge merges src into dst with later-wins precedence: map values merge
// recursively; a non-empty scalar or list from src replaces dst's value; an
// empty src value keeps whatever dst already has. Emptiness means nil, "",
// or a zero-length collection — explicit false and 0 win, so an importing
// fragment can switch flags off.
func deepMerge(dst, src map[string]any) {
	for k, sv := range src {
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				deepMerge(dm, sm)
				continue
			}
			if len(sm) == 0 {
				if _, exists := dst[k]; exists {
					continue
				}
			}
			dst[k] = sm
			continue
		}
		if isEmptyValue(sv) {
			if _, exists := dst[k]; !exists {
				dst[k] = sv
			}
			continue
		}
		dst[k] = sv
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}

// decodeStrict round-trips a merged map through YAML into a typed Spec,
// rejecting unknown fields.
func decodeStrict(raw map[string]any, out any) error {
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// rewriteSpecIRIs canonicalizes every IRI-valued field: angle brackets are
// stripped from scheme-qualified IRIs and CURIEs are expanded against the
// prefix table. Unresolvable strings are left untouched (best effort). The
// template is deliberately excluded.
func rewriteSpecIRIs(s *Spec, table *prefix.Table) {
	s.Namespace = rewriteIRI(s.Namespace, table)
	s.Graph = rewriteIRI(s.Graph, table)
	for i := range s.Types {
		s.Types[i] = rewriteIRI(s.Types[i], table)
	}
	for i := range s.Columns {
		c := &s.Columns[i]
		c.Predicate = rewriteIRI(c.Predicate, table)
		c.Datatype = rewriteIRI(c.Datatype, table)
		c.Namespace = rewriteIRI(c.Namespace, table)
		c.Label = rewriteIRI(c.Label, table)
		c.Type = rewriteIRI(c.Type, table)
	}
}

func rewriteIRI(s string, table *prefix.Table) string {
	if s == "" {
		return ""
	}
	x := graph.TrimAngles(strings.TrimSpace(s))
	if strings.HasPrefix(x, "http://") || strings.HasPrefix(x, "https://") || strings.HasPrefix(x, "urn:") {
		return x
	}
	if expanded, ok := table.Expand(x); ok {
		return expanded
	}
	return s
}

// resolvePaths makes Infile/Outdir absolute against the root fragment's
// directory and verifies their filesystem kinds. A missing Outdir is
// created; a missing Infile is fatal before any row is read.
func (r *Resolved) resolvePaths(rootDir string) error {
	infile := r.Spec.Infile
	if !filepath.IsAbs(infile) {
		infile = filepath.Join(rootDir, infile)
	}
	info, err := os.Stat(infile)
	if err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input file %s is a directory", infile)
	}
	r.Infile = infile

	outdir := r.Spec.Outdir
	if outdir == "" {
		outdir = filepath.Dir(infile)
	} else if !filepath.IsAbs(outdir) {
		outdir = filepath.Join(rootDir, outdir)
	}
	if info, err := os.Stat(outdir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("output directory %s is a file", outdir)
		}
	} else if err := os.MkdirAll(outdir, 0o755); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	r.Outdir = outdir
	return nil
}
