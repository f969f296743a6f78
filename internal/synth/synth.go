// Package synth renders the free-form statement template of a mapping
// specification against each row and turns the result into RDF statements,
// pruning the degenerate output that unfilled placeholders leave behind.
package synth

import (
	"fmt"
	"plugin"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"rdfconv/internal/config"
	"rdfconv/internal/graph"
	"rdfconv/internal/source"
	"rdfconv/internal/turtle"
)

// RenderError is a fatal per-row template failure. Text carries the
// template or rendered text the failure occurred in, for diagnostics.
type RenderError struct {
	Line int
	Text string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("line %d: template: %v\n%s", e.Line, e.Err, e.Text)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Synthesizer renders one specification's template. It is read-only after
// New and safe for concurrent use by row workers.
type Synthesizer struct {
	tmpl        *template.Template
	raw         string // expanded template text, kept for error reporting
	frontmatter string
	prefixes    map[string]string
	header      []string
	index       map[string]int
}

// New compiles the specification's template, loading custom functions from
// the configured module path if any. Returns (nil, nil) when no template is
// configured.
func New(res *config.Resolved, header []string) (*Synthesizer, error) {
	if res.Spec.Template == "" {
		return nil, nil
	}

	funcs := template.FuncMap{}
	if res.Spec.Functions != "" {
		loaded, err := loadFuncsFn(res.Spec.Functions)
		if err != nil {
			return nil, fmt.Errorf("custom functions %s: %w", res.Spec.Functions, err)
		}
		for name, fn := range loaded {
			funcs[name] = fn
		}
	}

	raw := expandPlaceholders(res.Spec.Template)
	tmpl, err := template.New("statements").Funcs(funcs).Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("template does not parse: %w\n%s", err, raw)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	return &Synthesizer{
		tmpl:        tmpl,
		raw:         raw,
		frontmatter: res.Prefixes.Frontmatter(),
		prefixes:    res.Prefixes.Snapshot(),
		header:      header,
		index:       index,
	}, nil
}

// Synthesize renders the template for one row and parses the result.
// Rendering and post-render parse failures are fatal, returned as a
// *RenderError.
func (s *Synthesizer) Synthesize(row source.Row) (*graph.Set, error) {
	bindings := make(map[string]string, len(s.header))
	for name, i := range s.index {
		if i < len(row.Cells) {
			bindings[name] = escapeCell(row.Cells[i])
		} else {
			bindings[name] = ""
		}
	}

	var b strings.Builder
	if err := s.tmpl.Execute(&b, map[string]any{"Row": bindings}); err != nil {
		return nil, &RenderError{Line: row.Line, Text: s.raw, Err: err}
	}

	text := sanitize(b.String())
	text = s.frontmatter + text

	set, err := turtle.Parse(text, turtle.ParseOptions{
		Prefixes: s.prefixes,
		// Undeclared prefixes resolve to the pruning sentinel instead
		// of failing the parse.
		OnUnknownPrefix: func(string) (graph.IRI, bool) { return graph.Sentinel, true },
	})
	if err != nil {
		return nil, &RenderError{Line: row.Line, Text: text, Err: err}
	}

	Prune(set)
	return set, nil
}

// escapeCell neutralizes characters that would break the quoting of a cell
// value interpolated into statement text.
func escapeCell(s string) string {
	if !strings.ContainsAny(s, "\"\\\n\r") {
		return s
	}
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
	)
	return r.Replace(s)
}

// expandPlaceholders rewrites every shorthand {column} placeholder into a
// binding lookup, leaving native {{...}} actions untouched.
func expandPlaceholders(body string) string {
	var b strings.Builder
	for i := 0; i < len(body); {
		if strings.HasPrefix(body[i:], "{{") {
			end := strings.Index(body[i+2:], "}}")
			if end < 0 {
				b.WriteString(body[i:])
				break
			}
			b.WriteString(body[i : i+2+end+2])
			i += 2 + end + 2
			continue
		}
		if body[i] == '{' {
			end := strings.IndexByte(body[i:], '}')
			if end > 1 {
				name := strings.TrimSpace(body[i+1 : i+end])
				fmt.Fprintf(&b, "{{index .Row %q}}", name)
				i += end + 1
				continue
			}
		}
		b.WriteByte(body[i])
		i++
	}
	return b.String()
}

// emptyTypedLiteralRe matches a datatype annotation on an empty string
// literal, the usual artifact of an unfilled placeholder. Quotes inside
// literal content are always escaped, so a bare `""` cannot occur there.
var emptyTypedLiteralRe = regexp.MustCompile(`""\^\^(<[^>]*>|[\w-]+:[\w-]*)`)

// sanitize normalizes rendered statement text before parsing: datatypes on
// empty literals are dropped and empty IRIs become empty literals, so a
// single pruning rule catches both. The `<>` rewrite tracks quoting, since
// a cell value may legitimately contain the two characters.
func sanitize(text string) string {
	text = emptyTypedLiteralRe.ReplaceAllString(text, `""`)
	var b strings.Builder
	b.Grow(len(text))
	inQuote := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(text):
			b.WriteByte(c)
			i++
			c = text[i]
		case c == '"':
			inQuote = !inQuote
		case !inQuote && c == '<' && i+1 < len(text) && text[i+1] == '>':
			b.WriteString(`""`)
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Prune removes degenerate statements in place, iterating to a fixed point:
// empty-string literals, anything touching the sentinel IRI, and blank
// nodes left without outgoing statements. Removing a blank node's last
// statement can orphan its parent reference, hence the iteration.
func Prune(set *graph.Set) {
	for {
		removed := set.RemoveWhere(func(st graph.Statement) bool {
			if lit, ok := st.O.(graph.Literal); ok && lit.Lexical == "" {
				return true
			}
			return st.S == graph.Term(graph.Sentinel) ||
				st.P == graph.Sentinel ||
				st.O == graph.Term(graph.Sentinel)
		})

		subjects := map[string]bool{}
		for _, st := range set.Statements() {
			if bn, ok := st.S.(graph.BlankNode); ok {
				subjects[bn.ID] = true
			}
		}
		removed += set.RemoveWhere(func(st graph.Statement) bool {
			bn, ok := st.O.(graph.BlankNode)
			return ok && !subjects[bn.ID]
		})

		if removed == 0 {
			return
		}
	}
}

var (
	funcsCache sync.Map // path -> template.FuncMap

	// loadFuncsFn is swappable in tests; loading a real plugin needs a
	// compiled .so on disk.
	loadFuncsFn = loadFuncs
)

// loadFuncs opens the custom-function module at path and returns its Funcs
// map. Modules are loaded once per distinct path.
func loadFuncs(path string) (template.FuncMap, error) {
	if cached, ok := funcsCache.Load(path); ok {
		return cached.(template.FuncMap), nil
	}

	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open module: %w", err)
	}
	sym, err := plug.Lookup("Funcs")
	if err != nil {
		return nil, fmt.Errorf("module exposes no Funcs symbol: %w", err)
	}

	var funcs template.FuncMap
	switch v := sym.(type) {
	case *template.FuncMap:
		funcs = *v
	case *map[string]any:
		funcs = template.FuncMap(*v)
	default:
		return nil, fmt.Errorf("Funcs has type %T, want template.FuncMap", sym)
	}

	funcsCache.Store(path, funcs)
	return funcs, nil
}
