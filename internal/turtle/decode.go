package turtle

import (
	"fmt"
	"strconv"
	"strings"

	"rdfconv/internal/graph"
)

// ParseError reports a syntax error with its line in the parsed text.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("turtle: line %d: %s", e.Line, e.Msg)
}

// ParseOptions configures Parse.
type ParseOptions struct {
	// Prefixes seeds the parser's prefix map. @prefix directives in the text
	// add to (and may shadow) these bindings.
	Prefixes map[string]string

	// OnUnknownPrefix, when non-nil, is consulted for prefixed names whose
	// prefix is not declared. Returning ok substitutes the returned IRI for
	// the whole name; otherwise parsing fails. The template synthesizer uses
	// this to divert undeclared references to the sentinel IRI.
	OnUnknownPrefix func(name string) (graph.IRI, bool)
}

// Parse reads Turtle text into a statement set.
//
// The supported grammar is the subset statement templates produce: @prefix /
// PREFIX directives, IRIs, prefixed names, "a", blank node labels, anonymous
// blank nodes with nested predicate-object lists, ";" and "," continuations,
// and string / numeric / boolean literals with optional "^^" datatype or
// language tag. RDF collections "( )" are rejected.
func Parse(text string, opt ParseOptions) (*graph.Set, error) {
	p := &parser{
		sc:       newScanner(text),
		prefixes: make(map[string]string, len(opt.Prefixes)),
		unknown:  opt.OnUnknownPrefix,
		set:      graph.NewSet(),
	}
	for k, v := range opt.Prefixes {
		p.prefixes[k] = v
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	for p.cur.kind != tokEOF {
		if err := p.parseStatement(); err != nil {
			return nil, err
		}
	}
	return p.set, nil
}

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIRI
	tokPName
	tokBlank
	tokString
	tokLang
	tokCaret // ^^
	tokDot
	tokSemi
	tokComma
	tokLBracket
	tokRBracket
	tokA
	tokNumber // value in val, datatype IRI in dtype
	tokBool
	tokPrefixDecl // @prefix or PREFIX
	tokBaseDecl   // @base or BASE
)

type token struct {
	kind  tokKind
	val   string
	dtype string
	line  int
}

type scanner struct {
	src  string
	pos  int
	line int
}

func newScanner(src string) *scanner {
	return &scanner{src: src, line: 1}
}

func (s *scanner) errf(format string, args ...any) error {
	return &ParseError{Line: s.line, Msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n':
			s.line++
			s.pos++
		case c == ' ' || c == '\t' || c == '\r':
			s.pos++
		case c == '#':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.pos++
			}
		default:
			return
		}
	}
}

func (s *scanner) next() (token, error) {
	s.skipSpace()
	if s.pos >= len(s.src) {
		return token{kind: tokEOF, line: s.line}, nil
	}
	line := s.line
	c := s.src[s.pos]
	switch {
	case c == '<':
		end := strings.IndexByte(s.src[s.pos:], '>')
		if end < 0 {
			return token{}, s.errf("unterminated IRI")
		}
		iri := s.src[s.pos+1 : s.pos+end]
		s.pos += end + 1
		return token{kind: tokIRI, val: iri, line: line}, nil
	case c == '"' || c == '\'':
		val, err := s.scanString(c)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, val: val, line: line}, nil
	case c == '_' && s.pos+1 < len(s.src) && s.src[s.pos+1] == ':':
		s.pos += 2
		start := s.pos
		for s.pos < len(s.src) && isPNChar(s.src[s.pos]) {
			s.pos++
		}
		return token{kind: tokBlank, val: s.src[start:s.pos], line: line}, nil
	case c == '@':
		s.pos++
		start := s.pos
		for s.pos < len(s.src) && (isAlphaNum(s.src[s.pos]) || s.src[s.pos] == '-') {
			s.pos++
		}
		word := s.src[start:s.pos]
		switch word {
		case "prefix":
			return token{kind: tokPrefixDecl, line: line}, nil
		case "base":
			return token{kind: tokBaseDecl, line: line}, nil
		}
		return token{kind: tokLang, val: word, line: line}, nil
	case c == '^':
		if s.pos+1 >= len(s.src) || s.src[s.pos+1] != '^' {
			return token{}, s.errf("expected ^^")
		}
		s.pos += 2
		return token{kind: tokCaret, line: line}, nil
	case c == '.':
		s.pos++
		return token{kind: tokDot, line: line}, nil
	case c == ';':
		s.pos++
		return token{kind: tokSemi, line: line}, nil
	case c == ',':
		s.pos++
		return token{kind: tokComma, line: line}, nil
	case c == '[':
		s.pos++
		return token{kind: tokLBracket, line: line}, nil
	case c == ']':
		s.pos++
		return token{kind: tokRBracket, line: line}, nil
	case c == '(' || c == ')':
		return token{}, s.errf("RDF collections are not supported")
	case c == '+' || c == '-' || (c >= '0' && c <= '9'):
		return s.scanNumber(line)
	default:
		return s.scanWord(line)
	}
}

// scanString reads a short or long quoted string starting at the opening
// quote character q and returns its unescaped value.
func (s *scanner) scanString(q byte) (string, error) {
	long := strings.HasPrefix(s.src[s.pos:], strings.Repeat(string(q), 3))
	if long {
		s.pos += 3
	} else {
		s.pos++
	}
	var b strings.Builder
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == q {
			if !long {
				s.pos++
				return b.String(), nil
			}
			if strings.HasPrefix(s.src[s.pos:], strings.Repeat(string(q), 3)) {
				s.pos += 3
				return b.String(), nil
			}
			b.WriteByte(c)
			s.pos++
			continue
		}
		if c == '\n' {
			if !long {
				return "", s.errf("newline in string literal")
			}
			s.line++
			b.WriteByte(c)
			s.pos++
			continue
		}
		if c == '\\' {
			if s.pos+1 >= len(s.src) {
				return "", s.errf("unterminated escape")
			}
			esc := s.src[s.pos+1]
			s.pos += 2
			switch esc {
			case 't':
				b.WriteByte('\t')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '"', '\'', '\\':
				b.WriteByte(esc)
			case 'u', 'U':
				width := 4
				if esc == 'U' {
					width = 8
				}
				if s.pos+width > len(s.src) {
					return "", s.errf("truncated \\%c escape", esc)
				}
				code, err := strconv.ParseUint(s.src[s.pos:s.pos+width], 16, 32)
				if err != nil {
					return "", s.errf("bad \\%c escape: %v", esc, err)
				}
				b.WriteRune(rune(code))
				s.pos += width
			default:
				return "", s.errf("unknown escape \\%c", esc)
			}
			continue
		}
		b.WriteByte(c)
		s.pos++
	}
	return "", s.errf("unterminated string literal")
}

func (s *scanner) scanNumber(line int) (token, error) {
	start := s.pos
	if c := s.src[s.pos]; c == '+' || c == '-' {
		s.pos++
	}
	sawDot, sawExp := false, false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c >= '0' && c <= '9':
			s.pos++
		case c == '.' && !sawDot && !sawExp:
			// only a decimal point when a digit follows; otherwise it is
			// the statement terminator
			if s.pos+1 < len(s.src) && s.src[s.pos+1] >= '0' && s.src[s.pos+1] <= '9' {
				sawDot = true
				s.pos++
			} else {
				goto done
			}
		case (c == 'e' || c == 'E') && !sawExp:
			sawExp = true
			s.pos++
			if s.pos < len(s.src) && (s.src[s.pos] == '+' || s.src[s.pos] == '-') {
				s.pos++
			}
		default:
			goto done
		}
	}
done:
	val := s.src[start:s.pos]
	if val == "+" || val == "-" || val == "" {
		return token{}, s.errf("malformed numeric literal")
	}
	dt := "http://www.w3.org/2001/XMLSchema#integer"
	if sawExp {
		dt = "http://www.w3.org/2001/XMLSchema#double"
	} else if sawDot {
		dt = "http://www.w3.org/2001/XMLSchema#decimal"
	}
	return token{kind: tokNumber, val: val, dtype: dt, line: line}, nil
}

func (s *scanner) scanWord(line int) (token, error) {
	start := s.pos
	for s.pos < len(s.src) && isPNameChar(s.src[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		return token{}, s.errf("unexpected character %q", s.src[s.pos])
	}
	// a trailing dot belongs to the statement terminator, not the name
	for s.pos > start+1 && s.src[s.pos-1] == '.' {
		s.pos--
	}
	word := s.src[start:s.pos]
	switch word {
	case "a":
		return token{kind: tokA, line: line}, nil
	case "true", "false":
		return token{kind: tokBool, val: word, line: line}, nil
	case "PREFIX", "prefix":
		return token{kind: tokPrefixDecl, line: line}, nil
	case "BASE", "base":
		return token{kind: tokBaseDecl, line: line}, nil
	}
	if !strings.Contains(word, ":") {
		return token{}, s.errf("unexpected token %q", word)
	}
	return token{kind: tokPName, val: word, line: line}, nil
}

func isAlphaNum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isPNChar(c byte) bool {
	return isAlphaNum(c) || c == '_' || c == '-' || c == '.'
}

func isPNameChar(c byte) bool {
	return isPNChar(c) || c == ':' || c == '%' || c >= 0x80
}

type parser struct {
	sc       *scanner
	cur      token
	prefixes map[string]string
	unknown  func(string) (graph.IRI, bool)
	set      *graph.Set
	anonN    int
}

func (p *parser) next() error {
	tok, err := p.sc.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) errf(format string, args ...any) error {
	return &ParseError{Line: p.cur.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseStatement() error {
	switch p.cur.kind {
	case tokPrefixDecl:
		return p.parsePrefixDecl()
	case tokBaseDecl:
		return p.errf("@base is not supported in statement templates")
	default:
		subj, err := p.parseSubject()
		if err != nil {
			return err
		}
		if err := p.parsePredicateObjectList(subj, tokDot); err != nil {
			return err
		}
		if p.cur.kind != tokDot {
			return p.errf("expected '.' to end statement")
		}
		return p.next()
	}
}

func (p *parser) parsePrefixDecl() error {
	if err := p.next(); err != nil {
		return err
	}
	if p.cur.kind != tokPName || !strings.HasSuffix(p.cur.val, ":") {
		return p.errf("expected prefix name ending in ':'")
	}
	name := strings.TrimSuffix(p.cur.val, ":")
	if err := p.next(); err != nil {
		return err
	}
	if p.cur.kind != tokIRI {
		return p.errf("expected namespace IRI in prefix declaration")
	}
	p.prefixes[name] = p.cur.val
	if err := p.next(); err != nil {
		return err
	}
	// @prefix requires a terminating dot; SPARQL-style PREFIX omits it
	if p.cur.kind == tokDot {
		return p.next()
	}
	return nil
}

func (p *parser) parseSubject() (graph.Term, error) {
	switch p.cur.kind {
	case tokIRI:
		iri := graph.IRI{Value: p.cur.val}
		return iri, p.next()
	case tokPName:
		return p.resolvePName()
	case tokBlank:
		b := graph.BlankNode{ID: p.cur.val}
		return b, p.next()
	case tokLBracket:
		return p.parseAnonNode()
	default:
		return nil, p.errf("expected subject")
	}
}

// parseAnonNode consumes "[ ... ]" and returns the fresh blank node.
func (p *parser) parseAnonNode() (graph.Term, error) {
	p.anonN++
	node := graph.BlankNode{ID: fmt.Sprintf("anon%d", p.anonN)}
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.cur.kind == tokRBracket {
		return node, p.next()
	}
	if err := p.parsePredicateObjectList(node, tokRBracket); err != nil {
		return nil, err
	}
	if p.cur.kind != tokRBracket {
		return nil, p.errf("expected ']'")
	}
	return node, p.next()
}

// parsePredicateObjectList parses "verb objectList (';' verb objectList)*",
// stopping before the closing token (tokDot or tokRBracket).
func (p *parser) parsePredicateObjectList(subj graph.Term, closing tokKind) error {
	for {
		pred, err := p.parseVerb()
		if err != nil {
			return err
		}
		for {
			obj, err := p.parseObject()
			if err != nil {
				return err
			}
			p.set.Add(graph.Statement{S: subj, P: pred, O: obj})
			if p.cur.kind != tokComma {
				break
			}
			if err := p.next(); err != nil {
				return err
			}
		}
		if p.cur.kind != tokSemi {
			return nil
		}
		// consume ';' and tolerate trailing semicolons before the closer
		for p.cur.kind == tokSemi {
			if err := p.next(); err != nil {
				return err
			}
		}
		if p.cur.kind == closing {
			return nil
		}
	}
}

func (p *parser) parseVerb() (graph.IRI, error) {
	switch p.cur.kind {
	case tokA:
		return graph.RDFType, p.next()
	case tokIRI:
		iri := graph.IRI{Value: p.cur.val}
		return iri, p.next()
	case tokPName:
		term, err := p.resolvePName()
		if err != nil {
			return graph.IRI{}, err
		}
		return term.(graph.IRI), nil
	default:
		return graph.IRI{}, p.errf("expected predicate")
	}
}

func (p *parser) parseObject() (graph.Term, error) {
	switch p.cur.kind {
	case tokIRI:
		iri := graph.IRI{Value: p.cur.val}
		return iri, p.next()
	case tokPName:
		return p.resolvePName()
	case tokBlank:
		b := graph.BlankNode{ID: p.cur.val}
		return b, p.next()
	case tokLBracket:
		return p.parseAnonNode()
	case tokString:
		return p.parseLiteral()
	case tokNumber:
		lit := graph.Literal{Lexical: p.cur.val, Datatype: graph.IRI{Value: p.cur.dtype}}
		return lit, p.next()
	case tokBool:
		lit := graph.Literal{Lexical: p.cur.val, Datatype: graph.IRI{Value: "http://www.w3.org/2001/XMLSchema#boolean"}}
		return lit, p.next()
	default:
		return nil, p.errf("expected object")
	}
}

func (p *parser) parseLiteral() (graph.Term, error) {
	lex := p.cur.val
	if err := p.next(); err != nil {
		return nil, err
	}
	switch p.cur.kind {
	case tokLang:
		lit := graph.Literal{Lexical: lex, Lang: p.cur.val}
		return lit, p.next()
	case tokCaret:
		if err := p.next(); err != nil {
			return nil, err
		}
		var dt graph.IRI
		switch p.cur.kind {
		case tokIRI:
			dt = graph.IRI{Value: p.cur.val}
		case tokPName:
			term, err := p.resolvePName()
			if err != nil {
				return nil, err
			}
			return graph.Literal{Lexical: lex, Datatype: term.(graph.IRI)}, nil
		default:
			return nil, p.errf("expected datatype IRI after ^^")
		}
		return graph.Literal{Lexical: lex, Datatype: dt}, p.next()
	default:
		return graph.Literal{Lexical: lex, Datatype: graph.XSDString}, nil
	}
}

func (p *parser) resolvePName() (graph.Term, error) {
	name, local, _ := strings.Cut(p.cur.val, ":")
	ns, ok := p.prefixes[name]
	if !ok {
		if p.unknown != nil {
			if iri, handled := p.unknown(name); handled {
				return iri, p.next()
			}
		}
		return nil, p.errf("undeclared prefix %q", name)
	}
	iri := graph.IRI{Value: ns + local}
	return iri, p.next()
}
