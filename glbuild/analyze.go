package glbuild

import (
	"errors"
	"fmt"
	"strings"
)

// DeclKind is the kind of a top-level GLSL declaration.
type DeclKind uint8

const (
	DeclStruct DeclKind = iota + 1
	DeclGlobal
	DeclFunction
)

// Decl is a top-level declaration in source order.
type Decl struct {
	Kind DeclKind
	// Line of the first significant token.
	Line int
	// Tokens of the declaration including its terminating ';' or '}'.
	Tokens   []Token
	Struct   *Struct
	Globals  []*Global
	Function *Function
}

// Struct is a struct type declaration.
type Struct struct {
	Name   string
	Fields []Field
	Line   int
	decl   *Decl
}

// Field is a struct member or function parameter.
type Field struct {
	Name string
	Type string
	// Qualifier is "in", "out" or "inout" for parameters.
	Qualifier string
}

// Decl returns the declaration of the struct.
func (s *Struct) Decl() *Decl { return s.decl }

// Text returns the struct declaration as written in the source.
func (s *Struct) Text() string { return tokensText(s.decl.Tokens) }

// Hash hashes the struct declaration ignoring whitespace and comments.
func (s *Struct) Hash() uint64 {
	var buf []byte
	for _, t := range s.decl.Tokens {
		if t.Kind == TokSpace || t.Kind == TokComment {
			continue
		}
		buf = append(buf, t.Text...)
		buf = append(buf, ' ')
	}
	return Hash(buf, 0)
}

// Global is a global variable.
type Global struct {
	Name       string
	Type       string
	Qualifiers []string
	// Comments preceding the declaration, markers stripped.
	Comments []string
	Line     int
}

// IsUniform reports whether the global is a uniform.
func (g *Global) IsUniform() bool { return g.hasQualifier("uniform") }

// IsVarying reports whether the global is supplied by a previous pipeline stage.
func (g *Global) IsVarying() bool {
	return g.hasQualifier("varying") || g.hasQualifier("in") || g.hasQualifier("attribute")
}

// IsOut reports whether the global is a fragment output.
func (g *Global) IsOut() bool { return g.hasQualifier("out") }

func (g *Global) hasQualifier(q string) bool {
	for _, gq := range g.Qualifiers {
		if gq == q {
			return true
		}
	}
	return false
}

// Function is a function definition or prototype.
type Function struct {
	Name       string
	ReturnType string
	Params     []Field
	Comments   []string
	Line       int
	Prototype  bool
	decl       *Decl
}

// Decl returns the declaration of the function.
func (f *Function) Decl() *Decl { return f.decl }

// Code is the analyzed form of a GLSL source.
type Code struct {
	Title     string
	Decls     []*Decl
	Structs   []*Struct
	Globals   []*Global
	Functions []*Function
	// Comments preceding the first declaration.
	Comments []string
}

// Function returns the last defined (non prototype) function named name.
func (c *Code) Function(name string) *Function {
	var found *Function
	for _, f := range c.Functions {
		if f.Name == name && !f.Prototype {
			found = f
		}
	}
	return found
}

// Global returns the global named name or nil.
func (c *Code) Global(name string) *Global {
	for _, g := range c.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Struct returns the struct named name or nil.
func (c *Code) Struct(name string) *Struct {
	for _, s := range c.Structs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Declares reports whether the source declares a global, function or struct named name.
func (c *Code) Declares(name string) bool {
	if c.Global(name) != nil || c.Struct(name) != nil {
		return true
	}
	for _, f := range c.Functions {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ErrSyntax is wrapped by errors returned from Analyze for malformed sources.
var ErrSyntax = errors.New("glsl syntax error")

// Analyze splits a GLSL source into top-level declarations. Preprocessor
// directives and precision statements are dropped. If title is empty the
// first line of the leading comment is used.
func Analyze(title, src string) (*Code, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	stmts, err := splitStatements(toks)
	if err != nil {
		return nil, err
	}
	code := &Code{Title: title}
	for i, st := range stmts {
		if i == 0 {
			code.Comments = st.comments
		}
		if err := code.addStatement(st); err != nil {
			return nil, err
		}
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%w: no declarations", ErrSyntax)
	}
	if code.Title == "" && len(code.Comments) > 0 {
		code.Title = strings.TrimSpace(strings.SplitN(code.Comments[0], "\n", 2)[0])
	}
	if code.Title == "" {
		code.Title = "Untitled Shader"
	}
	return code, nil
}

type statement struct {
	toks     []Token
	comments []string
	// sig indexes the significant (non space, non comment) tokens of toks.
	sig []int
}

func (st *statement) tok(i int) Token { return st.toks[st.sig[i]] }

func (st *statement) line() int { return st.tok(0).Line }

func splitStatements(toks []Token) ([]*statement, error) {
	var (
		stmts    []*statement
		cur      statement
		depth    int
		pending  []string
		lastEnd  = -1 // line the previous statement ended on
		isStruct bool
	)
	finish := func() {
		st := cur
		st.comments = pending
		stmts = append(stmts, &st)
		lastEnd = st.toks[len(st.toks)-1].Line
		cur = statement{}
		pending = nil
		isStruct = false
	}
	for _, t := range toks {
		if len(cur.sig) == 0 {
			switch t.Kind {
			case TokSpace:
				continue
			case TokComment:
				c := commentText(t.Text)
				if t.Line == lastEnd && len(stmts) > 0 && len(pending) == 0 {
					prev := stmts[len(stmts)-1]
					prev.comments = append(prev.comments, c)
				} else {
					pending = append(pending, c)
				}
				continue
			}
		}
		if t.Kind != TokSpace && t.Kind != TokComment {
			if len(cur.sig) == 0 && t.Kind == TokIdent && t.Text == "struct" {
				isStruct = true
			}
			cur.sig = append(cur.sig, len(cur.toks))
		}
		cur.toks = append(cur.toks, t)
		if t.Kind != TokPunct {
			continue
		}
		switch t.Text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: line %d: unbalanced %q", ErrSyntax, t.Line, t.Text)
			}
			if depth == 0 && t.Text == "}" && !isStruct {
				finish()
			}
		case ";":
			if depth == 0 {
				finish()
			}
		}
	}
	if len(cur.sig) > 0 {
		return nil, fmt.Errorf("%w: line %d: unterminated declaration", ErrSyntax, cur.line())
	}
	return stmts, nil
}

func commentText(c string) string {
	if s, ok := strings.CutPrefix(c, "//"); ok {
		return strings.TrimSpace(s)
	}
	c = strings.TrimSuffix(strings.TrimPrefix(c, "/*"), "*/")
	lines := strings.Split(c, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "*"))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var storageQualifiers = map[string]bool{
	"uniform": true, "const": true, "varying": true, "in": true, "out": true,
	"inout": true, "attribute": true, "highp": true, "mediump": true, "lowp": true,
	"flat": true, "smooth": true, "noperspective": true, "invariant": true, "centroid": true,
}

func (c *Code) addStatement(st *statement) error {
	first := st.tok(0)
	switch {
	case first.Text == "precision", len(st.sig) == 1 && first.is(";"):
		return nil
	case first.Text == "struct":
		return c.addStruct(st)
	}
	// Skip a leading layout(...) qualifier.
	start := 0
	if first.Text == "layout" && len(st.sig) > 1 && st.tok(1).is("(") {
		end := st.matching(1)
		if end < 0 {
			return fmt.Errorf("%w: line %d: bad layout qualifier", ErrSyntax, first.Line)
		}
		start = end + 1
	}
	paren, assign := -1, -1
	for i := start; i < len(st.sig); i++ {
		t := st.tok(i)
		if t.is("=") && assign < 0 {
			assign = i
		}
		if t.is("(") && paren < 0 {
			paren = i
		}
	}
	if paren >= 0 && (assign < 0 || paren < assign) {
		return c.addFunction(st, start, paren)
	}
	return c.addGlobals(st, start)
}

// matching returns the significant index of the bracket closing the one at i.
func (st *statement) matching(i int) int {
	depth := 0
	for j := i; j < len(st.sig); j++ {
		t := st.tok(j)
		if t.Kind != TokPunct {
			continue
		}
		switch t.Text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func (c *Code) addStruct(st *statement) error {
	line := st.line()
	if len(st.sig) < 3 || st.tok(1).Kind != TokIdent || !st.tok(2).is("{") {
		return fmt.Errorf("%w: line %d: anonymous or malformed struct", ErrSyntax, line)
	}
	closing := st.matching(2)
	if closing < 0 {
		return fmt.Errorf("%w: line %d: unterminated struct", ErrSyntax, line)
	}
	s := &Struct{Name: st.tok(1).Text, Line: line}
	fields, err := parseFields(st, 3, closing, ";")
	if err != nil {
		return err
	}
	s.Fields = fields
	structToks := append([]Token{}, st.toks[:st.sig[closing]+1]...)
	structToks = append(structToks, Token{Kind: TokPunct, Text: ";", Line: st.tok(closing).Line})
	s.decl = &Decl{Kind: DeclStruct, Line: line, Tokens: structToks, Struct: s}
	c.Structs = append(c.Structs, s)
	c.Decls = append(c.Decls, s.decl)

	// struct S {...} a, b;
	if closing+1 < len(st.sig)-1 {
		names := st.declarators(closing+1, len(st.sig)-1)
		d := &Decl{Kind: DeclGlobal, Line: st.tok(closing + 1).Line}
		d.Tokens = append(d.Tokens, Token{Kind: TokIdent, Text: s.Name, Line: d.Line}, Token{Kind: TokSpace, Text: " ", Line: d.Line})
		d.Tokens = append(d.Tokens, st.toks[st.sig[closing+1]:]...)
		for _, name := range names {
			g := &Global{Name: name, Type: s.Name, Comments: st.comments, Line: d.Line}
			d.Globals = append(d.Globals, g)
			c.Globals = append(c.Globals, g)
		}
		c.Decls = append(c.Decls, d)
	}
	return nil
}

// parseFields parses "type name <sep> type name ..." between significant
// indices from (inclusive) and to (exclusive).
func parseFields(st *statement, from, to int, sep string) ([]Field, error) {
	var fields []Field
	var group []Token
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		g := group
		group = nil
		var f Field
		for len(g) > 0 && storageQualifiers[g[0].Text] {
			if q := g[0].Text; q == "in" || q == "out" || q == "inout" {
				f.Qualifier = q
			}
			g = g[1:]
		}
		if len(g) == 0 || g[0].Kind != TokIdent {
			return fmt.Errorf("%w: line %d: malformed declaration", ErrSyntax, st.tok(from).Line)
		}
		f.Type = g[0].Text
		if sep == "," {
			if f.Type == "void" && len(g) == 1 {
				return nil
			}
			if len(g) > 1 && g[1].Kind == TokIdent {
				f.Name = g[1].Text
			}
			fields = append(fields, f)
			return nil
		}
		// Struct members may declare several names: "float a, b;"
		expectName, depth := true, 0
		for _, t := range g[1:] {
			switch {
			case t.is("["):
				depth++
			case t.is("]"):
				depth--
			case depth == 0 && t.is(","):
				expectName = true
			case depth == 0 && expectName && t.Kind == TokIdent:
				f.Name = t.Text
				fields = append(fields, f)
				expectName = false
			}
		}
		return nil
	}
	depth := 0
	for i := from; i < to; i++ {
		t := st.tok(i)
		switch {
		case t.is("(") || t.is("["):
			depth++
		case t.is(")") || t.is("]"):
			depth--
		}
		if depth == 0 && t.is(sep) {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		group = append(group, t)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return fields, nil
}

// declarators returns the declared names between significant indices from and
// to, skipping array sizes and initializers.
func (st *statement) declarators(from, to int) []string {
	var names []string
	expectName := true
	depth := 0
	for i := from; i < to; i++ {
		t := st.tok(i)
		switch {
		case t.is("(") || t.is("[") || t.is("{"):
			depth++
		case t.is(")") || t.is("]") || t.is("}"):
			depth--
		case depth == 0 && t.is(","):
			expectName = true
		case depth == 0 && t.Kind == TokIdent && expectName:
			names = append(names, t.Text)
			expectName = false
		}
	}
	return names
}

func (c *Code) addGlobals(st *statement, start int) error {
	line := st.line()
	var quals []string
	i := start
	for i < len(st.sig) && storageQualifiers[st.tok(i).Text] {
		quals = append(quals, st.tok(i).Text)
		i++
	}
	if i+1 >= len(st.sig) || st.tok(i).Kind != TokIdent {
		return fmt.Errorf("%w: line %d: malformed global declaration", ErrSyntax, line)
	}
	typ := st.tok(i).Text
	names := st.declarators(i+1, len(st.sig)-1)
	if len(names) == 0 {
		return fmt.Errorf("%w: line %d: declaration of %s declares nothing", ErrSyntax, line, typ)
	}
	d := &Decl{Kind: DeclGlobal, Line: line, Tokens: st.toks}
	for _, name := range names {
		g := &Global{Name: name, Type: typ, Qualifiers: quals, Comments: st.comments, Line: line}
		d.Globals = append(d.Globals, g)
		c.Globals = append(c.Globals, g)
	}
	c.Decls = append(c.Decls, d)
	return nil
}

func (c *Code) addFunction(st *statement, start, paren int) error {
	line := st.line()
	nameIdx := paren - 1
	if nameIdx <= start || st.tok(nameIdx).Kind != TokIdent || st.tok(nameIdx-1).Kind != TokIdent {
		return fmt.Errorf("%w: line %d: malformed function declaration", ErrSyntax, line)
	}
	closing := st.matching(paren)
	if closing < 0 {
		return fmt.Errorf("%w: line %d: unterminated parameter list", ErrSyntax, line)
	}
	params, err := parseFields(st, paren+1, closing, ",")
	if err != nil {
		return err
	}
	f := &Function{
		Name:       st.tok(nameIdx).Text,
		ReturnType: st.tok(nameIdx - 1).Text,
		Params:     params,
		Comments:   st.comments,
		Line:       line,
		Prototype:  st.tok(len(st.sig) - 1).is(";"),
	}
	f.decl = &Decl{Kind: DeclFunction, Line: line, Tokens: st.toks, Function: f}
	c.Functions = append(c.Functions, f)
	c.Decls = append(c.Decls, f.decl)
	return nil
}

func tokensText(toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Annotation returns the arguments of the first "@tag" annotation found in
// comments, e.g. Annotation(c, "@param", "a") returns ["color"] for the comment
// "@param a color".
func Annotation(comments []string, tag string, prefix ...string) ([]string, bool) {
	for _, c := range comments {
		for _, line := range strings.Split(c, "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 || fields[0] != tag || len(fields) < 1+len(prefix) {
				continue
			}
			match := true
			for i, p := range prefix {
				if fields[1+i] != p {
					match = false
					break
				}
			}
			if match {
				return fields[1+len(prefix):], true
			}
		}
	}
	return nil, false
}
