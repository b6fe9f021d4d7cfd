package glbuild

import (
	"errors"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// TokenKind classifies a lexeme of GLSL source.
type TokenKind uint8

const (
	TokSpace TokenKind = iota
	TokComment
	TokIdent
	TokNumber
	TokPunct
)

// Token is a single GLSL lexeme. Concatenating the Text of all tokens of a
// source yields the source back.
type Token struct {
	Kind TokenKind
	Text string
	// Line is the 1-based line the token starts at.
	Line int
}

func (t Token) is(text string) bool { return t.Kind == TokPunct && t.Text == text }

var glslLexer = lexers.Get("glsl")

// Tokenize splits src into tokens using the chroma GLSL lexer. Preprocessor
// directives are blanked out beforehand, keeping line numbering intact.
func Tokenize(src string) ([]Token, error) {
	if glslLexer == nil {
		return nil, errors.New("glbuild: GLSL lexer unavailable")
	}
	src = stripPreprocessor(src)
	it, err := glslLexer.Tokenise(nil, src)
	if err != nil {
		return nil, err
	}
	var toks []Token
	line := 1
	for _, ct := range it.Tokens() {
		if ct.Value == "" {
			continue
		}
		toks = appendChromaToken(toks, ct, line)
		line += strings.Count(ct.Value, "\n")
	}
	return toks, nil
}

func appendChromaToken(toks []Token, ct chroma.Token, line int) []Token {
	switch {
	case ct.Type.InCategory(chroma.Comment):
		return append(toks, Token{Kind: TokComment, Text: ct.Value, Line: line})
	case strings.TrimSpace(ct.Value) == "":
		return append(toks, Token{Kind: TokSpace, Text: ct.Value, Line: line})
	case ct.Type.InSubCategory(chroma.LiteralNumber):
		return append(toks, Token{Kind: TokNumber, Text: ct.Value, Line: line})
	}
	// Keywords, names and whatever the lexer could not classify are split
	// further so that each token holds exactly one identifier or punctuator.
	v := ct.Value
	for len(v) > 0 {
		n, kind := scanLexeme(v)
		toks = append(toks, Token{Kind: kind, Text: v[:n], Line: line})
		line += strings.Count(v[:n], "\n")
		v = v[n:]
	}
	return toks
}

func scanLexeme(v string) (int, TokenKind) {
	c := v[0]
	switch {
	case isIdentStart(c):
		n := 1
		for n < len(v) && isIdentPart(v[n]) {
			n++
		}
		return n, TokIdent
	case c >= '0' && c <= '9':
		n := 1
		for n < len(v) && (isIdentPart(v[n]) || v[n] == '.') {
			n++
		}
		return n, TokNumber
	case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		n := 1
		for n < len(v) && (v[n] == ' ' || v[n] == '\t' || v[n] == '\n' || v[n] == '\r') {
			n++
		}
		return n, TokSpace
	}
	return 1, TokPunct
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func stripPreprocessor(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	lines := strings.SplitAfter(src, "\n")
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "#") {
			if strings.HasSuffix(l, "\n") {
				lines[i] = "\n"
			} else {
				lines[i] = ""
			}
		}
	}
	out := strings.Join(lines, "")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}
