package glbuild

import (
	"fmt"
	"strings"
	"unicode"
)

// Entry point names in order of preference.
var entryPoints = []string{"mainImage", "mainProjection", "main"}

// Signature is the port view of an analyzed shader: what it consumes and what
// it produces.
type Signature struct {
	Code   *Code
	Entry  *Function
	Inputs []InputPort
	Output OutputPort
}

// Title returns the shader title.
func (s *Signature) Title() string { return s.Code.Title }

// Input returns the input port with the given id.
func (s *Signature) Input(id string) (InputPort, bool) {
	for _, in := range s.Inputs {
		if in.ID == id {
			return in, true
		}
	}
	return InputPort{}, false
}

// Shape derives the entry point and ports of code. Content types are resolved
// against reg, or the default registry when reg is nil.
func Shape(code *Code, reg *Registry) (*Signature, error) {
	if code == nil {
		panic("nil code")
	}
	if reg == nil {
		reg = defaultRegistry
	}
	sig := &Signature{Code: code}
	for _, name := range entryPoints {
		if f := code.Function(name); f != nil {
			sig.Entry = f
			break
		}
	}
	if sig.Entry == nil {
		return nil, fmt.Errorf("%w: %q has no entry point (want one of %s)", ErrSyntax, code.Title, strings.Join(entryPoints, ", "))
	}

	for _, g := range code.Globals {
		if !g.IsUniform() {
			continue
		}
		ct := inferContentType(reg, g.Comments, "@type", nil, g.Name, g.Type)
		sig.Inputs = append(sig.Inputs, InputPort{
			ID:          g.Name,
			Type:        g.Type,
			Title:       Prettify(g.Name),
			ContentType: ct,
			IsGlobal:    true,
		})
	}

	entry := sig.Entry
	haveOutput := false
	if entry.ReturnType != "void" {
		ct := inferContentType(reg, entry.Comments, "@return", nil, "", entry.ReturnType)
		if entry.Name == "mainProjection" && !hasAnnotation(entry.Comments, "@return") {
			ct = UVCoordinate
		}
		sig.Output = OutputPort{
			ID:          ReturnValuePortID,
			Type:        entry.ReturnType,
			Title:       "Return value",
			Kind:        ReturnValue,
			ContentType: ct,
		}
		haveOutput = true
	}
	for i, p := range entry.Params {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: %q: unnamed parameter %d of %s", ErrSyntax, code.Title, i, entry.Name)
		}
		ct := inferContentType(reg, entry.Comments, "@param", []string{p.Name}, p.Name, p.Type)
		if p.Qualifier == "out" || p.Qualifier == "inout" {
			if haveOutput {
				return nil, fmt.Errorf("%w: %q: %s has more than one output", ErrSyntax, code.Title, entry.Name)
			}
			sig.Output = OutputPort{ID: p.Name, Type: p.Type, Title: Prettify(p.Name), Kind: OutParam, ContentType: ct}
			haveOutput = true
			continue
		}
		sig.Inputs = append(sig.Inputs, InputPort{
			ID:          p.Name,
			Type:        p.Type,
			Title:       Prettify(p.Name),
			ContentType: ct,
			IsParam:     true,
			Index:       i,
		})
	}
	if !haveOutput {
		out := OutputPort{ID: "gl_FragColor", Type: "vec4", Title: "Output Color", Kind: OutGlobal, ContentType: Color}
		for _, g := range code.Globals {
			if g.IsOut() {
				out.ID, out.Type, out.Title = g.Name, g.Type, Prettify(g.Name)
				out.ContentType = inferContentType(reg, g.Comments, "@type", nil, "", g.Type)
				break
			}
		}
		sig.Output = out
	}
	return sig, nil
}

func hasAnnotation(comments []string, tag string) bool {
	_, ok := Annotation(comments, tag)
	return ok
}

func inferContentType(reg *Registry, comments []string, tag string, prefix []string, name, glslType string) ContentType {
	if args, ok := Annotation(comments, tag, prefix...); ok && len(args) > 0 {
		if ct, ok := reg.Lookup(args[0]); ok {
			return ct
		}
		return UnknownContentType(glslType)
	}
	if name != "" {
		if ct, ok := reg.WellKnown(name, glslType); ok {
			return ct
		}
	}
	return reg.ForType(glslType)
}

// Prettify turns an identifier such as "fadeAmount" or "fade_amount" into a
// title: "Fade Amount".
func Prettify(ident string) string {
	var sb strings.Builder
	prevLower := false
	upNext := true
	for _, r := range ident {
		if r == '_' {
			if sb.Len() > 0 {
				upNext = true
			}
			prevLower = false
			continue
		}
		if unicode.IsUpper(r) && prevLower {
			sb.WriteByte(' ')
		} else if upNext && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		if upNext {
			r = unicode.ToUpper(r)
			upNext = false
		}
		sb.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return sb.String()
}
