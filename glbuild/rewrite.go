package glbuild

// Renamer maps identifiers of a shader onto the names they take in a linked
// program. Shadow lists identifiers that must be left alone while rewriting a
// particular declaration, such as function parameters that hide a global.
type Renamer struct {
	Renames map[string]string
	Shadow  map[string]bool
}

// AppendDecl appends d to dst with identifiers renamed. Member accesses (an
// identifier following '.') are never renamed. Comments are kept.
func (r *Renamer) AppendDecl(dst []byte, d *Decl) []byte {
	var shadow map[string]bool
	if d.Function != nil && len(d.Function.Params) > 0 {
		shadow = make(map[string]bool, len(d.Function.Params)+len(r.Shadow))
		for k, v := range r.Shadow {
			shadow[k] = v
		}
		for _, p := range d.Function.Params {
			if p.Name != "" {
				shadow[p.Name] = true
			}
		}
	} else {
		shadow = r.Shadow
	}
	return r.appendTokens(dst, d.Tokens, shadow, nil)
}

// AppendStruct appends the declaration of s with identifiers renamed. Field
// names are members and keep their names; member accesses elsewhere are
// never renamed either.
func (r *Renamer) AppendStruct(dst []byte, s *Struct) []byte {
	toks := s.Decl().Tokens
	fields := make([]bool, len(toks))
	depth := 0
	for i, t := range toks {
		switch {
		case t.is("{"):
			depth++
		case t.is("}"):
			depth--
		case depth > 0 && t.Kind == TokIdent:
			fields[i] = isDeclarator(toks[i+1:])
		}
	}
	return r.appendTokens(dst, toks, r.Shadow, fields)
}

// isDeclarator reports whether the identifier followed by rest names the
// declared variable rather than its type.
func isDeclarator(rest []Token) bool {
	for _, t := range rest {
		if t.Kind == TokSpace || t.Kind == TokComment {
			continue
		}
		return t.is(";") || t.is(",") || t.is("[")
	}
	return false
}

// appendTokens renames the identifiers of toks. Tokens at indices where keep
// is true are written unchanged.
func (r *Renamer) appendTokens(dst []byte, toks []Token, shadow map[string]bool, keep []bool) []byte {
	var prev Token
	for i, t := range toks {
		if t.Kind == TokIdent && !prev.is(".") && !shadow[t.Text] && (keep == nil || !keep[i]) {
			if to, ok := r.Renames[t.Text]; ok {
				dst = append(dst, to...)
				prev = t
				continue
			}
		}
		dst = append(dst, t.Text...)
		if t.Kind != TokSpace && t.Kind != TokComment {
			prev = t
		}
	}
	return dst
}
