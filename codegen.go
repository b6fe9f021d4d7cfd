package glpatch

import (
	"io"
	"strings"

	"github.com/soypat/glpatch/glbuild"
	"github.com/soypat/glpatch/glbuild/glsllib"
)

// CodegenConfig controls the program preamble and sink.
type CodegenConfig struct {
	// Version directive written first, e.g. "#version 330 core". Omitted when empty.
	Version string
	// Precision of floats on GL ES.
	Precision string
	// SinkName is the fragment output the root component writes to.
	SinkName string
	// SinkType is the GLSL type of the sink.
	SinkType string
	// Banner is written as a comment after the preamble.
	Banner string
}

// DefaultCodegenConfig returns the configuration used by NewDefaultLinker.
func DefaultCodegenConfig() CodegenConfig {
	return CodegenConfig{
		Precision: "mediump",
		SinkName:  "sm_result",
		SinkType:  "vec4",
		Banner:    "glpatch-generated GLSL",
	}
}

// mainLine numbers the generated main function so compiler errors in it are
// distinguishable from errors in shader sources.
const mainLine = 10001

// GLSL returns the generated fragment shader.
func (lp *LinkedPatch) GLSL() string {
	return string(lp.AppendGLSL(nil))
}

// WriteGLSL writes the generated fragment shader to w.
func (lp *LinkedPatch) WriteGLSL(w io.Writer) (int, error) {
	return w.Write(lp.AppendGLSL(nil))
}

// AppendGLSL appends the generated fragment shader to b. The output only
// depends on the linked patch, never on map iteration order.
func (lp *LinkedPatch) AppendGLSL(b []byte) []byte {
	cfg := lp.Config
	if cfg.Version != "" {
		b = append(b, cfg.Version...)
		b = append(b, '\n')
	}
	b = append(b, "#ifdef GL_ES\nprecision "...)
	b = append(b, cfg.Precision...)
	b = append(b, " float;\n#endif\n\n"...)
	if cfg.Banner != "" {
		b = append(b, "// "...)
		b = append(b, cfg.Banner...)
		b = append(b, "\n\n"...)
	}
	b = append(b, "layout(location = 0) out "...)
	b = glbuild.AppendVarDecl(b, cfg.SinkType, cfg.SinkName, "")

	for _, ls := range lp.Structs {
		b = append(b, '\n')
		r := glbuild.Renamer{}
		if ls.Owner != nil {
			r.Renames = ls.Owner.renames
		}
		b = glbuild.AppendLineDirective(b, ls.Struct.Line)
		b = r.AppendStruct(b, ls.Struct)
		b = append(b, '\n')
	}

	for _, ds := range lp.DataSources {
		if ds.IsImplicit() {
			continue
		}
		b = append(b, "\n// Data source: "...)
		b = append(b, ds.Title...)
		b = append(b, '\n')
		if ds.Style == SamplerAccessor {
			b = glbuild.AppendUniformDecl(b, "sampler2D", ds.VarName+"_texture")
			b = append(b, glsllib.PixelAccessor(ds.VarName)...)
			b = glbuild.AppendVarDecl(b, ds.GLSLType, ds.VarName, "")
			continue
		}
		b = glbuild.AppendUniformDecl(b, ds.GLSLType, ds.VarName)
	}

	for _, c := range lp.Components {
		b = lp.appendComponent(b, c)
	}

	b = append(b, '\n')
	b = glbuild.AppendLineDirective(b, mainLine)
	b = append(b, "void main() {\n"...)
	for _, ds := range lp.DataSources {
		if ds.Style == SamplerAccessor {
			b = append(b, "    "...)
			b = append(b, ds.VarName...)
			b = append(b, " = "...)
			b = append(b, ds.VarName...)
			b = append(b, "_getPixelCoords(gl_FragCoord.xy);\n"...)
		}
	}
	for i, c := range lp.Components {
		if i > 0 {
			b = append(b, '\n')
		}
		b = lp.appendInvocation(b, c)
	}
	if lp.sinkExpr != "" {
		b = append(b, "\n    "...)
		b = append(b, lp.Config.SinkName...)
		b = append(b, " = "...)
		b = append(b, lp.sinkExpr...)
		b = append(b, ";\n"...)
	}
	b = append(b, "}\n"...)
	return b
}

func (lp *LinkedPatch) appendComponent(b []byte, c *Component) []byte {
	b = append(b, "\n// Shader: "...)
	b = append(b, c.Title...)
	b = append(b, "; namespace: "...)
	b = append(b, c.Namespace.Prefix...)
	b = append(b, '\n')

	out := c.Open.Output
	if !c.Redirected {
		init, _ := out.ContentType.Initializer()
		if out.ContentType.GLSLType() != out.Type {
			init, _ = glbuild.ZeroValue(out.Type)
		}
		b = glbuild.AppendVarDecl(b, out.Type, c.OutputVar, init)
	}
	for _, d := range c.Defaults {
		b = glbuild.AppendVarDecl(b, d.Type, d.Name, "")
	}

	r := glbuild.Renamer{Renames: c.renames}
	for _, d := range c.Open.Code.Decls {
		if !emitDecl(d) {
			continue
		}
		b = append(b, '\n')
		b = glbuild.AppendLineDirective(b, d.Line)
		b = r.AppendDecl(b, d)
		b = append(b, '\n')
	}
	return b
}

// emitDecl reports whether a declaration of the component's source is
// copied into the program. Structs are emitted separately, uniforms are
// replaced by whatever feeds them and varyings come from the vertex stage.
func emitDecl(d *glbuild.Decl) bool {
	switch d.Kind {
	case glbuild.DeclStruct:
		return false
	case glbuild.DeclGlobal:
		for _, g := range d.Globals {
			if g.IsUniform() || g.IsVarying() || g.IsOut() {
				return false
			}
		}
	}
	return true
}

func (lp *LinkedPatch) appendInvocation(b []byte, c *Component) []byte {
	b = append(b, "    // Invoke "...)
	b = append(b, c.Title...)
	b = append(b, "\n    "...)
	entry := c.Open.Entry
	out := c.Open.Output
	if out.IsReturnValue() {
		b = append(b, c.OutputVar...)
		b = append(b, " = "...)
	}
	b = c.Namespace.AppendQualified(b, entry.Name)
	b = append(b, '(')
	for i, p := range entry.Params {
		if i > 0 {
			b = append(b, ", "...)
		}
		if p.Qualifier == "out" || p.Qualifier == "inout" {
			b = append(b, c.OutputVar...)
		} else {
			b = append(b, c.Inputs[p.Name]...)
		}
	}
	return append(b, ");\n"...)
}

// String returns a summary of the components, useful when debugging.
func (lp *LinkedPatch) String() string {
	var sb strings.Builder
	for i, c := range lp.Components {
		if i > 0 {
			sb.WriteString(" -> ")
		}
		sb.WriteString(c.Namespace.Prefix)
		sb.WriteByte(':')
		sb.WriteString(c.Title)
	}
	return sb.String()
}
