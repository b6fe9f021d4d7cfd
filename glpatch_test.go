package glpatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/glbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mainSrc      = "void main(){ gl_FragColor = vec4(1.,0.,0.,1.); }"
	crossFadeSrc = "uniform float fade;\nvec4 main(vec4 a, vec4 b){ return mix(a,b,fade); }"
)

// crossFadeShow builds the show with Main on channel main and CrossFade
// filtering it, reading a second channel nobody publishes on.
func crossFadeShow(t *testing.T) (*glpatch.Show, *glpatch.Patch) {
	t.Helper()
	show := glpatch.NewShow("Cross-fade")
	mainID := show.AddShader("Main", mainSrc)
	xfID := show.AddShader("CrossFade", crossFadeSrc)
	p := show.NewPatch(glpatch.AllSurfaces())
	_, err := p.AddShaderInstance(mainID, glpatch.InstanceConfig{})
	require.NoError(t, err)
	xf, err := p.AddShaderInstance(xfID, glpatch.InstanceConfig{Priority: 1})
	require.NoError(t, err)
	slider := show.AddDataSource(glpatch.SliderSource("Fade", 0.5, 0, 1))
	require.NoError(t, p.Link(xf.ID, "fade", glpatch.DataSourceLink{DataSourceID: slider}))
	require.NoError(t, p.Link(xf.ID, "a", glpatch.ChannelLink{Channel: "main"}))
	require.NoError(t, p.Link(xf.ID, "b", glpatch.ChannelLink{Channel: "other"}))
	return show, p
}

func TestCrossFadeDefaultsMissingChannel(t *testing.T) {
	show, p := crossFadeShow(t)
	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)

	require.Len(t, lp.Components, 2)
	assert.Equal(t, "Main", lp.Components[0].Title)
	assert.Equal(t, "CrossFade", lp.Components[1].Title)
	assert.True(t, lp.Root().Redirected)

	require.Len(t, lp.Warnings, 1)
	assert.Equal(t, "No upstream shader found, using default for color.\n"+
		"Stack:\n"+
		"    Resolving main/color -> [CrossFade].b (color)", lp.Warnings[0])

	const want = `#ifdef GL_ES
precision mediump float;
#endif

// glpatch-generated GLSL

layout(location = 0) out vec4 sm_result;

// Data source: Fade
uniform float in_fade;

// Shader: Main; namespace: p0
vec4 p0_gl_FragColor = vec4(0., 0., 0., 1.);

#line 1
void p0_main(){ p0_gl_FragColor = vec4(1.,0.,0.,1.); }

// Shader: CrossFade; namespace: p1

#line 2
vec4 p1_main(vec4 a, vec4 b){ return mix(a,b,in_fade); }

#line 10001
void main() {
    // Invoke Main
    p0_main();

    // Invoke CrossFade
    sm_result = p1_main(p0_gl_FragColor, vec4(0.));
}
`
	assert.Equal(t, want, lp.GLSL())
}

func TestLinkDeterministic(t *testing.T) {
	show, p := crossFadeShow(t)
	lp1, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	lp2, err := glpatch.LinkPatch(show.Clone(), p.ID, glpatch.Request{})
	require.NoError(t, err)
	var sb strings.Builder
	n, err := lp2.WriteGLSL(&sb)
	require.NoError(t, err)
	assert.Equal(t, sb.Len(), n)
	assert.Equal(t, lp1.GLSL(), sb.String())
}

// assertDepsFirst checks every component reads only from earlier components.
func assertDepsFirst(t *testing.T, lp *glpatch.LinkedPatch) {
	t.Helper()
	outputs := make(map[string]int)
	for _, c := range lp.Components {
		for port, expr := range c.Inputs {
			if idx, ok := outputs[expr]; ok {
				assert.Less(t, idx, c.Index, "%s.%s reads from a later component", c.Title, port)
			}
		}
		outputs[c.OutputVar] = c.Index
	}
	for i, c := range lp.Components {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "p"+string(rune('0'+i)), c.Namespace.Prefix)
	}
}

func TestDiamondRunsSharedProducerOnce(t *testing.T) {
	show := glpatch.NewShow("Diamond")
	base := show.AddShader("Base", "vec4 main() { return vec4(1.); }")
	left := show.AddShader("Left", "vec4 main(vec4 c) { return c * .5; }")
	right := show.AddShader("Right", "vec4 main(vec4 c) { return c.bgra; }")
	top := show.AddShader("Top", "vec4 main(vec4 r, vec4 l) { return l + r; }")
	p := show.NewPatch(glpatch.AllSurfaces())
	add := func(shaderID, channel string) *glpatch.ShaderInstance {
		si, err := p.AddShaderInstance(shaderID, glpatch.InstanceConfig{Channel: channel})
		require.NoError(t, err)
		return si
	}
	b := add(base, "base")
	l := add(left, "left")
	r := add(right, "right")
	tp := add(top, "main")
	out := func(si *glpatch.ShaderInstance) glpatch.Link {
		return glpatch.ShaderOutLink{InstanceID: si.ID, PortID: glbuild.ReturnValuePortID}
	}
	require.NoError(t, p.Link(l.ID, "c", out(b)))
	require.NoError(t, p.Link(r.ID, "c", glpatch.ChannelLink{Channel: "base"}))
	require.NoError(t, p.Link(tp.ID, "r", out(b)))
	require.NoError(t, p.Link(tp.ID, "l", out(l)))

	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	assert.Empty(t, lp.Warnings)
	require.Len(t, lp.Components, 3, "Right is not read by Top")
	assertDepsFirst(t, lp)
	assert.Equal(t, "Base", lp.Components[0].Title)
	assert.Equal(t, "Left", lp.Components[1].Title)

	glsl := lp.GLSL()
	assert.Equal(t, 1, strings.Count(glsl, "// Invoke Base"))
	assert.Contains(t, glsl, "p1_result = p1_main(p0_result);")
	assert.Contains(t, glsl, "sm_result = p2_main(p0_result, p1_result);")

	// Reading Right as well makes the diamond complete.
	require.NoError(t, p.Link(tp.ID, "r", out(r)))
	lp, err = glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	require.Len(t, lp.Components, 4)
	assertDepsFirst(t, lp)
	assert.Equal(t, 1, strings.Count(lp.GLSL(), "// Invoke Base"))
}

func TestNamespaceSafety(t *testing.T) {
	show := glpatch.NewShow("Namespaces")
	a := show.AddShader("A", "const float k = 1.;\nfloat helper(float x) { return x * k; }\nvec4 main() { return vec4(helper(1.)); }")
	b := show.AddShader("B", "const float k = 2.;\nfloat helper(float x) { return x + k; }\nvec4 main(vec4 c) { return c * helper(0.); }")
	p := show.NewPatch(glpatch.AllSurfaces())
	_, err := p.AddShaderInstance(a, glpatch.InstanceConfig{Channel: "a"})
	require.NoError(t, err)
	sb, err := p.AddShaderInstance(b, glpatch.InstanceConfig{})
	require.NoError(t, err)
	require.NoError(t, p.Link(sb.ID, "c", glpatch.ChannelLink{Channel: "a"}))

	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	glsl := lp.GLSL()
	assert.Contains(t, glsl, "const float p0_k = 1.;")
	assert.Contains(t, glsl, "float p0_helper(float x) { return x * p0_k; }")
	assert.Contains(t, glsl, "const float p1_k = 2.;")
	assert.Contains(t, glsl, "float p1_helper(float x) { return x + p1_k; }")
	assert.NotContains(t, glsl, "float helper(")
	assert.Contains(t, glsl, "vec4 p1_main(vec4 c) { return c * p1_helper(0.); }")
}

func TestStructFieldsKeepNames(t *testing.T) {
	show := glpatch.NewShow("Fields")
	p := show.NewPatch(glpatch.AllSurfaces())
	src := "struct Light { float value; };\nfloat value = 1.;\nvec4 main() { Light l = Light(value); return vec4(l.value); }"
	_, err := p.AddShaderInstance(show.AddShader("Lit", src), glpatch.InstanceConfig{})
	require.NoError(t, err)

	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	glsl := lp.GLSL()
	assert.Contains(t, glsl, "struct p0_Light { float value; };")
	assert.Contains(t, glsl, "float p0_value = 1.;")
	assert.Contains(t, glsl, "p0_Light l = p0_Light(p0_value); return vec4(l.value);")
	assert.NotContains(t, glsl, "float p0_value; }")
}

func TestChannelCycle(t *testing.T) {
	show := glpatch.NewShow("Cycle")
	id := show.AddShader("Pass", "vec4 main(vec4 x) { return x; }")
	p := show.NewPatch(glpatch.AllSurfaces())
	a, err := p.AddShaderInstance(id, glpatch.InstanceConfig{ID: "A", Channel: "a"})
	require.NoError(t, err)
	b, err := p.AddShaderInstance(id, glpatch.InstanceConfig{ID: "B", Channel: "b"})
	require.NoError(t, err)
	require.NoError(t, p.Link(a.ID, "x", glpatch.ChannelLink{Channel: "b"}))
	require.NoError(t, p.Link(b.ID, "x", glpatch.ChannelLink{Channel: "a"}))

	_, err = glpatch.LinkPatch(show, p.ID, glpatch.Request{Channel: "a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, glpatch.ErrChannelCycle))
	assert.Equal(t, glpatch.ErrChannelCycle, glpatch.KindOf(err))
}

func TestSchemaDrift(t *testing.T) {
	show, p := crossFadeShow(t)
	xf, ok := p.FindShaderInstanceFor("crossFade")
	require.True(t, ok)

	err := p.Link(xf.ID, "amount", glpatch.ChannelLink{Channel: "main"})
	assert.ErrorIs(t, err, glpatch.ErrUnknownPort)

	// Links made behind the patch's back surface on Validate and Link.
	xf.Link("amount", glpatch.ChannelLink{Channel: "main"})
	assert.ErrorIs(t, show.Validate(), glpatch.ErrUnknownPort)
	_, err = glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	var le *glpatch.LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, glpatch.ErrUnknownPort, le.Kind)
	assert.Equal(t, "amount", le.Port)

	assert.True(t, xf.Unlink("amount"))
	assert.NoError(t, show.Validate())
}

func TestMissingReferences(t *testing.T) {
	show, p := crossFadeShow(t)
	_, err := glpatch.LinkPatch(show, "nope", glpatch.Request{})
	assert.ErrorIs(t, err, glpatch.ErrMissingPatch)

	_, err = glpatch.LinkPatch(show, p.ID, glpatch.Request{Channel: "nobody"})
	assert.ErrorIs(t, err, glpatch.ErrNoRoot)

	xf, _ := p.FindShaderInstanceFor("crossFade")
	xf.Link("fade", glpatch.DataSourceLink{DataSourceID: "gone"})
	_, err = glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	assert.ErrorIs(t, err, glpatch.ErrMissingDataSource)

	_, err = p.AddShaderInstance("gone", glpatch.InstanceConfig{})
	assert.ErrorIs(t, err, glpatch.ErrMissingShader)
}

func TestShaderSourceError(t *testing.T) {
	show := glpatch.NewShow("Broken")
	id := show.AddShader("Broken", "vec4 main() { return vec4(1.);")
	p := show.NewPatch(glpatch.AllSurfaces())
	_, err := p.AddShaderInstance(id, glpatch.InstanceConfig{})
	require.NoError(t, err)
	_, err = glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	assert.ErrorIs(t, err, glpatch.ErrShaderSource)
	assert.ErrorIs(t, err, glbuild.ErrSyntax)
}

const movingHeadStruct = "struct MovingHeadParams { float pan; float tilt; float colorWheel; float dimmer; };\n"

func TestStructOutputPacking(t *testing.T) {
	show := glpatch.NewShow("Moving heads")
	base := show.AddShader("Aim", movingHeadStruct+"MovingHeadParams main() { return MovingHeadParams(.5, .5, 0., 1.); }")
	dim := show.AddShader("Dim", movingHeadStruct+"MovingHeadParams main(MovingHeadParams p) { p.dimmer *= .5; return p; }")
	p := show.NewPatch(glpatch.AllSurfaces())
	_, err := p.AddShaderInstance(base, glpatch.InstanceConfig{})
	require.NoError(t, err)
	d, err := p.AddShaderInstance(dim, glpatch.InstanceConfig{})
	require.NoError(t, err)
	require.NoError(t, p.Link(d.ID, "p", glpatch.ChannelLink{Channel: "main"}))

	open, err := show.OpenShader(dim)
	require.NoError(t, err)
	assert.True(t, d.IsFilter(open.Signature))

	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{ContentType: glbuild.MovingHeadParams})
	require.NoError(t, err)
	assert.False(t, lp.Root().Redirected)
	require.Len(t, lp.Structs, 1)
	glsl := lp.GLSL()
	assert.Equal(t, 1, strings.Count(glsl, "struct MovingHeadParams"))
	assert.Contains(t, glsl, "MovingHeadParams p0_result = MovingHeadParams(0., 0., 0., 1.);")
	assert.Contains(t, glsl, "MovingHeadParams p1_main(MovingHeadParams p) { p.dimmer *= .5; return p; }")
	assert.Contains(t, glsl, "p1_result = p1_main(p0_result);")
	assert.Contains(t, glsl, "sm_result = vec4(p1_result.pan, p1_result.tilt, p1_result.colorWheel, p1_result.dimmer);")
}

func TestSinkTypeMismatch(t *testing.T) {
	show := glpatch.NewShow("Sink")
	p := show.NewPatch(glpatch.AllSurfaces())
	_, err := p.AddShaderInstance(show.AddShader("Red", "vec4 main() { return vec4(1., 0., 0., 1.); }"), glpatch.InstanceConfig{})
	require.NoError(t, err)

	cfg := glpatch.DefaultCodegenConfig()
	cfg.SinkType = "vec3"
	_, err = (&glpatch.Linker{Config: cfg}).Link(show, p.ID, glpatch.Request{})
	assert.ErrorIs(t, err, glpatch.ErrSinkType)
	assert.NotErrorIs(t, err, glpatch.ErrNoRoot)
	assert.ErrorContains(t, err, "cannot convert vec4 to vec3")
}

func TestStructConflict(t *testing.T) {
	show := glpatch.NewShow("Conflict")
	base := show.AddShader("Aim", movingHeadStruct+"MovingHeadParams main() { return MovingHeadParams(.5, .5, 0., 1.); }")
	dim := show.AddShader("Dim", "struct MovingHeadParams { float tilt; float pan; float colorWheel; float dimmer; };\n"+
		"MovingHeadParams main(MovingHeadParams p) { return p; }")
	p := show.NewPatch(glpatch.AllSurfaces())
	_, err := p.AddShaderInstance(base, glpatch.InstanceConfig{})
	require.NoError(t, err)
	d, err := p.AddShaderInstance(dim, glpatch.InstanceConfig{})
	require.NoError(t, err)
	require.NoError(t, p.Link(d.ID, "p", glpatch.ChannelLink{Channel: "main"}))
	_, err = glpatch.LinkPatch(show, p.ID, glpatch.Request{ContentType: glbuild.MovingHeadParams})
	assert.ErrorIs(t, err, glpatch.ErrStructConflict)
}

func TestUnlinkedStructPortDeclaresDefault(t *testing.T) {
	show := glpatch.NewShow("Defaults")
	id := show.AddShader("Projection", "struct ModelInfo { vec3 center; vec3 extents; };\n"+
		"uniform ModelInfo modelInfo;\nvec4 main() { return vec4(modelInfo.center, 1.); }")
	p := show.NewPatch(glpatch.AllSurfaces())
	_, err := p.AddShaderInstance(id, glpatch.InstanceConfig{})
	require.NoError(t, err)
	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	require.Len(t, lp.Warnings, 1)
	assert.Contains(t, lp.Warnings[0], "using default for model-info")
	glsl := lp.GLSL()
	assert.Contains(t, glsl, "ModelInfo p0_modelInfo_default;")
	assert.Contains(t, glsl, "return vec4(p0_modelInfo_default.center, 1.);")
}

func TestGuruMeditation(t *testing.T) {
	lp := glpatch.GuruMeditation()
	require.NotNil(t, lp)
	assert.Empty(t, lp.Warnings)
	glsl := lp.GLSL()
	assert.Contains(t, glsl, "uniform float in_time;")
	assert.Contains(t, glsl, "sm_result = p0_main(gl_FragCoord.xy);")
	assert.Same(t, lp, glpatch.GuruMeditation())
}

func TestLinkAll(t *testing.T) {
	show, p := crossFadeShow(t)
	other := show.NewPatch(glpatch.Surfaces{Names: []string{"left-wing"}})
	_, err := other.AddShaderInstance(show.AddShader("Main", mainSrc), glpatch.InstanceConfig{ID: "solo"})
	require.NoError(t, err)

	lps, err := glpatch.NewDefaultLinker().LinkAll(context.Background(), show.Clone(), glpatch.Request{})
	require.NoError(t, err)
	require.Len(t, lps, 2)
	assert.Len(t, lps[0].Components, 2)
	assert.Len(t, lps[1].Components, 1)
	assert.Equal(t, []*glpatch.Patch{p, other}, show.Patches())
	assert.Equal(t, []*glpatch.Patch{p, other}, show.PatchesFor("left-wing"))
	assert.Equal(t, []*glpatch.Patch{p}, show.PatchesFor("right-wing"))
}

func TestPatchEditing(t *testing.T) {
	show, p := crossFadeShow(t)
	assert.Equal(t, []string{"main", "crossFade"}, p.Instances())
	assert.Equal(t, []string{"main", "other"}, show.Channels())

	// Same source is the same shader.
	assert.Equal(t, "main", show.AddShader("Another title", mainSrc))

	si, ok := p.FindShaderInstanceFor("main")
	require.True(t, ok)
	assert.Equal(t, glpatch.DefaultChannel, si.Channel)
	second, err := p.AddShaderInstance("main", glpatch.InstanceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "main2", second.ID)

	xf, _ := p.FindShaderInstanceFor("crossFade")
	xf.Link("a", glpatch.ShaderOutLink{InstanceID: second.ID, PortID: "gl_FragColor"})
	require.NoError(t, p.Remove(second.ID))
	_, linked := xf.IncomingLink("a")
	assert.False(t, linked, "links to removed instance are dropped")
	assert.ErrorIs(t, p.Remove(second.ID), glpatch.ErrMissingInstance)

	merged := show.AddPatch(&glpatch.Patch{Surfaces: glpatch.AllSurfaces()})
	assert.Same(t, p, merged)
	assert.Len(t, show.Patches(), 1)
}

func TestDataSourceDedupe(t *testing.T) {
	show := glpatch.NewShow("Sources")
	a := show.AddDataSource(glpatch.TimeSource())
	b := show.AddDataSource(glpatch.TimeSource())
	assert.Equal(t, a, b)
	s1 := show.AddDataSource(glpatch.SliderSource("Fade", 2, 0, 1))
	s2 := show.AddDataSource(glpatch.SliderSource("Fade", 0.5, 0, 1))
	assert.Equal(t, "fade", s1)
	assert.Equal(t, "fade2", s2)
	ds, _ := show.DataSource(s1)
	assert.Equal(t, float32(1), ds.Initial, "initial is clamped")
	assert.Equal(t, "in_fade", ds.VarName(s1))
	assert.Equal(t, "gl_FragCoord.xy", glpatch.RasterCoordinateSource().VarName("x"))
	assert.Equal(t, []string{"time", "fade", "fade2"}, show.DataSourceIDs())
}

func TestVectorConstantSources(t *testing.T) {
	res := glpatch.Vec2Source("Fixed Resolution", glbuild.Resolution, ms2.Vec{X: 640, Y: 360})
	assert.Equal(t, "vec2(640., 360.)", res.VarName("any"))
	assert.True(t, res.IsImplicit())
	loc := glpatch.Vec3Source("Origin", glbuild.XYCoordinate, ms3.Vec{X: 1, Y: -0.5})
	assert.Equal(t, "vec3(1., -0.5, 0.)", loc.Expr)
	assert.Panics(t, func() { glpatch.Vec2Source("Bad", glbuild.Time, ms2.Vec{}) })

	show := glpatch.NewShow("Constants")
	p := show.NewPatch(glpatch.AllSurfaces())
	si, err := p.AddShaderInstance(show.AddShader("Res", "uniform vec2 resolution;\nvec4 main() { return vec4(resolution, 0., 1.); }"), glpatch.InstanceConfig{})
	require.NoError(t, err)
	require.NoError(t, p.Link(si.ID, "resolution", glpatch.DataSourceLink{DataSourceID: show.AddDataSource(res)}))
	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	assert.Contains(t, lp.GLSL(), "return vec4(vec2(640., 360.), 0., 1.);")
	assert.NotContains(t, lp.GLSL(), "uniform vec2")
}
