package gleval_test

import (
	"image/color"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/glbuild"
	"github.com/soypat/glpatch/gleval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGL struct {
	compiles int
	programs []*fakeProgram
	textures []*fakeTexture
}

func (gl *fakeGL) Compile(src string) (glpatch.GPUProgram, error) {
	gl.compiles++
	p := newFakeProgram()
	gl.programs = append(gl.programs, p)
	return p, nil
}

func (gl *fakeGL) NewTexture(width, height int, data []ms3.Vec) (gleval.Texture, error) {
	t := &fakeTexture{unit: -1}
	gl.textures = append(gl.textures, t)
	return t, nil
}

type fakeProgram struct {
	// only restricts the uniforms the program has when not nil.
	only     map[string]bool
	floats   map[string][]float32
	ints     map[string]int32
	released int
}

func newFakeProgram(only ...string) *fakeProgram {
	p := &fakeProgram{floats: make(map[string][]float32), ints: make(map[string]int32)}
	if len(only) > 0 {
		p.only = make(map[string]bool)
		for _, name := range only {
			p.only[name] = true
		}
	}
	return p
}

func (p *fakeProgram) Uniform(name string) (glpatch.Uniform, bool) {
	if p.only != nil && !p.only[name] {
		return nil, false
	}
	return fakeUniform{p: p, name: name}, true
}

func (p *fakeProgram) Use()     {}
func (p *fakeProgram) Release() { p.released++ }

type fakeUniform struct {
	p    *fakeProgram
	name string
}

func (u fakeUniform) SetFloats(v ...float32) { u.p.floats[u.name] = v }
func (u fakeUniform) SetInt(v int32)         { u.p.ints[u.name] = v }

type fakeTexture struct {
	unit     int
	released int
}

func (t *fakeTexture) Bind(unit int) { t.unit = unit }
func (t *fakeTexture) Release()      { t.released++ }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func linkedPulse(t *testing.T) *glpatch.LinkedPatch {
	t.Helper()
	show := glpatch.NewShow("Pulse")
	p := show.NewPatch(glpatch.AllSurfaces())
	si, err := p.AddShaderInstance(show.AddShader("Pulse", "uniform float fade;\nuniform float time;\nvec4 main() { return vec4(fade * time); }"), glpatch.InstanceConfig{})
	require.NoError(t, err)
	require.NoError(t, p.Link(si.ID, "fade", glpatch.DataSourceLink{DataSourceID: show.AddDataSource(glpatch.SliderSource("Fade", 0.5, 0, 1))}))
	require.NoError(t, p.Link(si.ID, "time", glpatch.DataSourceLink{DataSourceID: show.AddDataSource(glpatch.TimeSource())}))
	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	return lp
}

func TestPlayerCachesPrograms(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := gleval.NewClock(func() time.Time { return now })
	gl := &fakeGL{}
	player := gleval.NewPlayer(gl, gleval.PlayerConfig{Logger: quietLogger(), Clock: clock})
	lp := linkedPulse(t)

	prog, err := player.Program(lp)
	require.NoError(t, err)
	again, err := player.Program(lp)
	require.NoError(t, err)
	assert.Same(t, prog, again)
	assert.Equal(t, 1, gl.compiles)
	programs, feeds := player.Stats()
	assert.Equal(t, 1, programs)
	assert.Equal(t, 2, feeds)

	now = now.Add(1500 * time.Millisecond)
	prog.Update()
	gpu := gl.programs[0]
	assert.Equal(t, []float32{0.5}, gpu.floats["in_fade"])
	assert.Equal(t, []float32{1.5}, gpu.floats["in_time"])

	assert.True(t, player.SetSlider("fade", 3))
	assert.False(t, player.SetSlider("speed", 3))
	prog.Update()
	assert.Equal(t, []float32{1}, gpu.floats["in_fade"], "slider value is clamped")

	// Used since the last pass: kept.
	player.ReleaseUnused()
	programs, feeds = player.Stats()
	assert.Equal(t, 1, programs)
	assert.Equal(t, 2, feeds)
	assert.Zero(t, gpu.released)

	player.ReleaseUnused()
	programs, feeds = player.Stats()
	assert.Zero(t, programs)
	assert.Zero(t, feeds)
	assert.Equal(t, 1, gpu.released)

	// Released feeds are recreated on demand.
	_, err = player.Program(lp)
	require.NoError(t, err)
	assert.Equal(t, 2, gl.compiles)
	player.Release()
	programs, feeds = player.Stats()
	assert.Zero(t, programs+feeds)
}

func TestOpenDataFeed(t *testing.T) {
	player := gleval.NewPlayer(&fakeGL{}, gleval.PlayerConfig{Logger: quietLogger()})
	red := glpatch.ColorPickerSource("Tint", "red")
	f1 := player.OpenDataFeed("tint", red)
	require.NotNil(t, f1)
	assert.Same(t, f1, player.OpenDataFeed("tint", red))
	f2 := player.OpenDataFeed("tint", glpatch.ColorPickerSource("Tint", "blue"))
	assert.NotSame(t, f1, f2, "changed data source gets a new feed")

	prog := newFakeProgram()
	b := f2.Bind(prog, "in_tint")
	require.True(t, b.IsValid())
	b.SetOnProgram()
	assert.Equal(t, []float32{0, 0, 1, 1}, prog.floats["in_tint"])

	assert.Nil(t, player.OpenDataFeed("k", glpatch.ConstantSource("K", glbuild.Float, "1.")))
}

func TestColorFeed(t *testing.T) {
	prog := newFakeProgram()
	b := gleval.ColorFeed(color.RGBA{R: 255, G: 51, A: 255}).Bind(prog, "c")
	b.SetOnProgram()
	assert.InDeltaSlice(t, []float32{1, 0.2, 0, 1}, prog.floats["c"], 1e-6)
}

func TestStructFeedBinding(t *testing.T) {
	feed := gleval.ModelInfoFeed(gleval.BoundsModel(ms3.Box{Min: ms3.Vec{X: -1, Y: 0, Z: -2}, Max: ms3.Vec{X: 1, Y: 4, Z: 2}}))
	prog := newFakeProgram("in_model.center")
	b := feed.Bind(prog, "in_model")
	require.True(t, b.IsValid(), "one field in use is enough")
	b.SetOnProgram()
	assert.Equal(t, []float32{0, 2, 0}, prog.floats["in_model.center"])
	assert.NotContains(t, prog.floats, "in_model.extents")

	unused := gleval.FixtureInfoFeed(gleval.Fixture{}).Bind(newFakeProgram("other"), "in_fixture")
	assert.False(t, unused.IsValid())
}

func TestPixelLocationFeed(t *testing.T) {
	gl := &fakeGL{}
	_, err := gleval.NewPixelLocationFeed(gl, 2, 2, make([]ms3.Vec, 3))
	assert.Error(t, err)
	_, err = gleval.NewPixelLocationFeed(nil, 1, 1, make([]ms3.Vec, 1))
	assert.Error(t, err)

	feed, err := gleval.NewPixelLocationFeed(gl, 2, 1, []ms3.Vec{{X: 1}, {X: 2}})
	require.NoError(t, err)
	require.Len(t, gl.textures, 1)
	prog := newFakeProgram("in_px_texture")
	feed.Use()
	b := feed.Bind(prog, "in_px")
	require.True(t, b.IsValid())
	b.SetOnProgram()
	assert.Equal(t, 0, gl.textures[0].unit)
	assert.Equal(t, int32(0), prog.ints["in_px_texture"])
	b.Release()
	feed.Release()
	assert.Equal(t, 1, gl.textures[0].released)
}

func TestPlayerPixelLocation(t *testing.T) {
	gl := &fakeGL{}
	player := gleval.NewPlayer(gl, gleval.PlayerConfig{
		Logger:      quietLogger(),
		Pixels:      []ms3.Vec{{}, {}},
		PixelsWidth: 2, PixelsHeight: 1,
	})
	f := player.OpenDataFeed("px", glpatch.PixelLocationSource())
	require.NotNil(t, f)
	assert.Len(t, gl.textures, 1)
}
