package stage_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/gleval"
	"github.com/soypat/glpatch/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func solidShow(t *testing.T, src string) (*glpatch.Show, *glpatch.Patch) {
	t.Helper()
	show := glpatch.NewShow("Solid")
	p := show.NewPatch(glpatch.Surfaces{Names: []string{"left"}})
	_, err := p.AddShaderInstance(show.AddShader("Solid", src), glpatch.InstanceConfig{})
	require.NoError(t, err)
	return show, p
}

const (
	redSrc    = "vec4 main() { return vec4(1., 0., 0., 1.); }"
	brokenSrc = "vec4 main() { return vec4(1., 0., 0., 1.);"
)

func TestRunnerSwapsAtTick(t *testing.T) {
	r := stage.NewRunner(stage.Config{Logger: quietLogger()})
	ctx := context.Background()
	initial := r.Current()
	assert.True(t, initial.Fallback)
	assert.Same(t, glpatch.GuruMeditation(), initial.For("left"))

	queued, err := r.Housekeep(ctx)
	require.NoError(t, err)
	assert.False(t, queued, "nothing submitted")

	show, _ := solidShow(t, redSrc)
	r.Submit(show)
	// Edits after submission do not reach the snapshot.
	show.AddShader("Other", brokenSrc)
	queued, err = r.Housekeep(ctx)
	require.NoError(t, err)
	require.True(t, queued)
	assert.Same(t, initial, r.Current(), "plan swaps only at a tick")

	plan, swapped := r.Tick()
	require.True(t, swapped)
	assert.Equal(t, uint64(1), plan.Generation)
	assert.False(t, plan.Fallback)
	require.Len(t, plan.Entries, 1)
	assert.Contains(t, plan.For("left").GLSL(), "vec4(1., 0., 0., 1.)")
	assert.Same(t, glpatch.GuruMeditation(), plan.For("right"))

	again, swapped := r.Tick()
	assert.False(t, swapped)
	assert.Same(t, plan, again)
}

func TestRunnerKeepsLastGood(t *testing.T) {
	r := stage.NewRunner(stage.Config{Logger: quietLogger()})
	ctx := context.Background()

	broken, _ := solidShow(t, brokenSrc)
	r.Submit(broken)
	_, err := r.Housekeep(ctx)
	assert.ErrorIs(t, err, glpatch.ErrShaderSource)
	plan, _ := r.Tick()
	assert.True(t, plan.Fallback)
	assert.Same(t, glpatch.GuruMeditation(), plan.For("left"))

	good, _ := solidShow(t, redSrc)
	r.Submit(good)
	_, err = r.Housekeep(ctx)
	require.NoError(t, err)
	goodPlan, _ := r.Tick()

	r.Submit(broken)
	_, err = r.Housekeep(ctx)
	require.Error(t, err)
	plan, swapped := r.Tick()
	require.True(t, swapped)
	assert.True(t, plan.Fallback)
	assert.Equal(t, uint64(3), plan.Generation)
	assert.Same(t, goodPlan.For("left"), plan.For("left"))
}

func TestRunnerRun(t *testing.T) {
	r := stage.NewRunner(stage.Config{Logger: quietLogger()})
	show, _ := solidShow(t, redSrc)
	r.Submit(show)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := r.Run(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	plan, swapped := r.Tick()
	assert.True(t, swapped)
	assert.False(t, plan.Fallback)
}

type fakeGL struct {
	compiles int
	fail     bool
}

func (gl *fakeGL) Compile(src string) (glpatch.GPUProgram, error) {
	gl.compiles++
	if gl.fail && src != glpatch.GuruMeditation().GLSL() {
		return nil, assert.AnError
	}
	return fakeProgram{}, nil
}

type fakeProgram struct{}

func (fakeProgram) Uniform(string) (glpatch.Uniform, bool) { return nil, false }
func (fakeProgram) Use()                                   {}
func (fakeProgram) Release()                               {}

type countingDrawer struct{ draws int }

func (d *countingDrawer) Draw(width, height int) { d.draws++ }

func TestRendererFallsBackOnCompileError(t *testing.T) {
	r := stage.NewRunner(stage.Config{Logger: quietLogger()})
	show, _ := solidShow(t, redSrc)
	r.Submit(show)
	_, err := r.Housekeep(context.Background())
	require.NoError(t, err)

	gl := &fakeGL{fail: true}
	player := gleval.NewPlayer(gl, gleval.PlayerConfig{Logger: quietLogger()})
	drawer := &countingDrawer{}
	rd := stage.NewRenderer("left", r, player, drawer)
	require.NoError(t, rd.Frame(64, 32))
	assert.Equal(t, 1, drawer.draws)
	assert.Equal(t, 2, gl.compiles, "failed program then guru meditation")
	assert.Equal(t, float32(64), player.Resolution.Vec().X)

	// The failed program is not recompiled every frame.
	require.NoError(t, rd.Frame(64, 32))
	assert.Equal(t, 2, gl.compiles)
	assert.Equal(t, 2, drawer.draws)
}

type imageDrawer struct {
	countingDrawer
	fill color.RGBA
}

func (d *imageDrawer) ReadImage(width, height int) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, d.fill)
		}
	}
	return img, nil
}

func TestWritePNG(t *testing.T) {
	show, p := solidShow(t, redSrc)
	lp, err := glpatch.LinkPatch(show, p.ID, glpatch.Request{})
	require.NoError(t, err)
	player := gleval.NewPlayer(&fakeGL{}, gleval.PlayerConfig{Logger: quietLogger()})
	drawer := &imageDrawer{fill: color.RGBA{R: 255, A: 255}}

	var buf bytes.Buffer
	require.NoError(t, stage.WritePNG(&buf, player, drawer, lp, 4, 2))
	assert.Equal(t, 1, drawer.draws)
	assert.Equal(t, float32(2), player.Resolution.Vec().Y)
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
	r, g, _, _ := img.At(3, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)

	_, err = stage.Snapshot(player, drawer, lp, 4, 2)
	require.NoError(t, err)
	programs, _ := player.Stats()
	assert.Equal(t, 1, programs, "program cached between snapshots")

	_, err = stage.Snapshot(gleval.NewPlayer(&fakeGL{fail: true}, gleval.PlayerConfig{Logger: quietLogger()}), drawer, lp, 4, 2)
	assert.ErrorIs(t, err, assert.AnError)
}
