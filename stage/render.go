package stage

import (
	"log/slog"

	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/gleval"
)

// Drawer draws the current program over a width*height surface.
type Drawer interface {
	Draw(width, height int)
}

// Renderer draws one surface of the runner's current plan. It must be used
// from the goroutine owning the GL context.
type Renderer struct {
	Surface string
	runner  *Runner
	player  *gleval.Player
	drawer  Drawer
	log     *slog.Logger
	failed  *glpatch.LinkedPatch
}

// NewRenderer returns a renderer for surface.
func NewRenderer(surface string, runner *Runner, player *gleval.Player, drawer Drawer) *Renderer {
	return &Renderer{Surface: surface, runner: runner, player: player, drawer: drawer, log: runner.log}
}

// Frame renders one frame. Programs that fail to compile are replaced by the
// guru meditation program. Unused programs and feeds are released after a
// plan swap.
func (rd *Renderer) Frame(width, height int) error {
	plan, swapped := rd.runner.Tick()
	if swapped {
		rd.player.ReleaseUnused()
		rd.failed = nil
	}
	rd.player.Resolution.Set(width, height)
	lp := plan.For(rd.Surface)
	if lp == rd.failed {
		lp = glpatch.GuruMeditation()
	}
	prog, err := rd.player.Program(lp)
	if err != nil {
		rd.log.Error("falling back to guru meditation", slog.String("surface", rd.Surface), slog.Any("err", err))
		rd.failed = lp
		prog, err = rd.player.Program(glpatch.GuruMeditation())
		if err != nil {
			return err
		}
	}
	prog.Update()
	rd.drawer.Draw(width, height)
	return nil
}
