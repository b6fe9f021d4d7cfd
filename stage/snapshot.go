package stage

import (
	"image"
	"image/png"
	"io"

	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/gleval"
)

// ImageDrawer draws the current program and reads back the result.
type ImageDrawer interface {
	Drawer
	ReadImage(width, height int) (*image.RGBA, error)
}

// Snapshot renders one frame of lp with player and returns it. Unlike
// Renderer.Frame compile errors are returned instead of replaced.
func Snapshot(player *gleval.Player, drawer ImageDrawer, lp *glpatch.LinkedPatch, width, height int) (*image.RGBA, error) {
	player.Resolution.Set(width, height)
	player.PreviewResolution.Set(width, height)
	prog, err := player.Program(lp)
	if err != nil {
		return nil, err
	}
	prog.Update()
	drawer.Draw(width, height)
	return drawer.ReadImage(width, height)
}

// WritePNG renders a snapshot of lp and encodes it as PNG.
func WritePNG(w io.Writer, player *gleval.Player, drawer ImageDrawer, lp *glpatch.LinkedPatch, width, height int) error {
	img, err := Snapshot(player, drawer, lp, width, height)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
