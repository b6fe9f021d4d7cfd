//go:build tinygo || !cgo

package stage

import (
	"context"
	"errors"

	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/gleval"
)

var errNoCGO = errors.New("require cgo for GL rendering")

// PreviewConfig configures the preview window.
type PreviewConfig struct {
	Title         string
	Width, Height int
	Surface       string
	FPS           int
	Player        gleval.PlayerConfig
}

// Preview requires CGo.
func Preview(ctx context.Context, runner *Runner, cfg PreviewConfig) error {
	return errNoCGO
}

// RenderPNGFile requires CGo.
func RenderPNGFile(filename string, lp *glpatch.LinkedPatch, width, height int, cfg gleval.PlayerConfig) error {
	return errNoCGO
}
