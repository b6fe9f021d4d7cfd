//go:build !tinygo && cgo

package stage

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/gleval"
)

// PreviewConfig configures the preview window.
type PreviewConfig struct {
	Title         string
	Width, Height int
	// Surface rendered in the window.
	Surface string
	// FPS limits the frame rate. Defaults to 60.
	FPS int
	// Player configuration. The clock defaults to the GLFW timer.
	Player gleval.PlayerConfig
}

// Preview opens a window rendering the runner's current plan until the
// window is closed or ctx is done. Housekeeping must run elsewhere, e.g. in
// Runner.Run. Preview locks the calling goroutine to its OS thread.
func Preview(ctx context.Context, runner *Runner, cfg PreviewConfig) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if cfg.FPS <= 0 {
		cfg.FPS = 60
	}
	window, term, err := startGLFW(cfg.Width, cfg.Height, cfg.Title, true)
	if err != nil {
		return err
	}
	defer term()
	glctx, err := gleval.NewContext()
	if err != nil {
		return err
	}
	defer glctx.Release()
	if cfg.Player.Logger == nil {
		cfg.Player.Logger = runner.log
	}
	if cfg.Player.Clock == nil {
		epoch := time.Now()
		cfg.Player.Clock = gleval.NewClock(func() time.Time {
			return epoch.Add(time.Duration(glfw.GetTime() * float64(time.Second)))
		})
	}
	player := gleval.NewPlayer(glctx, cfg.Player)
	defer player.Release()
	rd := NewRenderer(cfg.Surface, runner, player, glctx)
	for !window.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		width, height := window.GetFramebufferSize()
		player.PreviewResolution.Set(width, height)
		if err := rd.Frame(width, height); err != nil {
			return err
		}
		window.SwapBuffers()
		glfw.PollEvents()
		time.Sleep(time.Second / time.Duration(cfg.FPS))
	}
	return nil
}

// RenderPNGFile renders one frame of lp on a hidden window and saves it as a
// PNG image. It locks the calling goroutine to its OS thread.
func RenderPNGFile(filename string, lp *glpatch.LinkedPatch, width, height int, cfg gleval.PlayerConfig) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	_, term, err := startGLFW(width, height, "glpatch snapshot", false)
	if err != nil {
		return err
	}
	defer term()
	glctx, err := gleval.NewContext()
	if err != nil {
		return err
	}
	defer glctx.Release()
	player := gleval.NewPlayer(glctx, cfg)
	defer player.Release()
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	if err := WritePNG(fp, player, glctx, lp, width, height); err != nil {
		return err
	}
	return fp.Sync()
}

func startGLFW(width, height int, title string, visible bool) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	if !visible {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}
	if title == "" {
		title = "glpatch preview"
	}
	window, err = glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	return window, glfw.Terminate, nil
}
