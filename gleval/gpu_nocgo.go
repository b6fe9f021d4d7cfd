//go:build tinygo || !cgo

package gleval

import (
	"errors"
	"image"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpatch"
)

var errNoCGO = errors.New("GPU programs require CGo and are not supported on TinyGo")

// Init1x1GLFW requires CGo.
func Init1x1GLFW() (terminate func(), err error) {
	return func() {}, errNoCGO
}

// Context requires CGo; every method fails.
type Context struct{}

// NewContext requires CGo.
func NewContext() (*Context, error) { return nil, errNoCGO }

func (c *Context) Compile(fragmentSrc string) (glpatch.GPUProgram, error) { return nil, errNoCGO }

func (c *Context) Draw(width, height int) {}

func (c *Context) Release() {}

func (c *Context) NewTexture(width, height int, data []ms3.Vec) (Texture, error) {
	return nil, errNoCGO
}

func (c *Context) ReadImage(width, height int) (*image.RGBA, error) { return nil, errNoCGO }
