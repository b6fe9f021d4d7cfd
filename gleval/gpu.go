//go:build !tinygo && cgo

package gleval

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/glbuild"
)

const quadVertexSrc = glbuild.VersionStr + `layout(location = 0) in vec2 aPos;
void main() {
    gl_Position = vec4(aPos, 0., 1.);
}
` + "\x00"

// Init1x1GLFW starts a 1x1 sized GLFW window so that programs can be compiled
// without a visible surface. Call terminate when done with the GPU.
func Init1x1GLFW() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "glpatch",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// Context compiles fragment shaders for a full screen quad on the current
// GL context. It implements glpatch.GLContext and TextureContext.
type Context struct {
	vao, vbo uint32
}

// NewContext sets up the quad vertex buffers on the current GL context.
func NewContext() (*Context, error) {
	c := &Context{}
	gl.GenVertexArrays(1, &c.vao)
	gl.BindVertexArray(c.vao)
	gl.GenBuffers(1, &c.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, c.vbo)
	vertices := []float32{
		-1, -1,
		1, -1,
		-1, 1,
		-1, 1,
		1, -1,
		1, 1,
	}
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(vertices), gl.Ptr(vertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 0, gl.PtrOffset(0))
	if err := glgl.Err(); err != nil {
		return nil, fmt.Errorf("creating quad: %w", err)
	}
	return c, nil
}

// Compile implements glpatch.GLContext. The GLSL version directive is added
// when the source lacks one.
func (c *Context) Compile(fragmentSrc string) (glpatch.GPUProgram, error) {
	if !strings.HasPrefix(fragmentSrc, "#version") {
		fragmentSrc = glbuild.VersionStr + fragmentSrc
	}
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   quadVertexSrc,
		Fragment: fragmentSrc + "\x00",
	})
	if err != nil {
		return nil, err
	}
	return &program{prog: prog}, nil
}

// Draw renders the quad with the current program on a width*height viewport.
func (c *Context) Draw(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.BindVertexArray(c.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
}

// ReadImage reads back the bottom-left width*height pixels of the current
// framebuffer, top row first.
func (c *Context) ReadImage(width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&img.Pix[0]))
	if err := glgl.Err(); err != nil {
		return nil, fmt.Errorf("reading pixels: %w", err)
	}
	flipRows(img)
	return img, nil
}

// Release deletes the quad buffers.
func (c *Context) Release() {
	gl.DeleteBuffers(1, &c.vbo)
	gl.DeleteVertexArrays(1, &c.vao)
}

// NewTexture implements TextureContext with an RGB32F texture sampled with
// nearest filtering.
func (c *Context) NewTexture(width, height int, data []ms3.Vec) (Texture, error) {
	if len(data) != width*height || len(data) == 0 {
		return nil, errEmptyGrid
	}
	t := &texture{}
	gl.GenTextures(1, &t.id)
	if t.id == 0 {
		return nil, glErrOrMessage("zero texture id")
	}
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGB32F, int32(width), int32(height), 0, gl.RGB, gl.FLOAT, gl.Ptr(&data[0]))
	if err := glgl.Err(); err != nil {
		t.Release()
		return nil, fmt.Errorf("uploading pixel locations: %w", err)
	}
	return t, nil
}

type program struct {
	prog glgl.Program
}

func (p *program) Uniform(name string) (glpatch.Uniform, bool) {
	loc, err := p.prog.UniformLocation(name + "\x00")
	if err != nil || loc < 0 {
		return nil, false
	}
	return uniform(loc), true
}

func (p *program) Use()     { p.prog.Bind() }
func (p *program) Release() { p.prog.Delete() }

type uniform int32

func (u uniform) SetInt(v int32) { gl.Uniform1i(int32(u), v) }

func (u uniform) SetFloats(v ...float32) {
	switch len(v) {
	case 1:
		gl.Uniform1f(int32(u), v[0])
	case 2:
		gl.Uniform2f(int32(u), v[0], v[1])
	case 3:
		gl.Uniform3f(int32(u), v[0], v[1], v[2])
	case 4:
		gl.Uniform4f(int32(u), v[0], v[1], v[2], v[3])
	}
}

type texture struct {
	id uint32
}

func (t *texture) Bind(unit int) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, t.id)
}

func (t *texture) Release() {
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

func glErrOrMessage(defaultMsg string) (err error) {
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
