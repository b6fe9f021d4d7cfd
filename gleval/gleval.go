// Package gleval runs linked patches on a GL context. It provides data feeds
// for the core data sources and a Player caching compiled programs and feeds
// between housekeeping passes.
package gleval

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpatch"
)

var (
	errNoTexture = errors.New("GL context does not support textures")
	errEmptyGrid = errors.New("empty pixel location grid")
)

// Texture is a 2D texture owned by a GL context.
type Texture interface {
	// Bind binds the texture to a texture unit.
	Bind(unit int)
	Release()
}

// TextureContext is implemented by GL contexts able to upload pixel location textures.
type TextureContext interface {
	NewTexture(width, height int, data []ms3.Vec) (Texture, error)
}

// Feed is a data feed uploading values produced by a function to a uniform.
// Values is called once per binding per frame.
type Feed struct {
	*glpatch.RefCounter
	values func() []float32
}

// NewFeed returns a feed uploading values(). free runs when the feed's last
// reference is released and may be nil.
func NewFeed(values func() []float32, free func()) *Feed {
	return &Feed{RefCounter: glpatch.NewRefCounter(free), values: values}
}

// Bind implements glpatch.DataFeed.
func (f *Feed) Bind(prog glpatch.GPUProgram, varName string) glpatch.Binding {
	u, ok := prog.Uniform(varName)
	return &uniformBinding{u: u, ok: ok, values: f.values}
}

type uniformBinding struct {
	u      glpatch.Uniform
	ok     bool
	values func() []float32
}

func (b *uniformBinding) IsValid() bool { return b.ok }
func (b *uniformBinding) Release()      { b.u = nil }
func (b *uniformBinding) SetOnProgram() {
	if b.u != nil {
		b.u.SetFloats(b.values()...)
	}
}

// Clock returns the seconds elapsed since it was created. The zero value
// starts at the first call to Seconds.
type Clock struct {
	once  sync.Once
	start time.Time
	now   func() time.Time
}

// NewClock returns a clock reading time from now, or time.Now if nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, start: now()}
}

// Seconds returns the elapsed time.
func (c *Clock) Seconds() float32 {
	c.once.Do(func() {
		if c.now == nil {
			c.now = time.Now
			c.start = c.now()
		}
	})
	return float32(c.now().Sub(c.start).Seconds())
}

// TimeFeed uploads the seconds elapsed on clock.
func TimeFeed(clock *Clock) *Feed {
	return NewFeed(func() []float32 { return []float32{clock.Seconds()} }, nil)
}

// Size is a surface size shared by resolution feeds. It is safe for
// concurrent use.
type Size struct {
	mu sync.Mutex
	v  ms2.Vec
}

// Set stores the size in pixels.
func (s *Size) Set(width, height int) {
	s.mu.Lock()
	s.v = ms2.Vec{X: float32(width), Y: float32(height)}
	s.mu.Unlock()
}

// Vec returns the size in pixels.
func (s *Size) Vec() ms2.Vec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// ResolutionFeed uploads size as a vec2.
func ResolutionFeed(size *Size) *Feed {
	return NewFeed(func() []float32 {
		v := size.Vec()
		return []float32{v.X, v.Y}
	}, nil)
}

// Slider holds the current value of a slider data source.
type Slider struct {
	mu       sync.Mutex
	min, max float32
	v        float32
}

// NewSlider returns a slider initialized from ds.
func NewSlider(ds glpatch.DataSource) *Slider {
	return &Slider{min: ds.Min, max: ds.Max, v: ds.Initial}
}

// Set stores v clamped to the slider range.
func (s *Slider) Set(v float32) {
	s.mu.Lock()
	s.v = math32.Max(s.min, math32.Min(s.max, v))
	s.mu.Unlock()
}

// Value returns the current value.
func (s *Slider) Value() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// SliderFeed uploads the slider's value.
func SliderFeed(s *Slider) *Feed {
	return NewFeed(func() []float32 { return []float32{s.Value()} }, nil)
}

// ColorFeed uploads c as a vec4 with components in [0, 1].
func ColorFeed(c color.RGBA) *Feed {
	v := []float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, float32(c.A) / 255}
	return NewFeed(func() []float32 { return v }, nil)
}

// Model is the bounding information of the model being lit.
type Model struct {
	Center  ms3.Vec
	Extents ms3.Vec
}

// BoundsModel returns the model enclosing bb.
func BoundsModel(bb ms3.Box) Model {
	return Model{Center: bb.Center(), Extents: bb.Size()}
}

// Fixture is the placement of the fixture being rendered.
type Fixture struct {
	Position ms3.Vec
	Rotation ms3.Vec
}

// StructFeed uploads to the fields of a struct uniform, e.g. "in_modelInfo.center".
type StructFeed struct {
	*glpatch.RefCounter
	fields []string
	values func() [][]float32
}

// ModelInfoFeed uploads m to a ModelInfo uniform.
func ModelInfoFeed(m Model) *StructFeed {
	return &StructFeed{
		RefCounter: glpatch.NewRefCounter(nil),
		fields:     []string{"center", "extents"},
		values: func() [][]float32 {
			return [][]float32{vec3(m.Center), vec3(m.Extents)}
		},
	}
}

// FixtureInfoFeed uploads f to a FixtureInfo uniform.
func FixtureInfoFeed(f Fixture) *StructFeed {
	return &StructFeed{
		RefCounter: glpatch.NewRefCounter(nil),
		fields:     []string{"position", "rotation"},
		values: func() [][]float32 {
			return [][]float32{vec3(f.Position), vec3(f.Rotation)}
		},
	}
}

func vec3(v ms3.Vec) []float32 {
	a := v.Array()
	return a[:]
}

// Bind implements glpatch.DataFeed. The binding is valid when the program
// uses at least one field.
func (f *StructFeed) Bind(prog glpatch.GPUProgram, varName string) glpatch.Binding {
	b := &structBinding{values: f.values, fields: make([]glpatch.Uniform, len(f.fields))}
	for i, field := range f.fields {
		u, ok := prog.Uniform(varName + "." + field)
		if ok {
			b.fields[i] = u
			b.valid = true
		}
	}
	return b
}

type structBinding struct {
	fields []glpatch.Uniform
	values func() [][]float32
	valid  bool
}

func (b *structBinding) IsValid() bool { return b.valid }
func (b *structBinding) Release()      { b.fields = nil }
func (b *structBinding) SetOnProgram() {
	values := b.values()
	for i, u := range b.fields {
		if u != nil {
			u.SetFloats(values[i]...)
		}
	}
}

// PixelLocationFeed uploads a grid of model-space pixel locations as a
// texture read through the pixel accessor.
type PixelLocationFeed struct {
	*glpatch.RefCounter
	tex  Texture
	unit int
}

// NewPixelLocationFeed uploads the width*height grid of locations, stored
// row by row. The texture is released with the feed's last reference.
func NewPixelLocationFeed(ctx TextureContext, width, height int, locations []ms3.Vec) (*PixelLocationFeed, error) {
	if ctx == nil {
		return nil, errNoTexture
	} else if width <= 0 || height <= 0 || len(locations) != width*height {
		return nil, errEmptyGrid
	}
	tex, err := ctx.NewTexture(width, height, locations)
	if err != nil {
		return nil, err
	}
	return &PixelLocationFeed{RefCounter: glpatch.NewRefCounter(tex.Release), tex: tex}, nil
}

// Bind implements glpatch.DataFeed.
func (f *PixelLocationFeed) Bind(prog glpatch.GPUProgram, varName string) glpatch.Binding {
	u, ok := prog.Uniform(varName + "_texture")
	return &textureBinding{u: u, ok: ok, tex: f.tex, unit: f.unit}
}

type textureBinding struct {
	u    glpatch.Uniform
	ok   bool
	tex  Texture
	unit int
}

func (b *textureBinding) IsValid() bool { return b.ok }
func (b *textureBinding) Release()      { b.u = nil }
func (b *textureBinding) SetOnProgram() {
	if b.u == nil {
		return
	}
	b.tex.Bind(b.unit)
	b.u.SetInt(int32(b.unit))
}

// flipRows mirrors img vertically. GL framebuffers store the bottom row first.
func flipRows(img *image.RGBA) {
	h := img.Rect.Dy()
	rowLen := 4 * img.Rect.Dx()
	tmp := make([]byte, rowLen)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : y*img.Stride+rowLen]
		bot := img.Pix[(h-1-y)*img.Stride : (h-1-y)*img.Stride+rowLen]
		copy(tmp, top)
		copy(top, bot)
		copy(bot, tmp)
	}
}
