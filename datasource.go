package glpatch

import (
	"image/color"
	"strings"
	"unicode"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpatch/glbuild"
	"golang.org/x/image/colornames"
)

// DataSourceKind names the runtime feed backing a data source.
type DataSourceKind string

const (
	KindSlider            DataSourceKind = "slider"
	KindTime              DataSourceKind = "time"
	KindResolution        DataSourceKind = "resolution"
	KindPreviewResolution DataSourceKind = "preview-resolution"
	KindRasterCoordinate  DataSourceKind = "raster-coordinate"
	KindModelInfo         DataSourceKind = "model-info"
	KindFixtureInfo       DataSourceKind = "fixture-info"
	KindPixelLocation     DataSourceKind = "pixel-location"
	KindColorPicker       DataSourceKind = "color-picker"
	KindConstant          DataSourceKind = "constant"
)

// DeclStyle says how a data source is made visible to GLSL.
type DeclStyle uint8

const (
	// UniformScalar data sources are declared as a uniform of a builtin type.
	UniformScalar DeclStyle = iota
	// UniformStruct data sources are declared as a uniform of a struct type.
	UniformStruct
	// SamplerAccessor data sources are read through an accessor function
	// sampling a texture uniform.
	SamplerAccessor
	// Implicit data sources are supplied by the execution environment and are
	// referenced through an expression; nothing is declared.
	Implicit
)

// DataSource is an external value consumed by shaders. DataSources are
// comparable values; a show stores equal data sources once.
type DataSource struct {
	Kind        DataSourceKind
	Title       string
	ContentType glbuild.ContentType
	GLSLType    string
	Style       DeclStyle
	// Expr is the GLSL expression referencing an Implicit data source.
	Expr string
	// Slider range.
	Initial, Min, Max, Step float32
	// Color is the initial value of a color picker.
	Color color.RGBA
}

// SliderSource returns a float slider. initial is clamped to [min, max].
func SliderSource(title string, initial, min, max float32) DataSource {
	if min > max {
		min, max = max, min
	}
	return DataSource{
		Kind:        KindSlider,
		Title:       title,
		ContentType: glbuild.Float,
		GLSLType:    "float",
		Initial:     math32.Max(min, math32.Min(max, initial)),
		Min:         min,
		Max:         max,
		Step:        (max - min) / 100,
	}
}

// ColorPickerSource returns a color picker initialized to the named SVG color.
// Unknown names fall back to white.
func ColorPickerSource(title, colorName string) DataSource {
	c, ok := colornames.Map[strings.ToLower(colorName)]
	if !ok {
		c = colornames.White
	}
	return DataSource{
		Kind:        KindColorPicker,
		Title:       title,
		ContentType: glbuild.Color,
		GLSLType:    "vec4",
		Color:       c,
	}
}

// TimeSource returns the seconds elapsed since the show started.
func TimeSource() DataSource {
	return DataSource{Kind: KindTime, Title: "Time", ContentType: glbuild.Time, GLSLType: "float"}
}

// ResolutionSource returns the output surface size in pixels.
func ResolutionSource() DataSource {
	return DataSource{Kind: KindResolution, Title: "Resolution", ContentType: glbuild.Resolution, GLSLType: "vec2"}
}

// PreviewResolutionSource returns the preview surface size in pixels.
func PreviewResolutionSource() DataSource {
	return DataSource{Kind: KindPreviewResolution, Title: "Preview Resolution", ContentType: glbuild.PreviewResolution, GLSLType: "vec2"}
}

// RasterCoordinateSource returns the fragment coordinate. It is implicit.
func RasterCoordinateSource() DataSource {
	return DataSource{
		Kind:        KindRasterCoordinate,
		Title:       "Raster Coordinate",
		ContentType: glbuild.RasterCoordinate,
		GLSLType:    "vec2",
		Style:       Implicit,
		Expr:        "gl_FragCoord.xy",
	}
}

// ModelInfoSource returns the model's center and extents.
func ModelInfoSource() DataSource {
	return DataSource{Kind: KindModelInfo, Title: "Model Info", ContentType: glbuild.ModelInfo, GLSLType: "ModelInfo", Style: UniformStruct}
}

// FixtureInfoSource returns the current fixture's position and orientation.
func FixtureInfoSource() DataSource {
	return DataSource{Kind: KindFixtureInfo, Title: "Fixture Info", ContentType: glbuild.FixtureInfo, GLSLType: "FixtureInfo", Style: UniformStruct}
}

// PixelLocationSource returns each pixel's location in model space, read from
// a texture indexed by raster coordinate.
func PixelLocationSource() DataSource {
	return DataSource{Kind: KindPixelLocation, Title: "Pixel Location", ContentType: glbuild.XYCoordinate, GLSLType: "vec3", Style: SamplerAccessor}
}

// ConstantSource returns an implicit data source evaluating to expr.
func ConstantSource(title string, ct glbuild.ContentType, expr string) DataSource {
	return DataSource{Kind: KindConstant, Title: title, ContentType: ct, GLSLType: ct.GLSLType(), Style: Implicit, Expr: expr}
}

// Vec2Source returns a constant vec2 data source, e.g. a fixed resolution.
func Vec2Source(title string, ct glbuild.ContentType, v ms2.Vec) DataSource {
	if ct.GLSLType() != "vec2" {
		panic("glpatch: Vec2Source of " + ct.GLSLType() + " content type")
	}
	return ConstantSource(title, ct, string(glbuild.AppendVec2(nil, v)))
}

// Vec3Source returns a constant vec3 data source, e.g. a fixed location.
func Vec3Source(title string, ct glbuild.ContentType, v ms3.Vec) DataSource {
	if ct.GLSLType() != "vec3" {
		panic("glpatch: Vec3Source of " + ct.GLSLType() + " content type")
	}
	return ConstantSource(title, ct, string(glbuild.AppendVec3(nil, v)))
}

// IsImplicit reports whether the data source needs no declaration.
func (ds DataSource) IsImplicit() bool { return ds.Style == Implicit }

// VarName returns the GLSL identifier (or expression, for implicit sources)
// the data source registered under id is referenced by.
func (ds DataSource) VarName(id string) string {
	if ds.Style == Implicit {
		return ds.Expr
	}
	return "in_" + id
}

// SuggestID returns an id derived from the title: "Fade Amount" -> "fadeAmount".
func (ds DataSource) SuggestID() string {
	id := camelCase(ds.Title)
	if id == "" {
		id = camelCase(string(ds.Kind))
	}
	return id
}

// camelCase turns free text into an identifier.
func camelCase(s string) string {
	var sb strings.Builder
	upper := false
	for _, r := range s {
		switch {
		case r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if sb.Len() == 0 {
				if unicode.IsDigit(r) {
					sb.WriteByte('_')
				}
				sb.WriteRune(unicode.ToLower(r))
			} else if upper {
				sb.WriteRune(unicode.ToUpper(r))
			} else {
				sb.WriteRune(r)
			}
			upper = false
		default:
			upper = true
		}
	}
	return sb.String()
}

// CoreSuggestions returns the data sources that can feed port, based on its
// content type. Float uniforms get a slider; color uniforms a color picker.
func CoreSuggestions(port glbuild.InputPort) []DataSource {
	ct := port.ContentType
	switch {
	case ct.Equal(glbuild.Time):
		return []DataSource{TimeSource()}
	case ct.Equal(glbuild.Resolution):
		return []DataSource{ResolutionSource()}
	case ct.Equal(glbuild.PreviewResolution):
		return []DataSource{PreviewResolutionSource()}
	case ct.Equal(glbuild.RasterCoordinate):
		return []DataSource{RasterCoordinateSource()}
	case ct.Equal(glbuild.ModelInfo):
		return []DataSource{ModelInfoSource()}
	case ct.Equal(glbuild.FixtureInfo):
		return []DataSource{FixtureInfoSource()}
	case ct.Equal(glbuild.XYCoordinate):
		return []DataSource{PixelLocationSource()}
	case !port.IsGlobal:
		// Entry point parameters are fed by other shaders or channels.
		return nil
	case ct.Equal(glbuild.Float) || ct.Equal(glbuild.UnknownContentType("float")):
		return []DataSource{SliderSource(port.Title+" Slider", 1, 0, 1)}
	case ct.Equal(glbuild.Color):
		return []DataSource{ColorPickerSource(port.Title, "white")}
	}
	return nil
}
