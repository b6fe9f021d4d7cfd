// Package glsllib embeds the built-in shaders that ship with glpatch.
package glsllib

import (
	_ "embed"
	"fmt"
)

// Source is a built-in shader ready to be added to a show.
type Source struct {
	Title string
	Src   string
}

//go:embed guru_meditation.glsl
var guruMeditationSrc string

// GuruMeditation is the always-valid shader rendered when a show fails to link.
//
//	vec4 main(vec2 fragCoord)
func GuruMeditation() Source {
	return Source{Title: "Guru Meditation Error", Src: guruMeditationSrc}
}

//go:embed solid_color.glsl
var solidColorSrc string

// SolidColor paints every pixel with its color uniform.
func SolidColor() Source {
	return Source{Title: "Solid Color", Src: solidColorSrc}
}

//go:embed crossfade.glsl
var crossFadeSrc string

// CrossFade mixes two colors by its fade uniform.
//
//	vec4 main(vec4 inColor, vec4 inColor2)
func CrossFade() Source {
	return Source{Title: "Cross-fade", Src: crossFadeSrc}
}

//go:embed cylindrical_projection.glsl
var cylindricalProjectionSrc string

// CylindricalProjection maps a pixel location around the model's vertical
// axis onto uv-coordinates.
//
//	vec2 mainProjection(vec3 pixelLocation)
func CylindricalProjection() Source {
	return Source{Title: "Cylindrical Projection", Src: cylindricalProjectionSrc}
}

//go:embed pixel_accessor.glsl
var pixelAccessorSrc string

// PixelAccessor returns the accessor function reading pixel coordinates for
// varName from the sampler named varName+"_texture".
//
//	vec3 <varName>_getPixelCoords(vec2 rasterCoord)
func PixelAccessor(varName string) string {
	return fmt.Sprintf(pixelAccessorSrc, varName)
}
