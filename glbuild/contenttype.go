package glbuild

import (
	"strings"
	"sync"
)

// ContentType is the semantic tag carried by a port, e.g. "color" or "time".
// Two content types are equal when their ids match.
type ContentType struct {
	id       string
	title    string
	glslType string
	// init is the GLSL expression used to initialize an output of this type
	// when the shader does not write it fully. May be empty.
	init string
	// wellKnown holds space separated identifiers that map a uniform or
	// parameter name onto this type. Kept as a string so ContentType is comparable.
	wellKnown string
}

// NewContentType creates a content type. It is not registered; use Register to
// make it discoverable by id.
func NewContentType(id, title, glslType, init string, wellKnown ...string) ContentType {
	return ContentType{id: id, title: title, glslType: glslType, init: init, wellKnown: strings.Join(wellKnown, " ")}
}

// UnknownContentType returns the content type used for ports whose meaning could
// not be inferred. Its id is derived from the GLSL type: "unknown/vec3".
func UnknownContentType(glslType string) ContentType {
	return ContentType{id: "unknown/" + glslType, title: "Unknown " + glslType, glslType: glslType}
}

var (
	Color             = NewContentType("color", "Color", "vec4", string(AppendConstructor(nil, "vec4", 0, 0, 0, 1)))
	Float             = NewContentType("float", "Float", "float", "")
	Int               = NewContentType("int", "Integer", "int", "")
	Time              = NewContentType("time", "Time", "float", "", "time", "iTime")
	Resolution        = NewContentType("resolution", "Resolution", "vec2", "", "resolution")
	PreviewResolution = NewContentType("preview-resolution", "Preview Resolution", "vec2", "", "previewResolution")
	RasterCoordinate  = NewContentType("raster-coordinate", "Raster Coordinate", "vec2", "", "fragCoord", "gl_FragCoord")
	UVCoordinate      = NewContentType("uv-coordinate", "U/V Coordinate", "vec2", "", "uv")
	UVStream          = NewContentType("uv-coordinate-stream", "U/V Coordinate Stream", "vec2", "")
	XYCoordinate      = NewContentType("xy-coordinate", "X/Y Coordinate", "vec3", "", "pixelLocation")
	PixelCoordsTex    = NewContentType("pixel-coordinates-texture", "Pixel Coordinates Texture", "sampler2D", "", "pixelCoordsTexture")
	ModelInfo         = NewContentType("model-info", "Model Info", "ModelInfo", "", "modelInfo")
	FixtureInfo       = NewContentType("fixture-info", "Fixture Info", "FixtureInfo", "", "fixtureInfo")
	MovingHeadParams  = NewContentType("moving-head-params", "Moving Head Params", "MovingHeadParams",
		"MovingHeadParams(0., 0., 0., 1.)")
)

// ID returns the content type's unique identifier.
func (ct ContentType) ID() string { return ct.id }

// Title returns a human readable name.
func (ct ContentType) Title() string { return ct.title }

// GLSLType returns the GLSL type values of this content type are declared as.
func (ct ContentType) GLSLType() string { return ct.glslType }

// Initializer returns the expression a result variable of this type starts
// with: the registered initializer when set, else Default.
func (ct ContentType) Initializer() (string, bool) {
	if ct.init != "" {
		return ct.init, true
	}
	return ct.Default()
}

// IsZero reports whether ct is the zero value.
func (ct ContentType) IsZero() bool { return ct.id == "" }

// IsUnknown reports whether the content type was inferred as unknown.
func (ct ContentType) IsUnknown() bool { return strings.HasPrefix(ct.id, "unknown/") }

// Equal reports whether ct and other share an id.
func (ct ContentType) Equal(other ContentType) bool { return ct.id == other.id }

func (ct ContentType) String() string { return ct.id }

// Default returns a GLSL expression usable in place of a missing value of
// this content type. Struct types only have a default when an initializer is known.
func (ct ContentType) Default() (string, bool) {
	if ct.init != "" && !IsBuiltinType(ct.glslType) {
		return ct.init, true
	}
	return ZeroValue(ct.glslType)
}

// ZeroValue returns the zero literal for a builtin GLSL type.
func ZeroValue(glslType string) (string, bool) {
	switch glslType {
	case "float":
		return "0.", true
	case "int":
		return "0", true
	case "uint":
		return "0u", true
	case "bool":
		return "false", true
	case "vec2", "vec3", "vec4", "mat2", "mat3", "mat4":
		return glslType + "(0.)", true
	case "ivec2", "ivec3", "ivec4":
		return glslType + "(0)", true
	case "uvec2", "uvec3", "uvec4":
		return glslType + "(0u)", true
	case "bvec2", "bvec3", "bvec4":
		return glslType + "(false)", true
	}
	return "", false
}

// LookupContentType resolves id against the default registry.
func LookupContentType(id string) (ContentType, bool) {
	return defaultRegistry.Lookup(id)
}

// IsBuiltinType reports whether t is a GLSL builtin (non-struct) type.
func IsBuiltinType(t string) bool {
	switch t {
	case "void", "float", "int", "uint", "bool",
		"vec2", "vec3", "vec4", "ivec2", "ivec3", "ivec4",
		"uvec2", "uvec3", "uvec4", "bvec2", "bvec3", "bvec4",
		"mat2", "mat3", "mat4", "sampler2D", "sampler3D", "samplerCube":
		return true
	}
	return false
}

// Registry resolves content types by id and by well-known identifier.
// The zero value is not usable; see NewRegistry and DefaultRegistry.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]ContentType
	order []string
}

// NewRegistry returns a registry holding cts.
func NewRegistry(cts ...ContentType) *Registry {
	r := &Registry{byID: make(map[string]ContentType)}
	for _, ct := range cts {
		r.Register(ct)
	}
	return r
}

var defaultRegistry = NewRegistry(
	Color, Float, Int, Time, Resolution, PreviewResolution, RasterCoordinate,
	UVCoordinate, UVStream, XYCoordinate, PixelCoordsTex, ModelInfo,
	FixtureInfo, MovingHeadParams,
)

// DefaultRegistry returns the registry of built-in content types.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds ct, replacing any content type with the same id.
func (r *Registry) Register(ct ContentType) {
	if ct.IsZero() {
		panic("glbuild: register of zero content type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[ct.id]; !ok {
		r.order = append(r.order, ct.id)
	}
	r.byID[ct.id] = ct
}

// Lookup returns the content type with the given id. Ids with the "unknown/"
// prefix always resolve.
func (r *Registry) Lookup(id string) (ContentType, bool) {
	r.mu.RLock()
	ct, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return ct, true
	}
	if glslType, found := strings.CutPrefix(id, "unknown/"); found && glslType != "" {
		return UnknownContentType(glslType), true
	}
	return ContentType{}, false
}

// WellKnown returns the content type registered for identifier name whose GLSL
// type matches glslType.
func (r *Registry) WellKnown(name, glslType string) (ContentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		ct := r.byID[id]
		if ct.glslType != glslType {
			continue
		}
		for _, wk := range strings.Fields(ct.wellKnown) {
			if wk == name {
				return ct, true
			}
		}
	}
	return ContentType{}, false
}

// ForType returns the content type inferred for a port of glslType that has no
// annotation and no well-known name.
func (r *Registry) ForType(glslType string) ContentType {
	switch glslType {
	case "vec4":
		return Color
	case "float":
		return Float
	case "int":
		return Int
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Struct types registered by the show resolve to their content type.
	for _, id := range r.order {
		ct := r.byID[id]
		if ct.glslType == glslType && !IsBuiltinType(glslType) {
			return ct
		}
	}
	return UnknownContentType(glslType)
}

// All returns the registered content types in registration order.
func (r *Registry) All() []ContentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cts := make([]ContentType, len(r.order))
	for i, id := range r.order {
		cts[i] = r.byID[id]
	}
	return cts
}
