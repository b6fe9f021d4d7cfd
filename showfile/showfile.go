// Package showfile reads and writes shows as JSON or YAML documents.
//
// Links and data sources are tagged unions discriminated by their "type"
// field:
//
//	{"type": "channel", "channel": "main"}
//	{"type": "data-source", "dataSourceId": "fade"}
//	{"type": "shader-out", "instanceId": "base", "portId": "_"}
//	{"type": "slider", "title": "Fade", "initial": 0.5, "min": 0, "max": 1}
package showfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soypat/glpatch"
	"golang.org/x/image/colornames"
	"gopkg.in/yaml.v3"
)

// Format of a show document.
type Format int

const (
	JSON Format = iota
	YAML
)

// FormatOf returns the format implied by a file extension. Unknown
// extensions are JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

// File is the serialized form of a show.
type File struct {
	Title       string       `json:"title" yaml:"title"`
	Shaders     []Shader     `json:"shaders" yaml:"shaders"`
	DataSources []DataSource `json:"dataSources,omitempty" yaml:"dataSources,omitempty"`
	Patches     []Patch      `json:"patches" yaml:"patches"`
}

type Shader struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Src   string `json:"src" yaml:"src"`
}

// DataSource is a data source tagged by its kind.
type DataSource struct {
	ID    string `json:"id" yaml:"id"`
	Type  string `json:"type" yaml:"type"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	// Slider fields.
	Initial *float32 `json:"initial,omitempty" yaml:"initial,omitempty"`
	Min     *float32 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float32 `json:"max,omitempty" yaml:"max,omitempty"`
	// Color of a color picker: "#rrggbb", "#rrggbbaa" or an SVG color name.
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
	// Constant fields.
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Expr        string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// Patch lists the instances rendered to its surfaces. No surfaces means all.
type Patch struct {
	Surfaces  []string   `json:"surfaces,omitempty" yaml:"surfaces,omitempty"`
	Instances []Instance `json:"instances" yaml:"instances"`
}

type Instance struct {
	ID       string     `json:"id" yaml:"id"`
	ShaderID string     `json:"shaderId" yaml:"shaderId"`
	Channel  string     `json:"channel,omitempty" yaml:"channel,omitempty"`
	Priority float32    `json:"priority,omitempty" yaml:"priority,omitempty"`
	Links    []PortLink `json:"links,omitempty" yaml:"links,omitempty"`
}

// PortLink wires an input port.
type PortLink struct {
	Port string `json:"port" yaml:"port"`
	Link Link   `json:"link" yaml:"link"`
}

// Link wraps a glpatch.Link for serialization.
type Link struct {
	glpatch.Link
}

const (
	typeDataSource = "data-source"
	typeShaderOut  = "shader-out"
	typeChannel    = "channel"
	typeOutput     = "output"
)

type linkWire struct {
	Type         string `json:"type" yaml:"type"`
	DataSourceID string `json:"dataSourceId,omitempty" yaml:"dataSourceId,omitempty"`
	InstanceID   string `json:"instanceId,omitempty" yaml:"instanceId,omitempty"`
	PortID       string `json:"portId,omitempty" yaml:"portId,omitempty"`
	Channel      string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

var errNilLink = errors.New("nil link")

func (l Link) wire() (linkWire, error) {
	switch v := l.Link.(type) {
	case glpatch.DataSourceLink:
		return linkWire{Type: typeDataSource, DataSourceID: v.DataSourceID}, nil
	case glpatch.ShaderOutLink:
		return linkWire{Type: typeShaderOut, InstanceID: v.InstanceID, PortID: v.PortID}, nil
	case glpatch.ChannelLink:
		return linkWire{Type: typeChannel, Channel: v.Channel}, nil
	case glpatch.OutputLink:
		return linkWire{Type: typeOutput, PortID: v.PortID}, nil
	case nil:
		return linkWire{}, errNilLink
	}
	return linkWire{}, fmt.Errorf("unknown link %T", l.Link)
}

func (w linkWire) link() (glpatch.Link, error) {
	switch w.Type {
	case typeDataSource:
		return glpatch.DataSourceLink{DataSourceID: w.DataSourceID}, nil
	case typeShaderOut:
		return glpatch.ShaderOutLink{InstanceID: w.InstanceID, PortID: w.PortID}, nil
	case typeChannel:
		return glpatch.ChannelLink{Channel: w.Channel}, nil
	case typeOutput:
		return glpatch.OutputLink{PortID: w.PortID}, nil
	case "":
		return nil, errors.New("link without type")
	}
	return nil, fmt.Errorf("unknown link type %q", w.Type)
}

func (l Link) MarshalJSON() ([]byte, error) {
	w, err := l.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (l *Link) UnmarshalJSON(b []byte) (err error) {
	var w linkWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	l.Link, err = w.link()
	return err
}

func (l Link) MarshalYAML() (any, error) { return l.wire() }

func (l *Link) UnmarshalYAML(node *yaml.Node) (err error) {
	var w linkWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	l.Link, err = w.link()
	return err
}

// FromShow returns the serialized form of show.
func FromShow(show *glpatch.Show) *File {
	f := &File{Title: show.Title}
	for _, sh := range show.Shaders() {
		f.Shaders = append(f.Shaders, Shader{ID: sh.ID, Title: sh.Title, Src: sh.Src})
	}
	for _, id := range show.DataSourceIDs() {
		ds, _ := show.DataSource(id)
		f.DataSources = append(f.DataSources, encodeDataSource(id, ds))
	}
	for _, p := range show.Patches() {
		fp := Patch{Instances: []Instance{}}
		if !p.Surfaces.All {
			fp.Surfaces = p.Surfaces.Names
		}
		for _, id := range p.Instances() {
			si, ok := show.Instance(id)
			if !ok {
				continue
			}
			inst := Instance{ID: si.ID, ShaderID: si.ShaderID, Channel: si.Channel, Priority: si.Priority}
			for _, port := range si.LinkedPorts() {
				l, _ := si.IncomingLink(port)
				inst.Links = append(inst.Links, PortLink{Port: port, Link: Link{l}})
			}
			fp.Instances = append(fp.Instances, inst)
		}
		f.Patches = append(f.Patches, fp)
	}
	return f
}

func encodeDataSource(id string, ds glpatch.DataSource) DataSource {
	d := DataSource{ID: id, Type: string(ds.Kind), Title: ds.Title}
	switch ds.Kind {
	case glpatch.KindSlider:
		d.Initial, d.Min, d.Max = &ds.Initial, &ds.Min, &ds.Max
	case glpatch.KindColorPicker:
		c := ds.Color
		d.Color = fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	case glpatch.KindConstant:
		d.ContentType = ds.ContentType.ID()
		d.Expr = ds.Expr
	}
	return d
}

// Show builds the show described by f. Links are stored as written; use
// Show.Validate to check them against the shaders.
func (f *File) Show() (*glpatch.Show, error) {
	show := glpatch.NewShow(f.Title)
	for _, sh := range f.Shaders {
		if sh.ID == "" {
			return nil, fmt.Errorf("shader %q without id", sh.Title)
		}
		show.PutShader(glpatch.Shader{ID: sh.ID, Title: sh.Title, Src: sh.Src})
	}
	for _, d := range f.DataSources {
		ds, err := d.decode(show)
		if err != nil {
			return nil, fmt.Errorf("data source %q: %w", d.ID, err)
		}
		show.PutDataSource(d.ID, ds)
	}
	for i, fp := range f.Patches {
		surfaces := glpatch.AllSurfaces()
		if len(fp.Surfaces) > 0 {
			surfaces = glpatch.Surfaces{Names: fp.Surfaces}
		}
		p := show.NewPatch(surfaces)
		for _, inst := range fp.Instances {
			si, err := p.AddShaderInstance(inst.ShaderID, glpatch.InstanceConfig{ID: inst.ID, Channel: inst.Channel, Priority: inst.Priority})
			if err != nil {
				return nil, fmt.Errorf("patch %d: %w", i, err)
			}
			for _, pl := range inst.Links {
				if pl.Link.Link == nil {
					return nil, fmt.Errorf("instance %s port %s: %w", si.ID, pl.Port, errNilLink)
				}
				si.Link(pl.Port, pl.Link.Link)
			}
		}
	}
	return show, nil
}

func (d DataSource) decode(show *glpatch.Show) (glpatch.DataSource, error) {
	var ds glpatch.DataSource
	switch glpatch.DataSourceKind(d.Type) {
	case glpatch.KindSlider:
		initial, min, max := float32(1), float32(0), float32(1)
		if d.Min != nil {
			min = *d.Min
		}
		if d.Max != nil {
			max = *d.Max
		}
		if d.Initial != nil {
			initial = *d.Initial
		}
		ds = glpatch.SliderSource(d.Title, initial, min, max)
	case glpatch.KindColorPicker:
		c, err := parseColor(d.Color)
		if err != nil {
			return ds, err
		}
		ds = glpatch.ColorPickerSource(d.Title, "white")
		ds.Color = c
	case glpatch.KindTime:
		ds = glpatch.TimeSource()
	case glpatch.KindResolution:
		ds = glpatch.ResolutionSource()
	case glpatch.KindPreviewResolution:
		ds = glpatch.PreviewResolutionSource()
	case glpatch.KindRasterCoordinate:
		ds = glpatch.RasterCoordinateSource()
	case glpatch.KindModelInfo:
		ds = glpatch.ModelInfoSource()
	case glpatch.KindFixtureInfo:
		ds = glpatch.FixtureInfoSource()
	case glpatch.KindPixelLocation:
		ds = glpatch.PixelLocationSource()
	case glpatch.KindConstant:
		ct, ok := show.Registry().Lookup(d.ContentType)
		if !ok {
			return ds, fmt.Errorf("unknown content type %q", d.ContentType)
		}
		ds = glpatch.ConstantSource(d.Title, ct, d.Expr)
	default:
		return ds, fmt.Errorf("unknown data source type %q", d.Type)
	}
	if d.Title != "" {
		ds.Title = d.Title
	}
	return ds, nil
}

func parseColor(s string) (color.RGBA, error) {
	if s == "" {
		return colornames.White, nil
	}
	if !strings.HasPrefix(s, "#") {
		c, ok := colornames.Map[strings.ToLower(s)]
		if !ok {
			return c, fmt.Errorf("unknown color %q", s)
		}
		return c, nil
	}
	c := color.RGBA{A: 255}
	var err error
	switch len(s) {
	case 7:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B)
	case 9:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		err = errors.New("want #rrggbb or #rrggbbaa")
	}
	if err != nil {
		return c, fmt.Errorf("bad color %q: %w", s, err)
	}
	return c, nil
}

// Decode reads a show document.
func Decode(r io.Reader, format Format) (*File, error) {
	f := &File{}
	var err error
	switch format {
	case YAML:
		err = yaml.NewDecoder(r).Decode(f)
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		err = dec.Decode(f)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Encode writes f as a show document.
func Encode(w io.Writer, f *File, format Format) error {
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "\t")
		return enc.Encode(f)
	}
}

// Load reads the show stored at path, choosing the format by extension.
func Load(path string) (*glpatch.Show, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	f, err := Decode(fp, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return f.Show()
}

// Save writes show to path, choosing the format by extension.
func Save(path string, show *glpatch.Show) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	err = Encode(fp, FromShow(show), FormatOf(path))
	if cerr := fp.Close(); err == nil {
		err = cerr
	}
	return err
}
