package glpatch

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"cogentcore.org/core/ordmap"
	"github.com/soypat/glpatch/glbuild"
)

// DefaultChannel is the channel shader instances are placed on unless told otherwise.
const DefaultChannel = "main"

// Shader is GLSL source registered with a show.
type Shader struct {
	ID    string
	Title string
	Src   string
}

// SameSource reports whether both shaders have identical source.
func (s *Shader) SameSource(other *Shader) bool {
	return s.Src == other.Src
}

// ShaderInstance places a shader in a patch and wires its input ports.
type ShaderInstance struct {
	ID       string
	ShaderID string
	// Channel the instance's output is published on.
	Channel string
	// Priority orders instances on the same channel; higher is on top.
	Priority float32
	links    ordmap.Map[string, Link]
}

// Link wires portID to l, replacing any previous link.
func (si *ShaderInstance) Link(portID string, l Link) {
	if l == nil {
		panic("nil link")
	}
	si.links.Add(portID, l)
}

// Unlink removes the link of portID and reports whether there was one.
func (si *ShaderInstance) Unlink(portID string) bool {
	return si.links.DeleteKey(portID)
}

// IncomingLink returns the link feeding portID.
func (si *ShaderInstance) IncomingLink(portID string) (Link, bool) {
	return si.links.ValueByKeyTry(portID)
}

// LinkedPorts returns the ids of linked ports in the order they were linked.
func (si *ShaderInstance) LinkedPorts() []string { return si.links.Keys() }

// IsFilter reports whether the instance reads its own channel for a port of
// the same content type as its output, i.e. it transforms what is below it.
func (si *ShaderInstance) IsFilter(sig *glbuild.Signature) bool {
	for _, in := range sig.Inputs {
		l, ok := si.links.ValueByKeyTry(in.ID)
		if !ok {
			continue
		}
		if cl, ok := l.(ChannelLink); ok && cl.Channel == si.Channel && in.ContentType.Equal(sig.Output.ContentType) {
			return true
		}
	}
	return false
}

func (si *ShaderInstance) clone() *ShaderInstance {
	c := *si
	c.links = ordmap.Map[string, Link]{}
	c.links.Copy(&si.links)
	return &c
}

// Surfaces selects the fixtures a patch renders to.
type Surfaces struct {
	All   bool
	Names []string
}

// AllSurfaces selects every surface.
func AllSurfaces() Surfaces { return Surfaces{All: true} }

// Matches reports whether the selector includes the named surface.
func (s Surfaces) Matches(name string) bool {
	return s.All || slices.Contains(s.Names, name)
}

// Equal reports whether both selectors pick the same surfaces.
func (s Surfaces) Equal(other Surfaces) bool {
	if s.All || other.All {
		return s.All == other.All
	}
	a, b := slices.Clone(s.Names), slices.Clone(other.Names)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

// InstanceConfig configures a new shader instance.
type InstanceConfig struct {
	// ID of the instance. Derived from the shader id when empty.
	ID       string
	Channel  string
	Priority float32
}

// Show is the editable arena of shaders, data sources, shader instances and
// patches, all addressed by stable string ids and kept in insertion order.
//
// A Show must be edited from a single goroutine. Renderers work on a snapshot
// obtained with Clone.
type Show struct {
	Title       string
	shaders     ordmap.Map[string, *Shader]
	dataSources ordmap.Map[string, DataSource]
	instances   ordmap.Map[string, *ShaderInstance]
	patches     ordmap.Map[string, *Patch]
	registry    *glbuild.Registry
	cache       *shaderCache
}

// NewShow returns an empty show using the default content type registry.
func NewShow(title string) *Show {
	return &Show{Title: title, registry: glbuild.DefaultRegistry(), cache: newShaderCache()}
}

// Registry returns the content type registry shader ports are resolved against.
func (s *Show) Registry() *glbuild.Registry { return s.registry }

// SetRegistry replaces the content type registry. Cached analyses are discarded.
func (s *Show) SetRegistry(r *glbuild.Registry) {
	if r == nil {
		panic("nil registry")
	}
	s.registry = r
	s.cache = newShaderCache()
}

// AddShader registers GLSL source and returns its id. A shader with the same
// source already in the show is reused.
func (s *Show) AddShader(title, src string) string {
	candidate := &Shader{Title: title, Src: src}
	for _, kv := range s.shaders.Order {
		if kv.Value.SameSource(candidate) {
			return kv.Key
		}
	}
	base := camelCase(title)
	if base == "" {
		base = "shader"
	}
	candidate.ID = uniqueID(base, func(id string) bool {
		_, taken := s.shaders.ValueByKeyTry(id)
		return taken
	})
	s.shaders.Add(candidate.ID, candidate)
	return candidate.ID
}

// PutShader stores the shader under its ID, replacing what was there. Ids of
// shaders loaded from a file are kept this way.
func (s *Show) PutShader(sh Shader) {
	if sh.ID == "" {
		panic("empty shader id")
	}
	s.shaders.Add(sh.ID, &sh)
}

// Shader returns the shader with the given id.
func (s *Show) Shader(id string) (*Shader, bool) { return s.shaders.ValueByKeyTry(id) }

// Shaders returns all shaders in insertion order.
func (s *Show) Shaders() []*Shader { return s.shaders.Values() }

// AddDataSource registers ds and returns its id. An equal data source already
// in the show is reused.
func (s *Show) AddDataSource(ds DataSource) string {
	for _, kv := range s.dataSources.Order {
		if kv.Value == ds {
			return kv.Key
		}
	}
	id := uniqueID(ds.SuggestID(), func(id string) bool {
		_, taken := s.dataSources.ValueByKeyTry(id)
		return taken
	})
	s.dataSources.Add(id, ds)
	return id
}

// PutDataSource stores ds under id, replacing what was there.
func (s *Show) PutDataSource(id string, ds DataSource) { s.dataSources.Add(id, ds) }

// DataSource returns the data source with the given id.
func (s *Show) DataSource(id string) (DataSource, bool) { return s.dataSources.ValueByKeyTry(id) }

// DataSourceIDs returns data source ids in insertion order.
func (s *Show) DataSourceIDs() []string { return s.dataSources.Keys() }

// Instance returns the shader instance with the given id.
func (s *Show) Instance(id string) (*ShaderInstance, bool) { return s.instances.ValueByKeyTry(id) }

// NewPatch creates an empty patch for the surfaces.
func (s *Show) NewPatch(surfaces Surfaces) *Patch {
	p := &Patch{Surfaces: surfaces, show: s}
	p.ID = uniqueID("patch", func(id string) bool {
		_, taken := s.patches.ValueByKeyTry(id)
		return taken
	})
	s.patches.Add(p.ID, p)
	return p
}

// AddPatch merges other into the show. Instances of other are moved into the
// patch with the same surface selector if there is one, else a new patch is
// created. other's instances must already be registered with s.
func (s *Show) AddPatch(other *Patch) *Patch {
	for _, kv := range s.patches.Order {
		if kv.Value == other {
			return other
		}
		if kv.Value.Surfaces.Equal(other.Surfaces) {
			for _, id := range other.instances {
				if !slices.Contains(kv.Value.instances, id) {
					kv.Value.instances = append(kv.Value.instances, id)
				}
			}
			return kv.Value
		}
	}
	p := s.NewPatch(other.Surfaces)
	p.instances = slices.Clone(other.instances)
	return p
}

// Patch returns the patch with the given id.
func (s *Show) Patch(id string) (*Patch, bool) { return s.patches.ValueByKeyTry(id) }

// Patches returns all patches in insertion order.
func (s *Show) Patches() []*Patch { return s.patches.Values() }

// PatchesFor returns the patches rendering to the named surface.
func (s *Show) PatchesFor(surface string) []*Patch {
	var ps []*Patch
	for _, kv := range s.patches.Order {
		if kv.Value.Surfaces.Matches(surface) {
			ps = append(ps, kv.Value)
		}
	}
	return ps
}

// Channels returns every channel an instance publishes on or a link reads
// from, in first-seen order.
func (s *Show) Channels() []string {
	var chans []string
	add := func(ch string) {
		if !slices.Contains(chans, ch) {
			chans = append(chans, ch)
		}
	}
	for _, kv := range s.instances.Order {
		add(kv.Value.Channel)
		for _, l := range kv.Value.links.Order {
			if cl, ok := l.Value.(ChannelLink); ok {
				add(cl.Channel)
			}
		}
	}
	return chans
}

// Clone returns a deep copy of the show. The copy shares the analysis cache
// and registry, both of which are safe for concurrent use.
func (s *Show) Clone() *Show {
	c := &Show{Title: s.Title, registry: s.registry, cache: s.cache}
	for _, kv := range s.shaders.Order {
		sh := *kv.Value
		c.shaders.Add(kv.Key, &sh)
	}
	c.dataSources.Copy(&s.dataSources)
	for _, kv := range s.instances.Order {
		c.instances.Add(kv.Key, kv.Value.clone())
	}
	for _, kv := range s.patches.Order {
		p := *kv.Value
		p.instances = slices.Clone(kv.Value.instances)
		p.Surfaces.Names = slices.Clone(kv.Value.Surfaces.Names)
		p.show = c
		c.patches.Add(kv.Key, &p)
	}
	return c
}

// OpenShader returns the analyzed form of the shader with the given id.
// Analyses are cached by source.
func (s *Show) OpenShader(id string) (*OpenShader, error) {
	sh, ok := s.shaders.ValueByKeyTry(id)
	if !ok {
		return nil, linkErr(ErrMissingShader, "", "", strconv.Quote(id))
	}
	sig, err := s.cache.open(sh.Title, sh.Src, s.registry)
	if err != nil {
		return nil, &LinkError{Kind: ErrShaderSource, Detail: strconv.Quote(sh.Title), Err: err}
	}
	return &OpenShader{Shader: sh, Signature: sig}, nil
}

// Validate reports structural problems of the whole show: links to ports the
// shader no longer declares, and references to missing shaders, instances and
// data sources. All problems found are joined.
func (s *Show) Validate() error {
	var errs []error
	for _, pkv := range s.patches.Order {
		for _, id := range pkv.Value.instances {
			if _, ok := s.instances.ValueByKeyTry(id); !ok {
				errs = append(errs, linkErr(ErrMissingInstance, id, "", "listed in patch "+pkv.Key))
			}
		}
	}
	for _, ikv := range s.instances.Order {
		si := ikv.Value
		open, err := s.OpenShader(si.ShaderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("instance %s: %w", si.ID, err))
			continue
		}
		for _, lkv := range si.links.Order {
			if err := s.checkLink(si, open, lkv.Key, lkv.Value); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Show) checkLink(si *ShaderInstance, open *OpenShader, portID string, l Link) error {
	if _, ok := open.Input(portID); !ok {
		return linkErr(ErrUnknownPort, si.ID, portID, "not declared by "+strconv.Quote(open.Title()))
	}
	switch l := l.(type) {
	case DataSourceLink:
		if _, ok := s.dataSources.ValueByKeyTry(l.DataSourceID); !ok {
			return linkErr(ErrMissingDataSource, si.ID, portID, strconv.Quote(l.DataSourceID))
		}
	case ShaderOutLink:
		if _, ok := s.instances.ValueByKeyTry(l.InstanceID); !ok {
			return linkErr(ErrMissingInstance, si.ID, portID, strconv.Quote(l.InstanceID))
		}
	case OutputLink:
		return linkErr(ErrUnknownPort, si.ID, portID, "output link used as input")
	}
	return nil
}

// OpenShader is a shader together with its analyzed ports.
type OpenShader struct {
	Shader *Shader
	*glbuild.Signature
}

type shaderCache struct {
	mu   sync.Mutex
	sigs map[uint64]cachedSignature
}

type cachedSignature struct {
	title, src string
	sig        *glbuild.Signature
	err        error
}

func newShaderCache() *shaderCache {
	return &shaderCache{sigs: make(map[uint64]cachedSignature)}
}

func (c *shaderCache) open(title, src string, reg *glbuild.Registry) (*glbuild.Signature, error) {
	key := glbuild.Hash([]byte(src), glbuild.Hash([]byte(title), 0))
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.sigs[key]; ok && e.title == title && e.src == src {
		return e.sig, e.err
	}
	code, err := glbuild.Analyze(title, src)
	var sig *glbuild.Signature
	if err == nil {
		sig, err = glbuild.Shape(code, reg)
	}
	c.sigs[key] = cachedSignature{title: title, src: src, sig: sig, err: err}
	return sig, err
}

func uniqueID(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		id := base + strconv.Itoa(i)
		if !taken(id) {
			return id
		}
	}
}
