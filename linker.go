package glpatch

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/soypat/glpatch/glbuild"
	"golang.org/x/sync/errgroup"
)

// Request selects what a patch is linked for: the instance on top of Channel
// publishing ContentType becomes the root of the program.
type Request struct {
	Channel     string
	ContentType glbuild.ContentType
}

func (r Request) normalized() Request {
	if r.Channel == "" {
		r.Channel = DefaultChannel
	}
	if r.ContentType.IsZero() {
		r.ContentType = glbuild.Color
	}
	return r
}

// Linker resolves the instances of a patch into an ordered list of
// components ready for code generation.
type Linker struct {
	Config CodegenConfig
}

// NewDefaultLinker returns a linker using DefaultCodegenConfig.
func NewDefaultLinker() *Linker {
	return &Linker{Config: DefaultCodegenConfig()}
}

// LinkPatch links the patch of the show with the default linker.
func LinkPatch(show *Show, patchID string, req Request) (*LinkedPatch, error) {
	return NewDefaultLinker().Link(show, patchID, req)
}

// LinkedPatch is the immutable result of linking a patch. It is safe to
// share between goroutines.
type LinkedPatch struct {
	Request Request
	Config  CodegenConfig
	// Components in emission order: every component appears after all
	// components it reads from. The root is last.
	Components []*Component
	// DataSources referenced by the program sorted by VarName.
	DataSources []LinkedDataSource
	// Structs in declaration order.
	Structs []LinkedStruct
	// Warnings describe ports that were given default values.
	Warnings []string
	// sinkExpr is assigned to the sink after all invocations unless the root
	// is redirected.
	sinkExpr string
}

// Root returns the component producing the requested output.
func (lp *LinkedPatch) Root() *Component { return lp.Components[len(lp.Components)-1] }

// Component is a shader instance placed in a linked program.
type Component struct {
	Index      int
	Title      string
	InstanceID string
	Namespace  glbuild.Namespace
	Open       *OpenShader
	// OutputVar is the identifier the component's output is written to.
	OutputVar string
	// Redirected is set when the output is written directly to the sink.
	Redirected bool
	// Inputs maps input port ids to the expression feeding them.
	Inputs map[string]string
	// Defaults are globals declared without initializer standing in for
	// unlinked struct inputs.
	Defaults []glbuild.Field
	renames  map[string]string

	depth int
	deps  []string
	refs  map[string]portRef
}

// LinkedDataSource is a data source referenced by a linked program.
type LinkedDataSource struct {
	ID      string
	VarName string
	DataSource
}

// LinkedStruct is a struct emitted in a linked program.
type LinkedStruct struct {
	Name   string
	Struct *glbuild.Struct
	// Owner is nil for structs shared between components through ports.
	Owner *Component
}

type refKind uint8

const (
	refExpr refKind = iota
	refComponent
	refUninit
)

// portRef defers naming of the producer until components are ordered.
type portRef struct {
	kind refKind
	expr string
	comp int
	port string
}

// Link links the patch for req. Missing producers are replaced by defaults
// and reported in Warnings. Structural problems are returned as *LinkError.
func (lk *Linker) Link(show *Show, patchID string, req Request) (*LinkedPatch, error) {
	if show == nil {
		panic("nil show")
	}
	req = req.normalized()
	p, ok := show.Patch(patchID)
	if !ok {
		return nil, linkErr(ErrMissingPatch, "", "", strconv.Quote(patchID))
	}
	diag, err := newPortDiagram(show, p)
	if err != nil {
		return nil, err
	}
	rootTrack := track{channel: req.Channel, contentType: req.ContentType.ID()}
	top, ok := diag.top(rootTrack)
	if !ok {
		return nil, linkErr(ErrNoRoot, "", "", "nothing on "+rootTrack.String())
	}
	l := &linker{
		show:        show,
		diag:        diag,
		byInstance:  make(map[string]int),
		active:      make(map[string]bool),
		dataSources: make(map[string]LinkedDataSource),
	}
	if _, err := l.visit(top.inst.ID, 0); err != nil {
		return nil, err
	}
	lp := &LinkedPatch{Request: req, Config: lk.Config, Warnings: l.warnings}
	lp.Components = l.order()
	for _, ds := range l.dataSources {
		lp.DataSources = append(lp.DataSources, ds)
	}
	slices.SortFunc(lp.DataSources, func(a, b LinkedDataSource) int {
		return cmp.Compare(a.VarName, b.VarName)
	})
	if err := lp.name(show.Registry()); err != nil {
		return nil, err
	}
	return lp, nil
}

type linker struct {
	show        *Show
	diag        *portDiagram
	nodes       []*Component
	byInstance  map[string]int
	active      map[string]bool
	path        []string
	frames      []string
	dataSources map[string]LinkedDataSource
	warnings    []string
}

// visit adds the instance and everything it reads from, recording the
// deepest depth each instance is reached at.
func (l *linker) visit(id string, depth int) (int, error) {
	if l.active[id] {
		return -1, linkErr(ErrChannelCycle, id, "", strings.Join(append(l.path, id), " -> "))
	}
	l.active[id] = true
	l.path = append(l.path, id)
	defer func() {
		delete(l.active, id)
		l.path = l.path[:len(l.path)-1]
	}()
	if idx, ok := l.byInstance[id]; ok {
		c := l.nodes[idx]
		if c.depth >= depth {
			return idx, nil
		}
		c.depth = depth
		for _, dep := range c.deps {
			if _, err := l.visit(dep, depth+1); err != nil {
				return -1, err
			}
		}
		return idx, nil
	}

	si, ok := l.show.Instance(id)
	if !ok {
		return -1, linkErr(ErrMissingInstance, id, "", "")
	}
	open, ok := l.diag.open[id]
	if !ok {
		var err error
		open, err = l.show.OpenShader(si.ShaderID)
		if err != nil {
			return -1, err
		}
	}
	for _, port := range si.LinkedPorts() {
		if _, ok := open.Input(port); !ok {
			return -1, linkErr(ErrUnknownPort, id, port, "not declared by "+strconv.Quote(open.Title()))
		}
	}
	c := &Component{
		Title:      open.Title(),
		InstanceID: id,
		Open:       open,
		depth:      depth,
		refs:       make(map[string]portRef, len(open.Inputs)),
	}
	idx := len(l.nodes)
	l.nodes = append(l.nodes, c)
	l.byInstance[id] = idx
	own := track{channel: si.Channel, contentType: open.Output.ContentType.ID()}
	for _, in := range open.Inputs {
		l.frames = append(l.frames, fmt.Sprintf("Resolving %s -> [%s].%s (%s)", own, c.Title, in.ID, in.ContentType))
		ref, err := l.resolve(c, si, in, depth)
		l.frames = l.frames[:len(l.frames)-1]
		if err != nil {
			return -1, err
		}
		c.refs[in.ID] = ref
	}
	return idx, nil
}

func (l *linker) resolve(c *Component, si *ShaderInstance, in glbuild.InputPort, depth int) (portRef, error) {
	link, ok := si.IncomingLink(in.ID)
	if !ok {
		return l.defaultFor(in), nil
	}
	var producer string
	switch link := link.(type) {
	case DataSourceLink:
		ds, ok := l.show.DataSource(link.DataSourceID)
		if !ok {
			return portRef{}, linkErr(ErrMissingDataSource, si.ID, in.ID, strconv.Quote(link.DataSourceID))
		}
		lds := LinkedDataSource{ID: link.DataSourceID, VarName: ds.VarName(link.DataSourceID), DataSource: ds}
		l.dataSources[link.DataSourceID] = lds
		return portRef{kind: refExpr, expr: lds.VarName}, nil

	case ShaderOutLink:
		producer = link.InstanceID
		if _, ok := l.show.Instance(producer); !ok {
			return portRef{}, linkErr(ErrMissingInstance, si.ID, in.ID, strconv.Quote(producer))
		}

	case ChannelLink:
		t := track{channel: link.Channel, contentType: in.ContentType.ID()}
		var lay layer
		if l.diag.publishes(t, si.ID) {
			// Filters read whatever is beneath them.
			lay, ok = l.diag.below(t, si.ID)
		} else {
			lay, ok = l.diag.top(t)
		}
		if !ok {
			return l.defaultFor(in), nil
		}
		producer = lay.inst.ID

	default:
		return portRef{}, linkErr(ErrUnknownPort, si.ID, in.ID, "cannot read from "+link.String())
	}

	idx, err := l.visit(producer, depth+1)
	if err != nil {
		return portRef{}, err
	}
	if sol, ok := link.(ShaderOutLink); ok && sol.PortID != l.nodes[idx].Open.Output.ID {
		return portRef{}, linkErr(ErrUnknownPort, producer, sol.PortID, "not the output of "+strconv.Quote(l.nodes[idx].Title))
	}
	c.deps = append(c.deps, producer)
	return portRef{kind: refComponent, comp: idx}, nil
}

func (l *linker) defaultFor(in glbuild.InputPort) portRef {
	ct := in.ContentType
	l.warnings = append(l.warnings, "No upstream shader found, using default for "+ct.ID()+
		".\nStack:\n    "+strings.Join(l.frames, "\n    "))
	var expr string
	var ok bool
	if ct.GLSLType() == in.Type {
		expr, ok = ct.Default()
	} else {
		expr, ok = glbuild.ZeroValue(in.Type)
	}
	if !ok {
		return portRef{kind: refUninit, port: in.ID}
	}
	return portRef{kind: refExpr, expr: expr}
}

// order sorts components by depth descending keeping discovery order for
// ties, so every component comes after those it depends on.
func (l *linker) order() []*Component {
	comps := slices.Clone(l.nodes)
	slices.SortStableFunc(comps, func(a, b *Component) int {
		return cmp.Compare(b.depth, a.depth)
	})
	// Port references index nodes by discovery; keep nodes addressable.
	for i, c := range comps {
		c.Index = i
		c.Namespace = glbuild.Namespace{Prefix: "p" + strconv.Itoa(i)}
	}
	for _, c := range comps {
		c.Inputs = make(map[string]string, len(c.refs))
		for _, in := range c.Open.Inputs {
			ref := c.refs[in.ID]
			switch ref.kind {
			case refExpr:
				c.Inputs[in.ID] = ref.expr
			case refComponent:
				c.Inputs[in.ID] = l.nodes[ref.comp].outputVar()
			case refUninit:
				name := c.Namespace.Qualify(in.ID + "_default")
				c.Defaults = append(c.Defaults, glbuild.Field{Name: name, Type: in.Type})
				c.Inputs[in.ID] = name
			}
		}
	}
	return comps
}

// outputVar returns the identifier the component's result is stored in.
// Only valid once namespaces are assigned.
func (c *Component) outputVar() string {
	if c.OutputVar != "" {
		return c.OutputVar
	}
	out := c.Open.Output
	if out.IsReturnValue() {
		if c.Open.Code.Declares("result") {
			c.OutputVar = c.Namespace.Qualify("i_result")
		} else {
			c.OutputVar = c.Namespace.Qualify("result")
		}
	} else {
		c.OutputVar = c.Namespace.Qualify(out.ID)
	}
	return c.OutputVar
}

// name redirects the root to the sink, collects structs and computes the
// renames applied to each component's source.
func (lp *LinkedPatch) name(reg *glbuild.Registry) error {
	root := lp.Root()
	if root.Open.Output.Type == lp.Config.SinkType {
		root.OutputVar = lp.Config.SinkName
		root.Redirected = true
	}
	for _, c := range lp.Components {
		c.outputVar()
	}
	shared := make(map[string]int)
	for _, c := range lp.Components {
		c.renames = make(map[string]string)
		code := c.Open.Code
		for _, s := range code.Structs {
			if !isSharedStruct(c.Open.Signature, reg, s.Name) {
				c.renames[s.Name] = c.Namespace.Qualify(s.Name)
				lp.Structs = append(lp.Structs, LinkedStruct{Name: c.renames[s.Name], Struct: s, Owner: c})
				continue
			}
			if i, ok := shared[s.Name]; ok {
				if lp.Structs[i].Struct.Hash() != s.Hash() {
					return &LinkError{Kind: ErrStructConflict, Instance: c.InstanceID, Detail: "struct " + s.Name + " differs from the one declared by " + strconv.Quote(c.Title)}
				}
				continue
			}
			shared[s.Name] = len(lp.Structs)
			lp.Structs = append(lp.Structs, LinkedStruct{Name: s.Name, Struct: s})
		}
		for _, f := range code.Functions {
			c.renames[f.Name] = c.Namespace.Qualify(f.Name)
		}
		out := c.Open.Output
		for _, g := range code.Globals {
			switch {
			case g.IsUniform():
				if expr, ok := c.Inputs[g.Name]; ok {
					c.renames[g.Name] = expr
				}
			case g.IsVarying():
			case out.Kind == glbuild.OutGlobal && g.Name == out.ID:
				c.renames[g.Name] = c.OutputVar
			default:
				c.renames[g.Name] = c.Namespace.Qualify(g.Name)
			}
		}
		if out.Kind == glbuild.OutGlobal {
			c.renames[out.ID] = c.OutputVar
		}
	}
	if !root.Redirected {
		expr, err := lp.packSink(root)
		if err != nil {
			return err
		}
		lp.sinkExpr = expr
	}
	return nil
}

func isSharedStruct(sig *glbuild.Signature, reg *glbuild.Registry, name string) bool {
	if sig.Output.Type == name {
		return true
	}
	for _, in := range sig.Inputs {
		if in.Type == name {
			return true
		}
	}
	return !reg.ForType(name).IsUnknown()
}

// packSink returns the expression converting the root's output to the sink type.
func (lp *LinkedPatch) packSink(root *Component) (string, error) {
	v := root.OutputVar
	typ := root.Open.Output.Type
	if lp.Config.SinkType != "vec4" {
		return "", linkErr(ErrSinkType, root.InstanceID, "", "cannot convert "+typ+" to "+lp.Config.SinkType)
	}
	switch typ {
	case "float":
		return "vec4(" + v + ", " + v + ", " + v + ", 1.)", nil
	case "vec2":
		return "vec4(" + v + ", 0., 1.)", nil
	case "vec3":
		return "vec4(" + v + ", 1.)", nil
	}
	for _, ls := range lp.Structs {
		if ls.Owner == nil && ls.Name == typ {
			return packStruct(v, ls.Struct), nil
		}
	}
	return "", linkErr(ErrSinkType, root.InstanceID, "", "cannot convert "+typ+" to vec4")
}

// packStruct packs the leading scalar and vector fields of a struct into a
// vec4 constructor, padding with zeroes.
func packStruct(v string, s *glbuild.Struct) string {
	var args []string
	n := 0
	for _, f := range s.Fields {
		if n >= 4 {
			break
		}
		size := 0
		switch f.Type {
		case "float", "int", "bool", "uint":
			size = 1
		case "vec2":
			size = 2
		case "vec3":
			size = 3
		case "vec4":
			size = 4
		}
		if size == 0 || n+size > 4 {
			continue
		}
		arg := v + "." + f.Name
		if size == 1 && f.Type != "float" {
			arg = "float(" + arg + ")"
		}
		args = append(args, arg)
		n += size
	}
	for ; n < 4; n++ {
		args = append(args, "0.")
	}
	return "vec4(" + strings.Join(args, ", ") + ")"
}

// LinkAll links every patch of the show concurrently. The show must not be
// mutated while LinkAll runs; pass a Clone when in doubt. Results are in
// patch order.
func (lk *Linker) LinkAll(ctx context.Context, show *Show, req Request) ([]*LinkedPatch, error) {
	patches := show.Patches()
	results := make([]*LinkedPatch, len(patches))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range patches {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			lp, err := lk.Link(show, p.ID, req)
			if err != nil {
				return fmt.Errorf("patch %s: %w", p.ID, err)
			}
			results[i] = lp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
