package glpatch

import (
	"errors"
	"fmt"
	"sync"
)

// GLContext compiles fragment shaders. Implementations are bound to the
// goroutine owning the graphics context.
type GLContext interface {
	Compile(fragmentSrc string) (GPUProgram, error)
}

// GPUProgram is a compiled and linked program.
type GPUProgram interface {
	// Uniform returns the uniform named name. ok is false when the program
	// does not use it, e.g. because the compiler optimized it away.
	Uniform(name string) (u Uniform, ok bool)
	// Use makes the program current.
	Use()
	Release()
}

// Uniform uploads values to a program uniform.
type Uniform interface {
	SetFloats(v ...float32)
	SetInt(v int32)
}

// RefCounted is a resource shared between programs.
type RefCounted interface {
	Use()
	Release()
	InUse() bool
}

// DataFeed produces the runtime value of a data source.
type DataFeed interface {
	RefCounted
	// Bind prepares the feed to upload to varName in prog.
	Bind(prog GPUProgram, varName string) Binding
}

// Binding uploads a data feed's current value to one program.
type Binding interface {
	// IsValid reports whether the program uses the bound uniform.
	IsValid() bool
	SetOnProgram()
	Release()
}

// DataFeedResolver returns the feed for a data source or nil if none is available.
type DataFeedResolver func(id string, ds DataSource) DataFeed

// Program is a linked patch compiled on a GLContext with its data feeds bound.
type Program struct {
	Patch    *LinkedPatch
	GPU      GPUProgram
	Warnings []string
	bindings []Binding
	feeds    []DataFeed
	released bool
}

// CreateProgram compiles the linked patch and binds the data feeds of its
// non-implicit data sources. Feeds whose bindings are not valid are
// released; sources without a feed produce a warning.
func (lp *LinkedPatch) CreateProgram(ctx GLContext, resolve DataFeedResolver) (*Program, error) {
	if ctx == nil || resolve == nil {
		panic("nil GL context or resolver")
	}
	gpu, err := ctx.Compile(lp.GLSL())
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", lp, err)
	}
	prog := &Program{Patch: lp, GPU: gpu}
	for _, ds := range lp.DataSources {
		if ds.IsImplicit() {
			continue
		}
		feed := resolve(ds.ID, ds.DataSource)
		if feed == nil {
			prog.Warnings = append(prog.Warnings, fmt.Sprintf("no data feed for %s (%s)", ds.ID, ds.Kind))
			continue
		}
		feed.Use()
		b := feed.Bind(gpu, ds.VarName)
		if b == nil || !b.IsValid() {
			if b != nil {
				b.Release()
			}
			feed.Release()
			continue
		}
		prog.bindings = append(prog.bindings, b)
		prog.feeds = append(prog.feeds, feed)
	}
	return prog, nil
}

// Update makes the program current and uploads every bound feed.
func (p *Program) Update() {
	p.GPU.Use()
	for _, b := range p.bindings {
		b.SetOnProgram()
	}
}

// Release frees the bindings, releases the feeds and the GPU program. It is
// safe to call more than once.
func (p *Program) Release() {
	if p.released {
		return
	}
	p.released = true
	for _, b := range p.bindings {
		b.Release()
	}
	for _, f := range p.feeds {
		f.Release()
	}
	p.GPU.Release()
	p.bindings, p.feeds = nil, nil
}

// ErrReleased is returned when using a resource whose last reference was released.
var ErrReleased = errors.New("resource already released")

// RefCounter implements RefCounted. The free function runs exactly once,
// when the last reference is released.
type RefCounter struct {
	mu    sync.Mutex
	count int
	freed bool
	free  func()
}

// NewRefCounter returns a counter with no references that calls free when
// the last reference is released. free may be nil.
func NewRefCounter(free func()) *RefCounter {
	return &RefCounter{free: free}
}

// Use adds a reference. It panics if the resource was already freed.
func (r *RefCounter) Use() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		panic(ErrReleased)
	}
	r.count++
}

// Release drops a reference. It panics if there are none.
func (r *RefCounter) Release() {
	r.mu.Lock()
	if r.count <= 0 {
		r.mu.Unlock()
		panic("release of unreferenced resource")
	}
	r.count--
	last := r.count == 0
	if last {
		r.freed = true
	}
	r.mu.Unlock()
	if last && r.free != nil {
		r.free()
	}
}

// InUse reports whether any reference is held.
func (r *RefCounter) InUse() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count > 0
}

// Freed reports whether the last reference was released or Reclaim freed it.
func (r *RefCounter) Freed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freed
}

// Reclaim frees a resource that is not in use and was never freed. It
// reports whether free ran.
func (r *RefCounter) Reclaim() bool {
	r.mu.Lock()
	if r.count > 0 || r.freed {
		r.mu.Unlock()
		return false
	}
	r.freed = true
	r.mu.Unlock()
	if r.free != nil {
		r.free()
	}
	return true
}
