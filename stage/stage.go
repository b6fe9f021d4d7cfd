// Package stage keeps linked patches up to date while a show is edited.
//
// The editing session submits snapshots of its show to a Runner. Housekeeping
// links them off the render loop and the render loop picks up the result at
// its next tick, so a frame never sees a half-built plan. When a snapshot
// fails to link the last good plan keeps rendering, or the guru meditation
// program if there never was one.
package stage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/glpatch"
)

// Entry is a linked patch and the surfaces it renders to.
type Entry struct {
	PatchID  string
	Surfaces glpatch.Surfaces
	Linked   *glpatch.LinkedPatch
}

// Plan is the immutable result of one housekeeping pass.
type Plan struct {
	Generation uint64
	Entries    []Entry
	// Err is the error of the pass that produced a fallback plan.
	Err error
	// Fallback is set when Entries come from an earlier plan or the guru
	// meditation program instead of the latest snapshot.
	Fallback bool
}

// For returns the linked patch rendering to surface: the first entry whose
// surfaces match, else the guru meditation program.
func (p *Plan) For(surface string) *glpatch.LinkedPatch {
	for _, e := range p.Entries {
		if e.Surfaces.Matches(surface) {
			return e.Linked
		}
	}
	return glpatch.GuruMeditation()
}

func guruPlan(gen uint64, err error) *Plan {
	return &Plan{
		Generation: gen,
		Entries:    []Entry{{PatchID: "guru", Surfaces: glpatch.AllSurfaces(), Linked: glpatch.GuruMeditation()}},
		Err:        err,
		Fallback:   true,
	}
}

// Config configures a Runner.
type Config struct {
	Linker  *glpatch.Linker
	Request glpatch.Request
	Logger  *slog.Logger
}

// Runner links submitted show snapshots and hands plans to the render loop.
type Runner struct {
	linker *glpatch.Linker
	req    glpatch.Request
	log    *slog.Logger

	mu       sync.Mutex
	pending  *glpatch.Show
	gen      uint64
	lastGood *Plan

	next    atomic.Pointer[Plan]
	current atomic.Pointer[Plan]
}

// NewRunner returns a runner rendering the guru meditation program until
// the first successful housekeeping pass.
func NewRunner(cfg Config) *Runner {
	if cfg.Linker == nil {
		cfg.Linker = glpatch.NewDefaultLinker()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Runner{linker: cfg.Linker, req: cfg.Request, log: cfg.Logger}
	r.current.Store(guruPlan(0, nil))
	return r
}

// Submit hands a snapshot of show to housekeeping. It must be called by the
// goroutine editing show; later edits do not affect the snapshot.
func (r *Runner) Submit(show *glpatch.Show) {
	snap := show.Clone()
	r.mu.Lock()
	r.pending = snap
	r.mu.Unlock()
}

// Housekeep links the latest submitted snapshot, if any, and queues the
// resulting plan for the next Tick. It reports whether a plan was queued and
// returns the linking error of a failed pass, in which case the queued plan
// is a fallback.
func (r *Runner) Housekeep(ctx context.Context) (bool, error) {
	r.mu.Lock()
	show := r.pending
	r.pending = nil
	r.mu.Unlock()
	if show == nil {
		return false, nil
	}
	start := time.Now()
	plan, err := r.link(ctx, show)
	r.mu.Lock()
	r.gen++
	gen := r.gen
	switch {
	case err == nil:
		plan.Generation = gen
		r.lastGood = plan
	case r.lastGood != nil:
		plan = &Plan{Generation: gen, Entries: r.lastGood.Entries, Err: err, Fallback: true}
	default:
		plan = guruPlan(gen, err)
	}
	r.mu.Unlock()
	if err != nil {
		r.log.Error("housekeeping failed, keeping previous plan", slog.Uint64("generation", gen), slog.Any("err", err))
	} else {
		warnings := 0
		for _, e := range plan.Entries {
			for _, w := range e.Linked.Warnings {
				r.log.Warn(w, slog.String("patch", e.PatchID))
			}
			warnings += len(e.Linked.Warnings)
		}
		r.log.Info("linked show", slog.Uint64("generation", gen), slog.Int("patches", len(plan.Entries)),
			slog.Int("warnings", warnings), slog.Duration("took", time.Since(start)))
	}
	r.next.Store(plan)
	return true, err
}

func (r *Runner) link(ctx context.Context, show *glpatch.Show) (*Plan, error) {
	if err := show.Validate(); err != nil {
		return nil, err
	}
	linked, err := r.linker.LinkAll(ctx, show, r.req)
	if err != nil {
		return nil, err
	}
	patches := show.Patches()
	plan := &Plan{Entries: make([]Entry, len(patches))}
	for i, p := range patches {
		plan.Entries[i] = Entry{PatchID: p.ID, Surfaces: p.Surfaces, Linked: linked[i]}
	}
	return plan, nil
}

// Tick swaps in the plan queued by housekeeping, if any, and returns the plan
// to render this frame. swapped is true when the plan changed.
func (r *Runner) Tick() (plan *Plan, swapped bool) {
	if next := r.next.Swap(nil); next != nil {
		r.current.Store(next)
		return next, true
	}
	return r.current.Load(), false
}

// Current returns the plan being rendered.
func (r *Runner) Current() *Plan { return r.current.Load() }

// Run housekeeps every interval until ctx is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Housekeep(ctx)
		}
	}
}
