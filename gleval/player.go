package gleval

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/glbuild"
)

// PlayerConfig configures a Player. Zero values are usable.
type PlayerConfig struct {
	Logger *slog.Logger
	Clock  *Clock
	// Model is uploaded to model info data sources.
	Model Model
	// Fixture is uploaded to fixture info data sources.
	Fixture Fixture
	// Pixels holds the model-space location of every pixel of the surface,
	// row by row, for pixel location data sources.
	Pixels                    []ms3.Vec
	PixelsWidth, PixelsHeight int
}

// Player compiles linked patches on a GL context and feeds their data
// sources. Programs are cached by generated source and feeds by data source
// id; ReleaseUnused frees whatever was not used since the previous call.
// All methods must be called from the goroutine owning the GL context.
type Player struct {
	gl  glpatch.GLContext
	log *slog.Logger
	cfg PlayerConfig

	Resolution        Size
	PreviewResolution Size

	mu       sync.Mutex
	sliders  map[string]*Slider
	feeds    map[string]*feedEntry
	programs map[uint64]*programEntry
}

type feedEntry struct {
	ds   glpatch.DataSource
	feed glpatch.DataFeed
}

type programEntry struct {
	prog *glpatch.Program
	used bool
}

// NewPlayer returns a player compiling on gl.
func NewPlayer(gl glpatch.GLContext, cfg PlayerConfig) *Player {
	if gl == nil {
		panic("nil GL context")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = NewClock(nil)
	}
	return &Player{
		gl:       gl,
		log:      cfg.Logger,
		cfg:      cfg,
		sliders:  make(map[string]*Slider),
		feeds:    make(map[string]*feedEntry),
		programs: make(map[uint64]*programEntry),
	}
}

// Program returns the compiled program for lp, compiling it on first use.
func (p *Player) Program(lp *glpatch.LinkedPatch) (*glpatch.Program, error) {
	src := lp.AppendGLSL(nil)
	key := glbuild.Hash(src, 0)
	p.mu.Lock()
	entry, ok := p.programs[key]
	if ok {
		entry.used = true
	}
	p.mu.Unlock()
	if ok {
		return entry.prog, nil
	}
	prog, err := lp.CreateProgram(p.gl, p.OpenDataFeed)
	if err != nil {
		p.log.Error("compile failed", slog.String("patch", lp.String()), slog.Any("err", err))
		return nil, err
	}
	for _, w := range prog.Warnings {
		p.log.Warn(w, slog.String("patch", lp.String()))
	}
	p.log.Debug("compiled program", slog.String("patch", lp.String()), slog.Int("bytes", len(src)))
	p.mu.Lock()
	p.programs[key] = &programEntry{prog: prog, used: true}
	p.mu.Unlock()
	return prog, nil
}

// OpenDataFeed returns the feed for a data source, creating it when there is
// none or the data source changed since the feed was created. It implements
// glpatch.DataFeedResolver and returns nil for data sources it cannot feed.
func (p *Player) OpenDataFeed(id string, ds glpatch.DataSource) glpatch.DataFeed {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.feeds[id]; ok && e.ds == ds && !freed(e.feed) {
		return e.feed
	}
	feed, err := p.newFeed(id, ds)
	if err != nil {
		p.log.Warn("no data feed", slog.String("id", id), slog.String("kind", string(ds.Kind)), slog.Any("err", err))
		return nil
	}
	p.feeds[id] = &feedEntry{ds: ds, feed: feed}
	return feed
}

func (p *Player) newFeed(id string, ds glpatch.DataSource) (glpatch.DataFeed, error) {
	switch ds.Kind {
	case glpatch.KindTime:
		return TimeFeed(p.cfg.Clock), nil
	case glpatch.KindResolution:
		return ResolutionFeed(&p.Resolution), nil
	case glpatch.KindPreviewResolution:
		return ResolutionFeed(&p.PreviewResolution), nil
	case glpatch.KindSlider:
		s, ok := p.sliders[id]
		if !ok {
			s = NewSlider(ds)
			p.sliders[id] = s
		}
		return SliderFeed(s), nil
	case glpatch.KindColorPicker:
		return ColorFeed(ds.Color), nil
	case glpatch.KindModelInfo:
		return ModelInfoFeed(p.cfg.Model), nil
	case glpatch.KindFixtureInfo:
		return FixtureInfoFeed(p.cfg.Fixture), nil
	case glpatch.KindPixelLocation:
		tc, _ := p.gl.(TextureContext)
		return NewPixelLocationFeed(tc, p.cfg.PixelsWidth, p.cfg.PixelsHeight, p.cfg.Pixels)
	}
	return nil, fmt.Errorf("unsupported data source kind %q", ds.Kind)
}

// SetSlider sets the value of the slider data source id. It reports false
// if no feed was ever opened for it.
func (p *Player) SetSlider(id string, v float32) bool {
	p.mu.Lock()
	s, ok := p.sliders[id]
	p.mu.Unlock()
	if ok {
		s.Set(v)
	}
	return ok
}

// ReleaseUnused releases programs not requested since the previous call and
// frees feeds no program uses anymore.
func (p *Player) ReleaseUnused() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.programs {
		if e.used {
			e.used = false
			continue
		}
		e.prog.Release()
		delete(p.programs, key)
	}
	for id, e := range p.feeds {
		if e.feed.InUse() {
			continue
		}
		if rc, ok := e.feed.(interface{ Reclaim() bool }); ok {
			rc.Reclaim()
		}
		delete(p.feeds, id)
		p.log.Debug("released data feed", slog.String("id", id))
	}
}

// Release releases every program and feed.
func (p *Player) Release() {
	p.mu.Lock()
	for _, e := range p.programs {
		e.used = false
	}
	p.mu.Unlock()
	p.ReleaseUnused()
}

// Stats returns the number of cached programs and feeds.
func (p *Player) Stats() (programs, feeds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.programs), len(p.feeds)
}

func freed(f glpatch.DataFeed) bool {
	rc, ok := f.(interface{ Freed() bool })
	return ok && rc.Freed()
}
