// Command glpatch links the patches of a show file and prints the generated
// fragment shaders.
//
//	glpatch [flags] show.json
//
// With -watch the show is relinked every time the file changes. With
// -preview a window renders the surface selected with -surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/glbuild"
	"github.com/soypat/glpatch/gleval"
	"github.com/soypat/glpatch/showfile"
	"github.com/soypat/glpatch/stage"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	config   string
	output   string
	png      string
	channel  string
	surface  string
	verbose  bool
	quiet    bool
	watch    bool
	preview  bool
	autowire bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "TOML configuration file")
	flag.StringVar(&f.output, "o", "", "write GLSL to file instead of stdout")
	flag.StringVar(&f.png, "png", "", "render the first patch of the surface to a PNG file of the preview size")
	flag.StringVar(&f.channel, "channel", "", "channel to link, overrides config")
	flag.StringVar(&f.surface, "surface", "", "only link patches rendering to this surface")
	flag.BoolVar(&f.verbose, "v", false, "verbose logging")
	flag.BoolVar(&f.quiet, "q", false, "only log errors")
	flag.BoolVar(&f.watch, "watch", false, "relink when the show file changes")
	flag.BoolVar(&f.preview, "preview", false, "open a window rendering the linked surface")
	flag.BoolVar(&f.autowire, "autowire", false, "wire unlinked ports before linking, taking the first candidate when ambiguous")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] show.{json,yaml}\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, f, flag.Arg(0)); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, showPath string) error {
	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}
	if f.channel != "" {
		cfg.Channel = f.channel
	}
	if f.surface != "" {
		cfg.Surface = f.surface
	}
	lvl, err := cfg.level()
	if err != nil {
		return err
	}
	switch {
	case f.verbose:
		lvl = slog.LevelDebug
	case f.quiet:
		lvl = slog.LevelError
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)

	app := &app{cfg: cfg, flags: f, log: log, showPath: showPath}
	if !f.watch && !f.preview {
		show, err := app.load()
		if err != nil {
			return err
		}
		if f.png != "" {
			return app.snapshot(show)
		}
		return app.emit(ctx, show)
	}

	g, ctx := errgroup.WithContext(ctx)
	if !f.preview {
		g.Go(func() error { return app.watch(ctx, nil) })
		return g.Wait()
	}
	req, err := cfg.request(glbuild.DefaultRegistry())
	if err != nil {
		return err
	}
	runner := stage.NewRunner(stage.Config{Linker: cfg.linker(), Request: req, Logger: log})
	g.Go(func() error { return app.watch(ctx, runner) })
	g.Go(func() error { return runner.Run(ctx, 50*time.Millisecond) })
	err = stage.Preview(ctx, runner, stage.PreviewConfig{
		Title:   "glpatch: " + filepath.Base(showPath),
		Width:   cfg.Preview.Width,
		Height:  cfg.Preview.Height,
		FPS:     cfg.Preview.FPS,
		Surface: cfg.Surface,
	})
	// Closing the window ends the program.
	if err == nil {
		err = context.Canceled
	}
	g.Go(func() error { return err })
	return g.Wait()
}

type app struct {
	cfg      Config
	flags    flags
	log      *slog.Logger
	showPath string
}

// load reads the show file and wires it if requested.
func (a *app) load() (*glpatch.Show, error) {
	show, err := showfile.Load(a.showPath)
	if err != nil {
		return nil, err
	}
	if !a.flags.autowire {
		return show, nil
	}
	var aw glpatch.AutoWirer
	for _, p := range show.Patches() {
		w, err := aw.Wire(show, p.ID)
		if err != nil {
			return nil, err
		}
		if w.IsAmbiguous() {
			a.log.Warn("ambiguous ports, taking first candidate", slog.String("patch", p.ID), slog.String("ports", w.DescribeAmbiguity()))
			w = w.TakeFirstIfAmbiguous()
		}
		if err := w.Commit(show); err != nil {
			return nil, err
		}
	}
	return show, nil
}

// emit links every selected patch and writes the generated GLSL.
func (a *app) emit(ctx context.Context, show *glpatch.Show) error {
	req, err := a.cfg.request(show.Registry())
	if err != nil {
		return err
	}
	if err := show.Validate(); err != nil {
		return err
	}
	linked, err := a.cfg.linker().LinkAll(ctx, show, req)
	if err != nil {
		return err
	}
	var w io.Writer = os.Stdout
	if a.flags.output != "" {
		fp, err := os.Create(a.flags.output)
		if err != nil {
			return err
		}
		defer fp.Close()
		w = fp
	}
	for i, p := range show.Patches() {
		if a.cfg.Surface != "" && !p.Surfaces.Matches(a.cfg.Surface) {
			continue
		}
		lp := linked[i]
		for _, warning := range lp.Warnings {
			a.log.Warn(warning, slog.String("patch", p.ID))
		}
		a.log.Debug("linked patch", slog.String("patch", p.ID), slog.String("components", lp.String()))
		fmt.Fprintf(w, "// Patch %s\n", p.ID)
		if _, err := lp.WriteGLSL(w); err != nil {
			return err
		}
	}
	return nil
}

// snapshot renders the first patch of the selected surface to the PNG file.
func (a *app) snapshot(show *glpatch.Show) error {
	req, err := a.cfg.request(show.Registry())
	if err != nil {
		return err
	}
	patches := show.Patches()
	if a.cfg.Surface != "" {
		patches = show.PatchesFor(a.cfg.Surface)
	}
	if len(patches) == 0 {
		return fmt.Errorf("no patch renders to surface %q", a.cfg.Surface)
	}
	lp, err := a.cfg.linker().Link(show, patches[0].ID, req)
	if err != nil {
		return err
	}
	for _, warning := range lp.Warnings {
		a.log.Warn(warning, slog.String("patch", patches[0].ID))
	}
	err = stage.RenderPNGFile(a.flags.png, lp, a.cfg.Preview.Width, a.cfg.Preview.Height, gleval.PlayerConfig{Logger: a.log})
	if err != nil {
		return err
	}
	a.log.Info("wrote snapshot", slog.String("file", a.flags.png), slog.Int("width", a.cfg.Preview.Width), slog.Int("height", a.cfg.Preview.Height))
	return nil
}

// watch reloads the show now and on every change of the file. Reloaded
// shows are submitted to runner or, when runner is nil, linked and written
// out.
func (a *app) watch(ctx context.Context, runner *stage.Runner) error {
	debounce, err := a.cfg.debounce()
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// Editors replace files on save; watch the directory.
	if err := watcher.Add(filepath.Dir(a.showPath)); err != nil {
		return err
	}
	reload := func() {
		show, err := a.load()
		if err != nil {
			a.log.Error("reloading show", slog.String("path", a.showPath), slog.Any("err", err))
			return
		}
		if runner != nil {
			runner.Submit(show)
			return
		}
		if err := a.emit(ctx, show); err != nil {
			a.log.Error("linking show", slog.Any("err", err))
		}
	}
	reload()
	target := filepath.Clean(a.showPath)
	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			a.log.Debug("show changed", slog.String("op", event.Op.String()))
			timer = time.After(debounce)
		case <-timer:
			timer = nil
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Error("watcher error", slog.Any("err", err))
		}
	}
}
