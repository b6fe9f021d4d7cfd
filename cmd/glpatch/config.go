package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/soypat/glpatch"
	"github.com/soypat/glpatch/glbuild"
)

// Config is read from a TOML file. Command line flags override it.
type Config struct {
	// Channel and ContentType select the root of every patch.
	Channel     string `toml:"channel"`
	ContentType string `toml:"content_type"`
	// Surface restricts output to the patches rendering to it.
	Surface string `toml:"surface"`

	GLSLVersion string `toml:"glsl_version"`
	Precision   string `toml:"precision"`
	SinkName    string `toml:"sink_name"`

	LogLevel string `toml:"log_level"`
	// Debounce is how long -watch waits for writes to settle, e.g. "200ms".
	Debounce string `toml:"debounce"`

	Preview PreviewConfig `toml:"preview"`
}

type PreviewConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
	FPS    int `toml:"fps"`
}

func defaultConfig() Config {
	cg := glpatch.DefaultCodegenConfig()
	return Config{
		Channel:     glpatch.DefaultChannel,
		ContentType: glbuild.Color.ID(),
		Precision:   cg.Precision,
		SinkName:    cg.SinkName,
		LogLevel:    "info",
		Debounce:    "200ms",
		Preview:     PreviewConfig{Width: 640, Height: 360, FPS: 60},
	}
}

// loadConfig returns the defaults overlaid with the TOML file at path, if any.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) request(reg *glbuild.Registry) (glpatch.Request, error) {
	ct, ok := reg.Lookup(cfg.ContentType)
	if !ok {
		return glpatch.Request{}, fmt.Errorf("unknown content type %q", cfg.ContentType)
	}
	return glpatch.Request{Channel: cfg.Channel, ContentType: ct}, nil
}

func (cfg Config) linker() *glpatch.Linker {
	lk := glpatch.NewDefaultLinker()
	if cfg.GLSLVersion != "" {
		lk.Config.Version = "#version " + cfg.GLSLVersion
	}
	if cfg.Precision != "" {
		lk.Config.Precision = cfg.Precision
	}
	if cfg.SinkName != "" {
		lk.Config.SinkName = cfg.SinkName
	}
	return lk
}

func (cfg Config) debounce() (time.Duration, error) {
	if cfg.Debounce == "" {
		return 0, nil
	}
	return time.ParseDuration(cfg.Debounce)
}

func (cfg Config) level() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel)))
	return lvl, err
}
