package flamez

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rs/zerolog/log"

	"github.com/zoobzio/flamez/svg"
)

// ErrUnknownFormat is returned for an output format no sink handles.
var ErrUnknownFormat = errors.New("flamez: unknown output format")

// Output formats understood by Config.
const (
	FormatSVG    = "svg"
	FormatFolded = "folded"
	FormatJSON   = "json"
	FormatPprof  = "pprof"
)

// Config controls what DefaultHandler does with a finished trace.
type Config struct {
	Output   string `yaml:"output" json:"output" toml:"output" env:"FLAMEZ_OUTPUT" env-default:"flamegraph.svg" env-description:"file every finished trace is written to"`
	Format   string `yaml:"format" json:"format" toml:"format" env:"FLAMEZ_FORMAT" env-default:"svg" env-description:"svg, folded, json or pprof"`
	Title    string `yaml:"title" json:"title" toml:"title" env:"FLAMEZ_TITLE" env-default:"Flame Graph" env-description:"SVG title"`
	Width    int    `yaml:"width" json:"width" toml:"width" env:"FLAMEZ_WIDTH" env-default:"1200" env-description:"SVG width in pixels"`
	Truncate string `yaml:"truncate" json:"truncate" toml:"truncate" env:"FLAMEZ_TRUNCATE" env-default:"right" env-description:"side long SVG labels are cut on: left or right"`
	Disabled bool   `yaml:"disabled" json:"disabled" toml:"disabled" env:"FLAMEZ_DISABLED" env-default:"false" env-description:"drop finished traces"`
}

// DefaultConfig returns the configuration used when none is supplied:
// an SVG written to flamegraph.svg in the working directory.
func DefaultConfig() Config {
	return Config{
		Output:   "flamegraph.svg",
		Format:   FormatSVG,
		Title:    "Flame Graph",
		Width:    1200,
		Truncate: "right",
	}
}

// LoadConfig reads the configuration from a yaml, json or toml file when
// path is set, and from FLAMEZ_* environment variables otherwise.
// Environment variables override file values.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return DefaultConfig(), fmt.Errorf("flamez: load config: %w", err)
	}
	return cfg, nil
}

// SVGOptions returns renderer options derived from the config.
func (c Config) SVGOptions() *svg.Options {
	opts := svg.DefaultOptions()
	if c.Title != "" {
		opts.Title = c.Title
	}
	if c.Width > 0 {
		opts.Width = max(c.Width, svg.MinImageWidth)
	}
	if c.Truncate == "left" {
		opts.Truncate = svg.TruncateLeft
	}
	return opts
}

// Sink returns the encoder for the configured format.
func (c Config) Sink() (Sink, error) {
	switch c.Format {
	case FormatSVG, "":
		return SVGSink{Options: c.SVGOptions()}, nil
	case FormatFolded:
		return FoldedSink{}, nil
	case FormatJSON:
		return JSONSink{Indent: true}, nil
	case FormatPprof:
		return PprofSink{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, c.Format)
	}
}

// Handler builds the trace handler described by the config.
func (c Config) Handler() (Handler, error) {
	if c.Disabled {
		return func(*FlameGraph) {}, nil
	}
	sink, err := c.Sink()
	if err != nil {
		return nil, err
	}
	return FileHandler(c.Output, sink), nil
}

var defaultHandler struct {
	once    sync.Once
	handler Handler
}

// DefaultHandler is used when no handler has been installed. It reads
// FLAMEZ_* environment variables once and, unless overridden, renders
// every trace to flamegraph.svg in the working directory.
func DefaultHandler(fg *FlameGraph) {
	defaultHandler.once.Do(func() {
		cfg, err := LoadConfig("")
		if err != nil {
			log.Warn().Err(err).Msg("flamez: using default config")
		}
		h, err := cfg.Handler()
		if err != nil {
			log.Warn().Err(err).Msg("flamez: using default config")
			h, _ = DefaultConfig().Handler()
		}
		defaultHandler.handler = h
	})
	defaultHandler.handler(fg)
}
