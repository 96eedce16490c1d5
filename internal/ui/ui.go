// Package ui renders import progress and index status on the terminal.
//
// Interactive terminals get a bubbletea view; pipes, CI and --no-tui get
// plain lines.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a phase of an import.
type Stage int

const (
	StageDiscovering Stage = iota
	StageImporting
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageDiscovering:
		return "Discover"
	case StageImporting:
		return "Import"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon is the tag printed by the plain renderer.
func (s Stage) Icon() string {
	switch s {
	case StageDiscovering:
		return "SCAN"
	case StageImporting:
		return "IMPORT"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent reports Current of Total files done.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
}

// ErrorEvent reports a file that failed.
type ErrorEvent struct {
	File string
	Err  error
}

// CompletionStats summarizes a finished import.
type CompletionStats struct {
	Total     int
	Succeeded int
	Failed    int
	Unchanged int
	Degraded  int
	Duration  time.Duration
	Cancelled bool
	Err       error
}

// Renderer displays import progress. Methods may be called from several
// goroutines.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures NewRenderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// GraphDir is shown in the TUI header.
	GraphDir string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain selects the plain renderer.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables styling.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithGraphDir sets the directory shown in the header.
func WithGraphDir(dir string) ConfigOption {
	return func(c *Config) { c.GraphDir = dir }
}

// NewConfig returns a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output, NoColor: DetectNoColor()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks the TUI for interactive terminals and the plain
// renderer otherwise.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether a CI environment variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}
