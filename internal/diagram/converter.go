package diagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"imagegen/internal/apperrors"
	"imagegen/internal/observability"
	"imagegen/pkg/circuitbreaker"
)

// Output formats supported by the renderer.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

// RenderOptions controls how a single diagram is drawn.
type RenderOptions struct {
	Width      int
	Background string
	Format     string
}

// Renderer draws Mermaid source into an image file at outPath.
type Renderer interface {
	Render(ctx context.Context, source, outPath string, opts RenderOptions) error
}

// ConverterConfig holds the collaborators of a Converter.
type ConverterConfig struct {
	Renderer  Renderer                // required
	OutputDir string                  // default ./output
	Options   RenderOptions           // default width 1200, white background, png
	Style     *Style                  // optional theme injected into every diagram
	Breaker   *circuitbreaker.Breaker // default: opens after 3 consecutive failures
	Metrics   *observability.Metrics  // optional
}

// Outcome is the result of converting one diagram.
type Outcome struct {
	Diagram Diagram
	Path    string // written image, empty on failure
	Err     error
}

// Report summarizes a document conversion.
type Report struct {
	Outcomes []Outcome
}

// Total returns the number of diagrams found.
func (r *Report) Total() int { return len(r.Outcomes) }

// Images maps diagram index to written path for every converted diagram.
func (r *Report) Images() map[int]string {
	images := make(map[int]string)
	for _, o := range r.Outcomes {
		if o.Err == nil {
			images[o.Diagram.Index] = o.Path
		}
	}
	return images
}

// Converted returns the number of diagrams rendered successfully.
func (r *Report) Converted() int { return len(r.Images()) }

// Converter renders every diagram of a document.
type Converter struct {
	renderer  Renderer
	outputDir string
	opts      RenderOptions
	style     *Style
	breaker   *circuitbreaker.Breaker
	metrics   *observability.Metrics
}

// NewConverter creates a converter.
func NewConverter(cfg ConverterConfig) (*Converter, error) {
	if cfg.Renderer == nil {
		return nil, errors.New("renderer is required")
	}

	opts := cfg.Options
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	if opts.Background == "" {
		opts.Background = "white"
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}
	if opts.Format != FormatPNG && opts.Format != FormatSVG {
		return nil, apperrors.Validation("format", fmt.Sprintf("unsupported format %q (use png or svg)", opts.Format))
	}

	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "./output"
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{Threshold: 3})
	}

	return &Converter{
		renderer:  cfg.Renderer,
		outputDir: outputDir,
		opts:      opts,
		style:     cfg.Style,
		breaker:   breaker,
		metrics:   cfg.Metrics,
	}, nil
}

// Convert renders every Mermaid block of markdown into the output directory.
// A failed diagram does not stop the others; once the renderer has failed
// repeatedly, remaining diagrams are skipped with circuitbreaker.ErrOpen.
func (c *Converter) Convert(ctx context.Context, markdown string) (*Report, error) {
	diagrams := Extract(markdown)
	report := &Report{Outcomes: make([]Outcome, 0, len(diagrams))}
	if len(diagrams) == 0 {
		return report, nil
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, d := range diagrams {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, c.convert(ctx, d))
	}
	return report, nil
}

func (c *Converter) convert(ctx context.Context, d Diagram) Outcome {
	outPath := filepath.Join(c.outputDir, d.Filename(c.opts.Format))
	logger := slog.With("diagram", d.Index+1, "title", d.Title, "path", outPath)

	source := d.Source
	if c.style != nil {
		styled, err := c.style.Apply(source, d.ChartType())
		if err != nil {
			return Outcome{Diagram: d, Err: err}
		}
		source = styled
	}

	logger.Info("Converting diagram")
	err := c.breaker.Do(func() error {
		return c.renderer.Render(ctx, source, outPath, c.opts)
	})
	if c.metrics != nil && !errors.Is(err, circuitbreaker.ErrOpen) {
		c.metrics.RecordDiagramRendered(ctx, c.opts.Format, err == nil)
	}
	if err != nil {
		logger.Error("Diagram conversion failed", "error", err)
		return Outcome{Diagram: d, Err: err}
	}
	return Outcome{Diagram: d, Path: outPath}
}
