// mermaid2png renders the Mermaid diagrams of a Markdown file to images.
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
	"syscall"

	"imagegen/internal/apperrors"
	"imagegen/internal/config"
	"imagegen/internal/diagram"
	"imagegen/internal/diagram/docker"
	"imagegen/internal/observability"
)

func main() {
	err := run(os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(apperrors.ExitOK)
	}
	if err != nil {
		slog.Error("Conversion failed", "error", err)
	}
	os.Exit(apperrors.ExitCode(err))
}

// options are the settings taken from the command line.
type options struct {
	input     string
	outputDir string
	style     string
	replace   bool
	render    diagram.RenderOptions
	bgSet     bool // -b given explicitly
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("mermaid2png", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: mermaid2png [flags] <input.md>")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.outputDir, "o", "./output", "output directory")
	fs.IntVar(&opts.render.Width, "w", 1200, "image width")
	fs.StringVar(&opts.render.Background, "b", "white", "background color")
	fs.StringVar(&opts.render.Format, "f", diagram.FormatPNG, "output format (png or svg)")
	fs.StringVar(&opts.style, "style", "", "style theme applied to every diagram")
	fs.BoolVar(&opts.replace, "replace", false, "write a copy of the input with diagrams replaced by images")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, apperrors.Validation("args", err.Error())
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "b" {
			opts.bgSet = true
		}
	})

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, apperrors.Validation("args", "expected exactly one input file")
	}
	opts.input = fs.Arg(0)

	if opts.render.Format != diagram.FormatPNG && opts.render.Format != diagram.FormatSVG {
		return nil, apperrors.Validation("format", fmt.Sprintf("unsupported format %q (use png or svg)", opts.render.Format))
	}
	if opts.render.Width <= 0 {
		return nil, apperrors.Validation("width", "width must be positive")
	}
	return opts, nil
}

// resolveStyle looks up the requested theme. A theme background replaces the
// default unless -b was given.
func resolveStyle(opts *options, stylesFile string) (*diagram.Style, error) {
	if opts.style == "" {
		return nil, nil
	}
	styles, err := diagram.LoadStyles(stylesFile)
	if err != nil {
		return nil, err
	}
	style, err := styles.Lookup(opts.style)
	if err != nil {
		return nil, apperrors.Validation("style", err.Error())
	}
	if !opts.bgSet && style.Background != "" {
		opts.render.Background = style.Background
	}
	return &style, nil
}

func run(args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	opts, err := parseArgs(args, os.Stderr)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.Validation("input", fmt.Sprintf("file not found: %s", opts.input))
		}
		return fmt.Errorf("failed to read input: %w", err)
	}
	markdown := string(data)

	if len(diagram.Extract(markdown)) == 0 {
		fmt.Fprintln(stdout, "No Mermaid diagrams found.")
		return nil
	}

	style, err := resolveStyle(opts, cfg.Render.StylesFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cfg.MetricsFile != "" {
			if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				slog.Warn("Failed to write metrics file", "path", cfg.MetricsFile, "error", err)
			}
		}
		_ = metrics.Shutdown(context.Background())
	}()

	renderer, err := docker.New(ctx, docker.Config{
		Image:       cfg.Render.Image,
		Timeout:     cfg.Render.Timeout,
		PullTimeout: cfg.Render.PullTimeout,
	})
	if err != nil {
		return err
	}
	defer renderer.Close()

	converter, err := diagram.NewConverter(diagram.ConverterConfig{
		Renderer:  renderer,
		OutputDir: opts.outputDir,
		Options:   opts.render,
		Style:     style,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	report, err := converter.Convert(ctx, markdown)
	if err != nil {
		return err
	}
	printReport(stdout, report)

	if opts.replace && report.Converted() > 0 {
		path, err := diagram.WriteConverted(opts.outputDir, opts.input, markdown, report.Images())
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\nConverted Markdown: %s\n", path)
	}

	fmt.Fprintf(stdout, "\nDone! %d/%d diagrams converted.\n", report.Converted(), report.Total())
	return nil
}

func printReport(w io.Writer, report *diagram.Report) {
	fmt.Fprintf(w, "Found %d diagram(s)\n", report.Total())
	for _, o := range report.Outcomes {
		fmt.Fprintf(w, "\nConverting diagram %d: %s\n", o.Diagram.Index+1, o.Diagram.Title)
		if o.Err != nil {
			fmt.Fprintf(w, "  Failed: %v\n", o.Err)
			continue
		}
		fmt.Fprintf(w, "  Output: %s\n", o.Path)
	}
}
