package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imagegen/internal/apperrors"
	"imagegen/internal/diagram"
)

func TestParseArgs_Defaults(t *testing.T) {
	t.Parallel()

	opts, err := parseArgs([]string{"doc.md"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}

	want := diagram.RenderOptions{Width: 1200, Background: "white", Format: diagram.FormatPNG}
	if opts.render != want {
		t.Errorf("render = %+v, want %+v", opts.render, want)
	}
	if opts.outputDir != "./output" || opts.input != "doc.md" || opts.replace || opts.bgSet {
		t.Errorf("options = %+v, want defaults", opts)
	}
}

func TestParseArgs_Flags(t *testing.T) {
	t.Parallel()

	opts, err := parseArgs([]string{"-o", "imgs", "-w", "800", "-b", "transparent", "-f", "svg", "-style", "dark-tech", "-replace", "doc.md"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}
	if opts.outputDir != "imgs" || opts.style != "dark-tech" || !opts.replace || !opts.bgSet {
		t.Errorf("options = %+v", opts)
	}
	if opts.render != (diagram.RenderOptions{Width: 800, Background: "transparent", Format: "svg"}) {
		t.Errorf("render = %+v", opts.render)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"two inputs", []string{"a.md", "b.md"}},
		{"bad format", []string{"-f", "gif", "a.md"}},
		{"bad width", []string{"-w", "0", "a.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := parseArgs(tt.args, io.Discard); !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("parseArgs() error = %v, want ErrValidation", err)
			}
		})
	}

	if _, err := parseArgs([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("parseArgs(-h) error = %v, want flag.ErrHelp", err)
	}
}

func TestResolveStyle(t *testing.T) {
	t.Parallel()

	opts := &options{style: "dark-tech", render: diagram.RenderOptions{Background: "white"}}
	style, err := resolveStyle(opts, "")
	if err != nil {
		t.Fatalf("resolveStyle() error = %v", err)
	}
	if style == nil || style.Name != "Dark Technology" {
		t.Fatalf("style = %+v, want dark-tech", style)
	}
	if opts.render.Background != "#1a1a2e" {
		t.Errorf("Background = %q, want style background", opts.render.Background)
	}

	explicit := &options{style: "dark-tech", bgSet: true, render: diagram.RenderOptions{Background: "white"}}
	if _, err := resolveStyle(explicit, ""); err != nil {
		t.Fatalf("resolveStyle() error = %v", err)
	}
	if explicit.render.Background != "white" {
		t.Errorf("Background = %q, want explicit -b kept", explicit.render.Background)
	}

	if _, err := resolveStyle(&options{style: "neon"}, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("resolveStyle(neon) error = %v, want ErrValidation", err)
	}
	if style, err := resolveStyle(&options{}, ""); style != nil || err != nil {
		t.Errorf("resolveStyle(no style) = %v, %v; want nil, nil", style, err)
	}
}

func TestRun_NoDiagrams(t *testing.T) {
	input := filepath.Join(t.TempDir(), "plain.md")
	if err := os.WriteFile(input, []byte("# Plain\n\nNo diagrams.\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var out bytes.Buffer
	if err := run([]string{input}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "No Mermaid diagrams found.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_MissingInput(t *testing.T) {
	err := run([]string{filepath.Join(t.TempDir(), "missing.md")}, io.Discard)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("run() error = %v, want ErrValidation", err)
	}
}

func TestPrintReport(t *testing.T) {
	t.Parallel()

	report := &diagram.Report{Outcomes: []diagram.Outcome{
		{Diagram: diagram.Diagram{Index: 0, Title: "graph TD"}, Path: "output/diagram_1_x.png"},
		{Diagram: diagram.Diagram{Index: 1, Title: "sequenceDiagram"}, Err: errors.New("renderer failed")},
	}}

	var out bytes.Buffer
	printReport(&out, report)
	for _, want := range []string{"Found 2 diagram(s)", "Converting diagram 1: graph TD", "Output: output/diagram_1_x.png", "Failed: renderer failed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}
