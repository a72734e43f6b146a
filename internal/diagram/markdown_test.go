package diagram

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReplace(t *testing.T) {
	t.Parallel()

	got := Replace(sampleDoc, map[int]string{1: "output/diagram_2_da677f9b.png"})

	if !strings.Contains(got, "```mermaid\ngraph TD\nA-->B\n```") {
		t.Error("Replace() rewrote a diagram without an image")
	}
	if !strings.Contains(got, "![Diagram 2](output/diagram_2_da677f9b.png)") {
		t.Errorf("Replace() missing image reference:\n%s", got)
	}
	if strings.Contains(got, "sequenceDiagram") {
		t.Error("Replace() kept the replaced block")
	}
	if !strings.Contains(got, "```go\nfmt.Println(1)\n```") {
		t.Error("Replace() touched a non-mermaid block")
	}
}

func TestConvertedPath(t *testing.T) {
	t.Parallel()

	if got, want := ConvertedPath("out", "docs/design.md"), filepath.Join("out", "design_converted.md"); got != want {
		t.Errorf("ConvertedPath() = %q, want %q", got, want)
	}
}

func TestWriteConverted(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteConverted(dir, "design.md", sampleDoc, map[int]string{0: "a.png", 1: "b.png"})
	if err != nil {
		t.Fatalf("WriteConverted() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"![Diagram 1](a.png)", "![Diagram 2](b.png)", "Intro text."} {
		if !strings.Contains(string(data), want) {
			t.Errorf("converted markdown missing %q", want)
		}
	}
}
