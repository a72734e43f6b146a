package diagram

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// decodeDirective parses the JSON object inside an init directive.
func decodeDirective(t *testing.T, directive string) map[string]any {
	t.Helper()

	body, ok := strings.CutPrefix(directive, "%%{init: ")
	if !ok {
		t.Fatalf("directive %q has no init prefix", directive)
	}
	body, ok = strings.CutSuffix(body, "}%%")
	if !ok {
		t.Fatalf("directive %q has no closing marker", directive)
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(body), &settings); err != nil {
		t.Fatalf("directive body is not JSON: %v", err)
	}
	return settings
}

func TestBuiltinStyles(t *testing.T) {
	t.Parallel()

	want := []string{"dark-tech", "fresh-business", "gradient-modern", "hand-drawn"}
	got := BuiltinStyles().Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestStyles_Lookup(t *testing.T) {
	t.Parallel()

	styles := BuiltinStyles()
	if _, err := styles.Lookup("dark-tech"); err != nil {
		t.Errorf("Lookup(dark-tech) error = %v", err)
	}
	if _, err := styles.Lookup("neon"); err == nil || !strings.Contains(err.Error(), "dark-tech") {
		t.Errorf("Lookup(neon) error = %v, want unknown style listing the available ones", err)
	}
}

func TestStyle_InitDirective(t *testing.T) {
	t.Parallel()

	style := BuiltinStyles()["dark-tech"]
	directive, err := style.InitDirective("flowchart")
	if err != nil {
		t.Fatalf("InitDirective() error = %v", err)
	}

	settings := decodeDirective(t, directive)
	if settings["theme"] != "base" {
		t.Errorf("theme = %v, want base", settings["theme"])
	}
	vars := settings["themeVariables"].(map[string]any)
	if vars["primaryColor"] != "#1a1a2e" {
		t.Errorf("primaryColor = %v, want #1a1a2e", vars["primaryColor"])
	}
	if vars["fontFamily"] != style.FontFamily {
		t.Errorf("fontFamily = %v, want %q", vars["fontFamily"], style.FontFamily)
	}
	flow := settings["flowchart"].(map[string]any)
	if flow["useMaxWidth"] != true || flow["htmlLabels"] != true {
		t.Errorf("flowchart = %v, want chart defaults merged with style settings", flow)
	}

	again, _ := style.InitDirective("flowchart")
	if again != directive {
		t.Error("InitDirective() is not deterministic")
	}
}

func TestStyle_InitDirective_Background(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		style Style
		want  any
	}{
		{"from style background", Style{Background: "#fafafa"}, "#fafafa"},
		{"theme variable wins", Style{Background: "#fafafa", ThemeVariables: map[string]string{"background": "#000"}}, "#000"},
		{"no background", Style{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			directive, err := tt.style.InitDirective("flowchart")
			if err != nil {
				t.Fatalf("InitDirective() error = %v", err)
			}
			vars := decodeDirective(t, directive)["themeVariables"].(map[string]any)
			if vars["background"] != tt.want {
				t.Errorf("themeVariables.background = %v, want %v", vars["background"], tt.want)
			}
		})
	}
}

func TestStyle_InitDirective_Sequence(t *testing.T) {
	t.Parallel()

	directive, err := BuiltinStyles()["fresh-business"].InitDirective("sequence")
	if err != nil {
		t.Fatalf("InitDirective() error = %v", err)
	}
	settings := decodeDirective(t, directive)
	if _, ok := settings["sequence"]; !ok {
		t.Error("sequence settings missing")
	}
	if _, ok := settings["flowchart"]; !ok {
		t.Error("style flowchart settings missing")
	}
}

func TestStyle_Apply(t *testing.T) {
	t.Parallel()

	style := BuiltinStyles()["hand-drawn"]
	directive, _ := style.InitDirective("flowchart")

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "prepends directive",
			source: "graph TD\nA-->B",
			want:   directive + "\ngraph TD\nA-->B",
		},
		{
			name:   "replaces existing directive",
			source: "%%{init: {\"theme\": \"forest\", \"flowchart\": {\"curve\": \"linear\"}}}%%\ngraph TD\nA-->B",
			want:   directive + "\ngraph TD\nA-->B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := style.Apply(tt.source, "flowchart")
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestLoadStyles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "styles.yaml")
	content := `
corporate:
  name: Corporate
  description: House colors
  background: "#fafafa"
  font_family: Helvetica
  theme_variables:
    primaryColor: "#003366"
  flowchart:
    curve: linear
dark-tech:
  name: Overridden
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	styles, err := LoadStyles(path)
	if err != nil {
		t.Fatalf("LoadStyles() error = %v", err)
	}

	corp, err := styles.Lookup("corporate")
	if err != nil {
		t.Fatalf("Lookup(corporate) error = %v", err)
	}
	if corp.ThemeVariables["primaryColor"] != "#003366" || corp.Flowchart["curve"] != "linear" || corp.Background != "#fafafa" {
		t.Errorf("corporate = %+v, want values from file", corp)
	}
	if styles["dark-tech"].Name != "Overridden" {
		t.Errorf("dark-tech name = %q, want override from file", styles["dark-tech"].Name)
	}
	if _, ok := styles["hand-drawn"]; !ok {
		t.Error("built-in hand-drawn missing after load")
	}
}

func TestLoadStyles_Errors(t *testing.T) {
	t.Parallel()

	if _, err := LoadStyles(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadStyles(missing) expected error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("corporate: [unclosed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := LoadStyles(bad); err == nil {
		t.Error("LoadStyles(bad yaml) expected error")
	}

	styles, err := LoadStyles("")
	if err != nil || len(styles) != 4 {
		t.Errorf("LoadStyles(\"\") = %d styles, %v; want built-ins", len(styles), err)
	}
}
