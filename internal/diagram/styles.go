package diagram

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// Style is a named visual theme injected into diagrams as an init directive.
type Style struct {
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	ThemeVariables map[string]string `yaml:"theme_variables"`
	Flowchart      map[string]any    `yaml:"flowchart"`
	Background     string            `yaml:"background"`
	FontFamily     string            `yaml:"font_family"`
}

// Styles maps a style key (e.g. "dark-tech") to its definition.
type Styles map[string]Style

// chartConfigs holds per chart type layout settings merged into every style.
var chartConfigs = map[string]map[string]any{
	"flowchart": {"curve": "basis", "padding": 20, "useMaxWidth": true},
	"sequence": {
		"diagramMarginX": 50, "diagramMarginY": 10, "actorMargin": 50, "width": 150, "height": 65,
		"boxMargin": 10, "boxTextMargin": 5, "noteMargin": 10, "messageMargin": 35,
	},
	"gantt": {
		"titleTopMargin": 25, "barHeight": 20, "barGap": 4, "topPadding": 50, "leftPadding": 75,
		"gridLineStartPadding": 35, "fontSize": 11, "numberSectionStyles": 4,
	},
	"class": {"diagramMarginX": 50, "diagramMarginY": 10},
	"state": {"diagramMarginX": 50, "diagramMarginY": 10},
}

// BuiltinStyles returns the bundled themes.
func BuiltinStyles() Styles {
	return Styles{
		"dark-tech": {
			Name:        "Dark Technology",
			Description: "Dark background with neon accents for technical architecture diagrams",
			ThemeVariables: map[string]string{
				"primaryColor": "#1a1a2e", "primaryTextColor": "#eee", "primaryBorderColor": "#16213e",
				"lineColor": "#0f3460", "secondaryColor": "#e94560", "tertiaryColor": "#533483",
				"background": "#1a1a2e", "mainBkg": "#1a1a2e", "secondBkg": "#16213e",
				"nodeBorder": "#0f3460", "clusterBkg": "#16213e", "clusterBorder": "#0f3460",
				"titleColor": "#eee", "edgeLabelBackground": "#1a1a2e", "nodeTextColor": "#eee",
			},
			Flowchart:  map[string]any{"htmlLabels": true, "curve": "basis", "padding": 20},
			Background: "#1a1a2e",
			FontFamily: "Inter, system-ui, -apple-system, sans-serif",
		},
		"fresh-business": {
			Name:        "Fresh Business",
			Description: "Clean look with subtle blues for business presentations",
			ThemeVariables: map[string]string{
				"primaryColor": "#e8f4f8", "primaryTextColor": "#2c3e50", "primaryBorderColor": "#3498db",
				"lineColor": "#95a5a6", "secondaryColor": "#ecf0f1", "tertiaryColor": "#f39c12",
				"background": "#ffffff", "mainBkg": "#e8f4f8", "secondBkg": "#f8fafb",
				"nodeBorder": "#3498db", "clusterBkg": "#f8fafb", "clusterBorder": "#bdc3c7",
				"titleColor": "#2c3e50", "edgeLabelBackground": "#ffffff", "nodeTextColor": "#2c3e50",
			},
			Flowchart:  map[string]any{"htmlLabels": true, "curve": "cardinal", "padding": 15},
			Background: "#ffffff",
			FontFamily: "Segoe UI, Roboto, -apple-system, sans-serif",
		},
		"hand-drawn": {
			Name:        "Hand-drawn Sketch",
			Description: "Sketch-like appearance for brainstorming and early concepts",
			ThemeVariables: map[string]string{
				"primaryColor": "#fff9e6", "primaryTextColor": "#5d4e37", "primaryBorderColor": "#8b7355",
				"lineColor": "#a0926b", "secondaryColor": "#f5f0e1", "tertiaryColor": "#d4c4a8",
				"background": "#fff9e6", "mainBkg": "#fff9e6", "secondBkg": "#f5f0e1",
				"nodeBorder": "#8b7355", "clusterBkg": "#f5f0e1", "clusterBorder": "#a0926b",
				"titleColor": "#5d4e37", "edgeLabelBackground": "#fff9e6", "nodeTextColor": "#5d4e37",
			},
			Flowchart:  map[string]any{"htmlLabels": true, "curve": "stepAfter", "padding": 20},
			Background: "#fff9e6",
			FontFamily: "Comic Sans MS, cursive, sans-serif",
		},
		"gradient-modern": {
			Name:        "Gradient Modern",
			Description: "Vibrant modern colors for eye-catching presentations",
			ThemeVariables: map[string]string{
				"primaryColor": "#667eea", "primaryTextColor": "#ffffff", "primaryBorderColor": "#764ba2",
				"lineColor": "#a78bfa", "secondaryColor": "#f093fb", "tertiaryColor": "#f5576c",
				"background": "#1a1a2e", "mainBkg": "#667eea", "secondBkg": "#764ba2",
				"nodeBorder": "#a78bfa", "clusterBkg": "#1e1b4b", "clusterBorder": "#4c1d95",
				"titleColor": "#ffffff", "edgeLabelBackground": "#1a1a2e", "nodeTextColor": "#ffffff",
			},
			Flowchart:  map[string]any{"htmlLabels": true, "curve": "basis", "padding": 25},
			Background: "#1a1a2e",
			FontFamily: "SF Pro Display, -apple-system, BlinkMacSystemFont, sans-serif",
		},
	}
}

// LoadStyles returns the built-in themes overlaid with the YAML file at path.
// An empty path returns the built-ins. Entries in the file replace built-ins
// of the same key.
func LoadStyles(path string) (Styles, error) {
	styles := BuiltinStyles()
	if path == "" {
		return styles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read styles file: %w", err)
	}
	var custom Styles
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("failed to parse styles file %s: %w", path, err)
	}
	maps.Copy(styles, custom)
	return styles, nil
}

// Names returns the style keys in sorted order.
func (s Styles) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Lookup returns the style registered under name.
func (s Styles) Lookup(name string) (Style, error) {
	style, ok := s[name]
	if !ok {
		return Style{}, fmt.Errorf("unknown style %q (available: %v)", name, s.Names())
	}
	return style, nil
}

// InitDirective renders style as a Mermaid %%{init: ...}%% directive for the
// given chart type.
func (s Style) InitDirective(chartType string) (string, error) {
	vars := make(map[string]string, len(s.ThemeVariables)+2)
	maps.Copy(vars, s.ThemeVariables)
	// SVG output only picks up the background from the theme.
	if _, ok := vars["background"]; !ok && s.Background != "" {
		vars["background"] = s.Background
	}
	if s.FontFamily != "" {
		vars["fontFamily"] = s.FontFamily
	}

	settings := map[string]any{
		"theme":          "base",
		"themeVariables": vars,
	}

	chart := make(map[string]any)
	maps.Copy(chart, chartConfigs[chartType])
	if chartType == "flowchart" {
		maps.Copy(chart, s.Flowchart)
	} else if len(s.Flowchart) > 0 {
		settings["flowchart"] = s.Flowchart
	}
	if len(chart) > 0 {
		settings[chartType] = chart
	}

	// encoding/json sorts map keys, which keeps the directive stable.
	data, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("failed to encode style: %w", err)
	}
	return "%%{init: " + string(data) + "}%%", nil
}

var initPattern = regexp.MustCompile(`(?s)%%\{init:.*?\}%%\s*`)

// Apply injects style into source, replacing an existing init directive.
func (s Style) Apply(source, chartType string) (string, error) {
	directive, err := s.InitDirective(chartType)
	if err != nil {
		return "", err
	}
	if loc := initPattern.FindStringIndex(source); loc != nil {
		return source[:loc[0]] + directive + "\n" + source[loc[1]:], nil
	}
	return directive + "\n" + source, nil
}
