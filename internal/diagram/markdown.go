package diagram

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Replace swaps every Mermaid block that has an entry in images for an image
// reference. Blocks without an entry are left untouched.
func Replace(markdown string, images map[int]string) string {
	idx := 0
	return blockPattern.ReplaceAllStringFunc(markdown, func(block string) string {
		current := idx
		idx++
		path, ok := images[current]
		if !ok {
			return block
		}
		return fmt.Sprintf("![Diagram %d](%s)", current+1, path)
	})
}

// ConvertedPath returns where the rewritten copy of input is written.
func ConvertedPath(outputDir, input string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, name+"_converted.md")
}

// WriteConverted writes markdown with rendered blocks replaced into outputDir
// and returns the written path.
func WriteConverted(outputDir, input, markdown string, images map[int]string) (string, error) {
	path := ConvertedPath(outputDir, input)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Replace(markdown, images)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write converted markdown: %w", err)
	}
	return path, nil
}
