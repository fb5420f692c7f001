package plan

import (
	"fmt"
	"path/filepath"
)

// resolveImagePath cleans an image path and requires it to be absolute.
// Image blocks carry absolute paths only; resolving here once means
// every downstream hash is stable.
func resolveImagePath(rawPath string) (string, error) {
	if rawPath == "" {
		return "", fmt.Errorf("image path is empty")
	}
	cleaned := filepath.Clean(rawPath)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("image path %q must be absolute", rawPath)
	}
	return cleaned, nil
}
