package composite

import (
	"path/filepath"
	"strings"
)

const exportPrefix = "removed-bg-"

// ExportName builds the download name removed-bg-<base>.png, where base is the
// uploaded file name up to its first dot.
func ExportName(original string) string {
	name := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base, _, _ := strings.Cut(name, ".")
	if base == "" || base == "/" {
		base = "image"
	}
	return exportPrefix + base + ".png"
}
