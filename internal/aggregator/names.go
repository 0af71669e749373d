package aggregator

import (
	"strings"

	"github.com/samber/lo"
)

var (
	projectMarkers = []string{"Github", "github", "GitHub", "Projects", "projects", "code", "Code", "dev", "Development", "src", "repos", "workspace"}
	commonSubdirs  = []string{"src", "scripts", "lib", "bin", "dist", "build", "out", "target"}
)

// ProjectName shortens a project path to a display name: the directory after
// a well-known parent such as "github" or "projects", else the last
// component that is not a common build or source subdirectory.
func ProjectName(path string) string {
	parts := lo.Compact(strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }))
	if len(parts) == 0 {
		if path == "" {
			return "unknown"
		}
		return path
	}

	for i, part := range parts[:len(parts)-1] {
		if lo.Contains(projectMarkers, part) {
			return parts[i+1]
		}
	}

	for i := len(parts) - 1; i >= 0; i-- {
		if !lo.Contains(commonSubdirs, parts[i]) {
			return parts[i]
		}
	}
	return parts[len(parts)-1]
}
