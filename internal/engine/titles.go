// Package engine defines the callback protocol every engine adapter
// implements, plus the shared per-run state adapters build on.
//
// titles.go - action title normalization
//
// Raw commands and paths make poor titles: commands can be kilobytes,
// paths leak home directories. All adapters normalize through here.

package engine

import (
	"os"
	"path/filepath"
	"strings"
)

// TitleMax bounds normalized title length.
const TitleMax = 72

// TruncateTitle collapses whitespace and bounds the result, appending
// an ellipsis when cut.
func TruncateTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= TitleMax {
		return s
	}
	return s[:TitleMax-1] + "…"
}

// ShortenHome replaces a home-directory prefix with "~".
func ShortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(filepath.Separator)) {
		return "~" + path[len(home):]
	}
	return path
}

// RelativizePath renders path relative to cwd when that does not
// escape upward; otherwise the home-shortened absolute path.
func RelativizePath(cwd, path string) string {
	if cwd != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(cwd, path); err == nil &&
			rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return rel
		}
	}
	return ShortenHome(path)
}

// CommandTitle normalizes a shell command into an action title.
func CommandTitle(command string) string {
	return TruncateTitle(ShortenHome(command))
}
