// Package utils holds small helpers shared by the commands.
package utils

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands environment variables and a leading tilde in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	expanded, err := homedir.Expand(os.ExpandEnv(path))
	if err != nil {
		return path
	}
	return expanded
}

// AbsPath expands path and makes it absolute. Relative paths resolve
// against the working directory.
func AbsPath(path string) string {
	path = ExpandPath(path)
	if path == "" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
