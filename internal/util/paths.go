// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util provides filesystem and request helpers shared across the
// atlasbridge daemon.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading tilde against the user's home directory and
// cleans the result.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Clean(path), nil
}

// Substitute expands ${env:NAME} references and a leading tilde in a
// configured path. Unknown variables expand to the empty string. Hardcoded
// credential paths are configured this way so one config file works across
// machines.
func Substitute(path string) string {
	expanded := os.Expand(path, func(name string) string {
		if v, ok := strings.CutPrefix(name, "env:"); ok {
			return os.Getenv(v)
		}
		return os.Getenv(name)
	})
	if resolved, err := ExpandPath(expanded); err == nil {
		return resolved
	}
	return expanded
}
