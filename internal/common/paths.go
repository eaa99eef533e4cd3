// Copyright 2024 C4GHFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"path/filepath"
	"strings"
)

// NormalizePath cleans a path relative to the mount root, removing leading
// and trailing slashes. The root itself is "".
func NormalizePath(path string) string {
	path = filepath.Clean(path)
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "." {
		return ""
	}
	return path
}

// JoinPath joins path components into a normalized relative path
func JoinPath(parts ...string) string {
	return NormalizePath(filepath.Join(parts...))
}

// NormalizeExtension turns a configured extension ("c4gh" or ".c4gh") into
// the suffix matched against underlying names. Empty stays empty, which
// disables encryption detection.
func NormalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// HasExtension reports whether name carries ext and still has something
// left once ext is removed.
func HasExtension(name, ext string) bool {
	return ext != "" && len(name) > len(ext) && strings.HasSuffix(name, ext)
}

// TrimExtension removes ext from name when HasExtension holds
func TrimExtension(name, ext string) string {
	if !HasExtension(name, ext) {
		return name
	}
	return name[:len(name)-len(ext)]
}

// SplitPath splits a normalized relative path into its components. The
// root yields no components.
func SplitPath(path string) []string {
	path = NormalizePath(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
