/*
Copyright © 2025 dyncheckd contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package sourcefile defines FileHandle, the canonical project-relative
// file identity every other component keys its state by.
package sourcefile

import (
	"path/filepath"
	"strings"
)

// StubExtension marks an interface/declaration-only source file; these are
// re-parsed ahead of ordinary sources in the Recheck Engine so their
// declarations win when a qualifier is shadowed.
const StubExtension = ".dyni"

// SourceExtension is the ordinary source file extension.
const SourceExtension = ".dyn"

// FileHandle is a canonical relative path identity rooted at a project's
// source_root. Two handles are equal iff their normalized relative strings
// are equal, which Go gives us for free since FileHandle is a plain string
// newtype and can be used directly as a map key.
type FileHandle string

// New roots an absolute or relative path at sourceRoot and returns the
// canonical handle. ok is false if the path falls outside sourceRoot.
func New(sourceRoot, path string) (handle FileHandle, ok bool) {
	absRoot, err := filepath.Abs(sourceRoot)
	if err != nil {
		return "", false
	}
	var absPath string
	if filepath.IsAbs(path) {
		absPath = filepath.Clean(path)
	} else {
		absPath, err = filepath.Abs(filepath.Join(absRoot, path))
		if err != nil {
			return "", false
		}
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return FileHandle(filepath.ToSlash(rel)), true
}

// String returns the relative path string.
func (h FileHandle) String() string {
	return string(h)
}

// IsStub reports whether the handle names an interface/declaration-only file.
func (h FileHandle) IsStub() bool {
	return strings.HasSuffix(string(h), StubExtension)
}

// Qualifier derives the dotted module identity from the relative path:
// directory separators and the file extension are stripped, e.g.
// "pkg/widget.dyn" -> "pkg.widget".
func (h FileHandle) Qualifier() string {
	p := string(h)
	p = strings.TrimSuffix(p, StubExtension)
	p = strings.TrimSuffix(p, SourceExtension)
	p = strings.ReplaceAll(p, "/", ".")
	return p
}

// AbsPath resolves the handle back to an absolute path under sourceRoot.
func AbsPath(sourceRoot string, h FileHandle) string {
	return filepath.Join(sourceRoot, filepath.FromSlash(string(h)))
}
