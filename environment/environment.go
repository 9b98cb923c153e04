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
// Package environment implements the Environment Handler: the registry of
// class and module definitions a project's sources declare, the dependency
// graph between modules, and (via TypeOrderHandler) the subtype lattice
// those definitions are folded into.
package environment

import (
	"sort"
	"strings"
	"sync"

	"dyncheckd.dev/server/sourcefile"
)

// Attribute is a single declared field of a class.
type Attribute struct {
	Name string
	Type string
}

// Method is a single declared method of a class.
type Method struct {
	Name   string
	Params []string
	Return string
}

// ClassDef is everything the Environment knows about one declared class.
type ClassDef struct {
	Name       string
	Superclass string
	Attributes []Attribute
	Methods    []Method
}

// ModuleDef is everything the Environment knows about one source file's
// module-level facts: the classes it declares and the qualifiers it imports.
type ModuleDef struct {
	Handle  sourcefile.FileHandle
	Classes []string
	Imports []string
}

// Environment is the Environment Handler: class_definition, module_definition,
// dependencies, purge, populate, infer_protocols, plus the nested
// TypeOrderHandler reachable through Order.
type Environment struct {
	mu      sync.RWMutex
	classes map[string]*ClassDef
	modules map[sourcefile.FileHandle]*ModuleDef
	// deps maps a module's qualifier to the set of qualifiers it imports,
	// direct edges only; Dependencies walks the transitive closure.
	deps  map[string]map[string]struct{}
	order *TypeOrderHandler

	// qualifiers maps a module's dotted qualifier back to the handle that
	// currently owns it, so the Recheck Engine can turn a dependency
	// qualifier back into a file to reparse.
	qualifiers map[string]sourcefile.FileHandle
}

// New creates an empty Environment.
func New() *Environment {
	return &Environment{
		classes:    make(map[string]*ClassDef),
		modules:    make(map[sourcefile.FileHandle]*ModuleDef),
		deps:       make(map[string]map[string]struct{}),
		order:      newTypeOrderHandler(),
		qualifiers: make(map[string]sourcefile.FileHandle),
	}
}

// HandleForQualifier returns the handle currently owning qualifier, if any.
func (e *Environment) HandleForQualifier(qualifier string) (sourcefile.FileHandle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.qualifiers[qualifier]
	return h, ok
}

// Order exposes the nested TypeOrderHandler.
func (e *Environment) Order() *TypeOrderHandler {
	return e.order
}

// ClassDefinition returns the registered definition for name, if any.
func (e *Environment) ClassDefinition(name string) (*ClassDef, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.classes[name]
	return c, ok
}

// ModuleDefinition returns the registered module facts for handle, if any.
func (e *Environment) ModuleDefinition(handle sourcefile.FileHandle) (*ModuleDef, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.modules[handle]
	return m, ok
}

// Dependents returns the transitive closure of qualifiers that import the
// module at handle, directly or indirectly: the set of modules a change to
// handle can affect. The module's own qualifier is never included.
func (e *Environment) Dependents(handle sourcefile.FileHandle) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := handle.Qualifier()
	visited := map[string]struct{}{start: {}}
	var frontier []string
	for q, edges := range e.deps {
		if _, imports := edges[start]; imports {
			frontier = append(frontier, q)
		}
	}

	var out []string
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[next]; seen {
			continue
		}
		visited[next] = struct{}{}
		out = append(out, next)
		for q, edges := range e.deps {
			if _, seen := visited[q]; seen {
				continue
			}
			if _, imports := edges[next]; imports {
				frontier = append(frontier, q)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the transitive closure of qualifiers that the module
// at handle imports, directly or indirectly. The module's own qualifier is
// never included in the result.
func (e *Environment) Dependencies(handle sourcefile.FileHandle) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := handle.Qualifier()
	visited := map[string]struct{}{start: {}}
	var frontier []string
	for q := range e.deps[start] {
		frontier = append(frontier, q)
	}

	var out []string
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[next]; seen {
			continue
		}
		visited[next] = struct{}{}
		out = append(out, next)
		for q := range e.deps[next] {
			if _, seen := visited[q]; !seen {
				frontier = append(frontier, q)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Purge removes every class and module fact that handle contributed,
// reverting the type order for any class not redeclared by another module.
func (e *Environment) Purge(handle sourcefile.FileHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mod, ok := e.modules[handle]
	if !ok {
		return
	}
	for _, className := range mod.Classes {
		delete(e.classes, className)
		e.order.forget(className)
	}
	qualifier := mod.Handle.Qualifier()
	delete(e.deps, qualifier)
	if e.qualifiers[qualifier] == handle {
		delete(e.qualifiers, qualifier)
	}
	delete(e.modules, handle)
}

// Populate installs the class and module facts parsed from handle's source,
// replacing whatever was previously recorded for it. Callers purge the old
// facts first when handle is being reparsed; Populate itself does not purge.
func (e *Environment) Populate(handle sourcefile.FileHandle, classes []*ClassDef, imports []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(classes))
	for _, c := range classes {
		e.classes[c.Name] = c
		names = append(names, c.Name)
	}

	qualifier := handle.Qualifier()
	e.modules[handle] = &ModuleDef{Handle: handle, Classes: names, Imports: imports}

	edges := make(map[string]struct{}, len(imports))
	for _, imp := range imports {
		edges[normalizeImportQualifier(imp)] = struct{}{}
	}
	e.deps[qualifier] = edges
	e.qualifiers[qualifier] = handle
}

// normalizeImportQualifier turns a raw import source string (as written in
// source, e.g. "./base" or "../pkg/widget") into the dotted qualifier form
// FileHandle.Qualifier produces, so dependency edges line up with the
// qualifiers map regardless of how the import was spelled.
func normalizeImportQualifier(imp string) string {
	q := strings.TrimPrefix(imp, "./")
	for strings.HasPrefix(q, "../") {
		q = strings.TrimPrefix(q, "../")
	}
	q = strings.TrimSuffix(q, sourcefile.SourceExtension)
	q = strings.TrimSuffix(q, sourcefile.StubExtension)
	return strings.ReplaceAll(q, "/", ".")
}

// InferProtocols folds every currently-registered class into the type
// order, marking it instantiated and recording its parent link. Existing
// type-order entries are updated in place rather than cleared first;
// Purge is what removes a class's entries. It runs after Populate as a
// distinct step, mirroring the
// Recheck Engine's "populate the environment" then "infer protocols" split.
func (e *Environment) InferProtocols() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, class := range e.classes {
		e.order.markInstantiated(name, class.Superclass)
	}
}
