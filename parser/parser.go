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
// Package parser implements the Parser Service: parse_sources turns raw
// source bytes into the class/import facts the Environment Handler
// consumes, storing the source bytes themselves into the Shared Heap.
package parser

import (
	ts "github.com/tree-sitter/go-tree-sitter"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/heap"
	"dyncheckd.dev/server/queries"
	"dyncheckd.dev/server/scheduler"
	"dyncheckd.dev/server/sourcefile"
)

// Result is what parsing one source file produces.
type Result struct {
	Handle  sourcefile.FileHandle
	Classes []*environment.ClassDef
	Imports []string
	Err     error
}

// Service owns the heap sources are written into and the scheduler parse
// batches fan out across.
type Service struct {
	heap      *heap.Heap
	scheduler *scheduler.Scheduler
}

// New creates a Parser Service backed by h and s.
func New(h *heap.Heap, s *scheduler.Scheduler) *Service {
	return &Service{heap: h, scheduler: s}
}

// SetScheduler re-points the Service at a freshly-gated Scheduler; the
// Recheck Engine calls this after computing the per-batch parallel gate
// (§4.2 step 2), since WithParallel returns a new *Scheduler rather than
// mutating the one already wired into ParseSources' caller.
func (s *Service) SetScheduler(sched *scheduler.Scheduler) {
	s.scheduler = sched
}

// source is one unparsed input: a handle paired with its raw bytes.
type source struct {
	Handle sourcefile.FileHandle
	Bytes  []byte
}

// ParseSources parses every (handle, bytes) pair, storing bytes into the
// heap as each is parsed, and returns one Result per input. The inputs
// arrive as a map, so the order of the Results is not defined.
// Parallelism across the batch is controlled by the Service's current
// Scheduler.
func (s *Service) ParseSources(sources map[sourcefile.FileHandle][]byte) []Result {
	items := make([]source, 0, len(sources))
	for handle, bytes := range sources {
		items = append(items, source{Handle: handle, Bytes: bytes})
	}

	return scheduler.Run(s.scheduler, items, func(item source) Result {
		s.heap.Put(item.Handle, item.Bytes)
		return s.parseOne(item.Handle, item.Bytes)
	})
}

func (s *Service) parseOne(handle sourcefile.FileHandle, source []byte) Result {
	manager, err := queries.GetGlobalQueryManager()
	if err != nil {
		return Result{Handle: handle, Err: err}
	}

	tsParser := queries.GetTypeScriptParser()
	defer queries.PutTypeScriptParser(tsParser)

	tree := tsParser.Parse(source, nil)
	if tree == nil {
		return Result{Handle: handle, Err: errNoTree{handle}}
	}
	defer tree.Close()
	root := tree.RootNode()

	classes, err := extractClasses(manager, root, source)
	if err != nil {
		return Result{Handle: handle, Err: err}
	}
	imports, err := extractImports(manager, root, source)
	if err != nil {
		return Result{Handle: handle, Err: err}
	}

	return Result{Handle: handle, Classes: classes, Imports: imports}
}

type errNoTree struct{ handle sourcefile.FileHandle }

func (e errNoTree) Error() string { return "failed to parse " + e.handle.String() }

func extractImports(manager *queries.QueryManager, root *ts.Node, source []byte) ([]string, error) {
	matcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryImports)
	if err != nil {
		return nil, err
	}
	defer matcher.Close()

	var imports []string
	for match := range matcher.AllQueryMatches(root, source) {
		for _, cap := range match.Captures {
			if matcher.GetCaptureNameByIndex(cap.Index) == "import.source" {
				imports = append(imports, cap.Node.Utf8Text(source))
			}
		}
	}
	return imports, nil
}

func extractClasses(manager *queries.QueryManager, root *ts.Node, source []byte) ([]*environment.ClassDef, error) {
	classMatcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryClasses)
	if err != nil {
		return nil, err
	}
	defer classMatcher.Close()

	byName := make(map[string]*environment.ClassDef)
	var order []string
	for captures := range classMatcher.ParentCaptures(root, source, "class") {
		names := captures["class.name"]
		if len(names) == 0 {
			continue
		}
		name := names[0].Text
		def, ok := byName[name]
		if !ok {
			def = &environment.ClassDef{Name: name}
			byName[name] = def
			order = append(order, name)
		}
		if supers := captures["class.superclass"]; len(supers) > 0 {
			def.Superclass = supers[0].Text
		}
	}

	fieldMatcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryFields)
	if err != nil {
		return nil, err
	}
	defer fieldMatcher.Close()
	for captures := range fieldMatcher.ParentCaptures(root, source, "field") {
		classNames := captures["class.name"]
		fieldNames := captures["field.name"]
		if len(classNames) == 0 || len(fieldNames) == 0 {
			continue
		}
		def, ok := byName[classNames[0].Text]
		if !ok {
			continue
		}
		attr := environment.Attribute{Name: fieldNames[0].Text}
		if types := captures["field.type"]; len(types) > 0 {
			attr.Type = types[0].Text
		}
		def.Attributes = append(def.Attributes, attr)
	}

	methodMatcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryMethods)
	if err != nil {
		return nil, err
	}
	defer methodMatcher.Close()
	for captures := range methodMatcher.ParentCaptures(root, source, "method") {
		classNames := captures["class.name"]
		methodNames := captures["method.name"]
		if len(classNames) == 0 || len(methodNames) == 0 {
			continue
		}
		def, ok := byName[classNames[0].Text]
		if !ok {
			continue
		}
		method := environment.Method{Name: methodNames[0].Text}
		if rets := captures["method.return"]; len(rets) > 0 {
			method.Return = rets[0].Text
		}
		def.Methods = append(def.Methods, method)
	}

	defs := make([]*environment.ClassDef, 0, len(order))
	for _, name := range order {
		defs = append(defs, byName[name])
	}
	return defs, nil
}
