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
	"dyncheckd.dev/server/sourcefile"
	"dyncheckd.dev/server/typecheck"
)

// displayTypeErrors implements DisplayTypeErrors: all known errors when
// files is empty, otherwise exactly the requested (resolvable) handles,
// each present in the result even when its error list is empty.
func (s *ServerState) displayTypeErrors(files []string) TypeCheckResponse {
	if len(files) == 0 {
		snapshot := make(map[sourcefile.FileHandle][]typecheck.Error, len(s.Errors))
		for handle, errs := range s.Errors {
			snapshot[handle] = errs
		}
		return TypeCheckResponse{Errors: snapshot}
	}

	result := make(map[sourcefile.FileHandle][]typecheck.Error)
	for _, file := range files {
		handle, ok := sourcefile.New(s.Config.SourceRoot, file)
		if !ok {
			continue
		}
		result[handle] = s.Errors[handle]
	}
	return TypeCheckResponse{Errors: result}
}

// flushDeferred drains Deferred to empty, folding Process over each queued
// request in FIFO order, then responds with every known error key. A
// deferred TypeCheckRequest may itself enqueue further deferred work
// (transitive dependents); the loop keeps draining until none remain,
// matching the "recursive-or-looped" flush the dispatch contract allows.
func (s *ServerState) flushDeferred() TypeCheckResponse {
	for len(s.Deferred) > 0 {
		next := s.Deferred[0]
		s.Deferred = s.Deferred[1:]
		_, _ = s.Process(next)
	}

	snapshot := make(map[sourcefile.FileHandle][]typecheck.Error, len(s.Errors))
	for handle, errs := range s.Errors {
		snapshot[handle] = errs
	}
	return TypeCheckResponse{Errors: snapshot}
}
