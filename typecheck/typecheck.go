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
// Package typecheck implements the TypeCheck Service: parallel analysis of
// a handle set against the Environment, producing new diagnostics. The
// underlying type-inference engine is an external collaborator; this
// package owns only the scheduling and the shape of what it reports, not a
// full inference algorithm.
package typecheck

import (
	"fmt"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/scheduler"
	"dyncheckd.dev/server/sourcefile"
)

// Error is one diagnostic against a file, opaque in payload beyond message
// and position to everything but display/formatting code.
type Error struct {
	Path    string
	Message string
	Line    int
	Col     int
}

// Service runs the analysis across a handle batch using a Scheduler the
// Recheck Engine configures per batch size.
type Service struct {
	scheduler *scheduler.Scheduler
}

// New creates a TypeCheck Service driven by s.
func New(s *scheduler.Scheduler) *Service {
	return &Service{scheduler: s}
}

// SetScheduler re-points the Service at a freshly-gated Scheduler; see
// parser.Service.SetScheduler for why this is needed every Recheck.
func (s *Service) SetScheduler(sched *scheduler.Scheduler) {
	s.scheduler = sched
}

// Analyze runs analysis for every handle against env and returns the flat
// list of new errors across the whole batch, in no particular cross-file
// order (the Recheck Engine groups by FileHandle when committing).
func (s *Service) Analyze(env *environment.Environment, handles []sourcefile.FileHandle) []Error {
	perHandle := scheduler.Run(s.scheduler, handles, func(handle sourcefile.FileHandle) []Error {
		return analyzeOne(env, handle)
	})

	var flat []Error
	for _, errs := range perHandle {
		flat = append(flat, errs...)
	}
	return flat
}

// analyzeOne checks the classes a module declares against the Environment's
// type order: a superclass reference that never resolved to a tracked type
// is reported against the declaring file.
func analyzeOne(env *environment.Environment, handle sourcefile.FileHandle) []Error {
	mod, ok := env.ModuleDefinition(handle)
	if !ok {
		return nil
	}

	var errs []Error
	for _, className := range mod.Classes {
		class, ok := env.ClassDefinition(className)
		if !ok || class.Superclass == "" {
			continue
		}
		if env.Order().IsInstantiated(class.Superclass) {
			continue
		}
		errs = append(errs, Error{
			Path:    handle.String(),
			Message: fmt.Sprintf("undefined superclass %s for class %s", class.Superclass, className),
		})
	}
	return errs
}
