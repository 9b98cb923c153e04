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
	"fmt"
	"strings"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/lookup"
	"dyncheckd.dev/server/queries"
	"dyncheckd.dev/server/sourcefile"
)

// handleTypeQuery implements the Type-Query Handler (§4.3) and the
// Dispatcher-level Untracked wrapping described in §4.1: any *Untracked
// fault surfacing from the type order renders as "Error: <message>".
func (s *ServerState) handleTypeQuery(q TypeQuery) string {
	switch query := q.(type) {
	case AttributesQuery:
		return s.renderClassList(query.Type, renderAttributes, true)
	case MethodsQuery:
		return s.renderClassList(query.Type, renderMethods, true)
	case SuperclassesQuery:
		return s.renderClassList(query.Type, renderSuperclasses, false)
	case JoinQuery:
		result, err := s.Environment.Order().Join(query.A, query.B)
		if err != nil {
			return "Error: " + err.Error()
		}
		return result
	case MeetQuery:
		result, err := s.Environment.Order().Meet(query.A, query.B)
		if err != nil {
			return "Error: " + err.Error()
		}
		return result
	case LessOrEqualQuery:
		result, err := s.Environment.Order().LessOrEqual(query.A, query.B)
		if err != nil {
			return "Error: " + err.Error()
		}
		if result {
			return "true"
		}
		return "false"
	case NormalizeTypeQuery:
		if !s.Environment.Order().IsInstantiated(query.Expr) {
			return "Error: " + (&environment.UntrackedError{Type: query.Expr}).Error()
		}
		return query.Expr
	case TypeAtLocationQuery:
		return s.typeAtLocation(query)
	default:
		return ""
	}
}

// renderClassList looks up T's class definition and renders it with
// render, or reports the documented no-class-definition error. errorPrefix
// controls the §4.3 asymmetry: true prefixes "Error: ", false (Superclasses)
// does not.
func (s *ServerState) renderClassList(typeName string, render func(*environment.ClassDef, *environment.Environment) string, errorPrefix bool) string {
	class, ok := s.Environment.ClassDefinition(typeName)
	if !ok {
		message := fmt.Sprintf("No class definition found for %s", typeName)
		if errorPrefix {
			return "Error: " + message
		}
		return message
	}
	return render(class, s.Environment)
}

func renderAttributes(class *environment.ClassDef, _ *environment.Environment) string {
	lines := make([]string, 0, len(class.Attributes))
	for _, attr := range class.Attributes {
		lines = append(lines, fmt.Sprintf("%s: %s", attr.Name, attr.Type))
	}
	return strings.Join(lines, "\n")
}

// renderMethods formats each method as "name: (self, p1, p2) -> return",
// per the documented first-positional-parameter-is-self convention.
func renderMethods(class *environment.ClassDef, _ *environment.Environment) string {
	lines := make([]string, 0, len(class.Methods))
	for _, m := range class.Methods {
		params := append([]string{"self"}, m.Params...)
		lines = append(lines, fmt.Sprintf("%s: (%s) -> %s", m.Name, strings.Join(params, ", "), m.Return))
	}
	return strings.Join(lines, "\n")
}

func renderSuperclasses(class *environment.ClassDef, env *environment.Environment) string {
	chain := env.Order().Ancestors(class.Name)
	return strings.Join(chain, ", ")
}

// typeAtLocation implements TypeAtLocation: it fetches the heap's parsed
// source for the file's handle (the file on disk is not read), builds a
// Lookup Table on the fly, and renders the annotation at (line, col).
func (s *ServerState) typeAtLocation(q TypeAtLocationQuery) string {
	fail := func() string {
		return fmt.Sprintf("Error: Not able to get lookup at %s:%d:%d", q.Path, q.Line, q.Col)
	}

	handle, ok := sourcefile.New(s.Config.SourceRoot, q.Path)
	if !ok {
		return fail()
	}
	source, ok := s.Heap.GetSource(handle)
	if !ok {
		return fail()
	}
	table, err := lookup.CreateOfSource(s.Environment, source)
	if err != nil {
		return fail()
	}
	annotation, ok := table.GetAnnotation(queries.Position{Line: uint32(q.Line), Character: uint32(q.Col)})
	if !ok {
		return fail()
	}
	return annotation
}
