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
// Package lookup implements the Lookup Table (position -> annotation and
// position -> definition for one source file) and the Lookup Cache that
// memoizes tables by relative path with explicit, editing-verb-driven
// eviction.
package lookup

import (
	ts "github.com/tree-sitter/go-tree-sitter"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/queries"
)

// declaration is what a name in scope resolves to: its rendered type (for
// get_annotation) and the source range of its declaring node (for
// get_definition).
type declaration struct {
	Type   string
	Define queries.Range
}

// identOccurrence is one use of a name at a source range, including the
// declaring occurrence itself.
type identOccurrence struct {
	Name  string
	Range queries.Range
}

// Table is the per-file position index: create_of_source, get_annotation,
// get_definition.
type Table struct {
	declsByName map[string]declaration
	idents      []identOccurrence
}

// CreateOfSource builds a Table from source. Declared field/variable/method
// types resolve against env's class registry only insofar as they are
// rendered verbatim from the annotation text; env is accepted so future
// resolution (e.g. normalizing aliased qualifiers) has a hook without
// changing the signature.
func CreateOfSource(env *environment.Environment, source []byte) (*Table, error) {
	_ = env

	manager, err := queries.GetGlobalQueryManager()
	if err != nil {
		return nil, err
	}

	parser := queries.GetTypeScriptParser()
	defer queries.PutTypeScriptParser(parser)

	table := &Table{declsByName: make(map[string]declaration)}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return table, nil
	}
	defer tree.Close()
	root := tree.RootNode()

	if err := table.indexClasses(manager, root, source); err != nil {
		return nil, err
	}
	if err := table.indexFields(manager, root, source); err != nil {
		return nil, err
	}
	if err := table.indexMethods(manager, root, source); err != nil {
		return nil, err
	}
	if err := table.indexVariables(manager, root, source); err != nil {
		return nil, err
	}
	if err := table.indexIdentifiers(manager, root, source); err != nil {
		return nil, err
	}

	return table, nil
}

func (t *Table) indexClasses(manager *queries.QueryManager, root *ts.Node, source []byte) error {
	matcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryClasses)
	if err != nil {
		return err
	}
	defer matcher.Close()

	for captures := range matcher.ParentCaptures(root, source, "class") {
		names := captures["class.name"]
		classes := captures["class"]
		if len(names) == 0 || len(classes) == 0 {
			continue
		}
		t.declsByName[names[0].Text] = declaration{
			Type:   names[0].Text,
			Define: queries.CaptureRange(classes[0], source),
		}
	}
	return nil
}

func (t *Table) indexFields(manager *queries.QueryManager, root *ts.Node, source []byte) error {
	matcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryFields)
	if err != nil {
		return err
	}
	defer matcher.Close()

	for captures := range matcher.ParentCaptures(root, source, "field") {
		names := captures["field.name"]
		fields := captures["field"]
		if len(names) == 0 || len(fields) == 0 {
			continue
		}
		decl := declaration{Define: queries.CaptureRange(fields[0], source)}
		if types := captures["field.type"]; len(types) > 0 {
			decl.Type = types[0].Text
		}
		t.declsByName[names[0].Text] = decl
	}
	return nil
}

func (t *Table) indexMethods(manager *queries.QueryManager, root *ts.Node, source []byte) error {
	matcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryMethods)
	if err != nil {
		return err
	}
	defer matcher.Close()

	for captures := range matcher.ParentCaptures(root, source, "method") {
		names := captures["method.name"]
		methods := captures["method"]
		if len(names) == 0 || len(methods) == 0 {
			continue
		}
		decl := declaration{Define: queries.CaptureRange(methods[0], source)}
		if rets := captures["method.return"]; len(rets) > 0 {
			decl.Type = rets[0].Text
		}
		t.declsByName[names[0].Text] = decl
	}
	return nil
}

func (t *Table) indexVariables(manager *queries.QueryManager, root *ts.Node, source []byte) error {
	matcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryVariables)
	if err != nil {
		return err
	}
	defer matcher.Close()

	for captures := range matcher.ParentCaptures(root, source, "var") {
		names := captures["var.name"]
		vars := captures["var"]
		if len(names) == 0 || len(vars) == 0 {
			continue
		}
		decl := declaration{Define: queries.CaptureRange(vars[0], source)}
		if types := captures["var.type"]; len(types) > 0 {
			decl.Type = types[0].Text
		}
		t.declsByName[names[0].Text] = decl
	}
	return nil
}

func (t *Table) indexIdentifiers(manager *queries.QueryManager, root *ts.Node, source []byte) error {
	matcher, err := queries.GetCachedQueryMatcher(manager, queries.QueryIdentifiers)
	if err != nil {
		return err
	}
	defer matcher.Close()

	for match := range matcher.AllQueryMatches(root, source) {
		for _, cap := range match.Captures {
			if matcher.GetCaptureNameByIndex(cap.Index) != "ident.name" {
				continue
			}
			t.idents = append(t.idents, identOccurrence{
				Name:  cap.Node.Utf8Text(source),
				Range: queries.NodeToRange(&cap.Node, source),
			})
		}
	}
	return nil
}

// GetAnnotation returns the rendered type of whatever name occupies pos, if
// that name has a known declared type.
func (t *Table) GetAnnotation(pos queries.Position) (string, bool) {
	name, ok := t.identAt(pos)
	if !ok {
		return "", false
	}
	decl, ok := t.declsByName[name]
	if !ok || decl.Type == "" {
		return "", false
	}
	return decl.Type, true
}

// GetDefinition returns the source range where the name at pos was declared.
func (t *Table) GetDefinition(pos queries.Position) (queries.Range, bool) {
	name, ok := t.identAt(pos)
	if !ok {
		return queries.Range{}, false
	}
	decl, ok := t.declsByName[name]
	if !ok {
		return queries.Range{}, false
	}
	return decl.Define, true
}

func (t *Table) identAt(pos queries.Position) (string, bool) {
	for _, occ := range t.idents {
		if occ.Range.Contains(pos) {
			return occ.Name, true
		}
	}
	return "", false
}
