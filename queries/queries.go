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
// Package queries wraps tree-sitter query matching for the TypeScript-like
// surface syntax the Parser Service parses. It owns the parser pool and the
// small set of queries used to pull class/import/declaration facts out of a
// parsed source file for the Environment Handler.
package queries

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var ErrNoQueryManager = errors.New("QueryManager is nil")

type NoCaptureError struct {
	Capture string
	Query   string
}

func (e *NoCaptureError) Error() string {
	return fmt.Sprintf("no nodes for capture %s in query %s", e.Capture, e.Query)
}

var typescriptLanguage = ts.NewLanguage(tsTypescript.LanguageTypescript())

var typescriptParserPool = sync.Pool{
	New: func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(typescriptLanguage); err != nil {
			panic(fmt.Sprintf("failed to set typescript language: %v", err))
		}
		return parser
	},
}

// GetTypeScriptParser returns a pooled parser. Always call PutTypeScriptParser when done.
func GetTypeScriptParser() *ts.Parser {
	return typescriptParserPool.Get().(*ts.Parser)
}

// PutTypeScriptParser returns a parser to the pool.
func PutTypeScriptParser(parser *ts.Parser) {
	parser.Reset()
	typescriptParserPool.Put(parser)
}

// Queries loaded by name; source text lives in queryText below rather than
// an embedded .scm tree, since the Parser Service only needs a handful.
const (
	QueryClasses      = "classes"
	QueryImports      = "imports"
	QueryDeclarations = "declarations"
	QueryFields       = "fields"
	QueryMethods      = "methods"
	QueryVariables    = "variables"
	QueryIdentifiers  = "identifiers"
)

var queryText = map[string]string{
	QueryClasses: `
(class_declaration
  name: (type_identifier) @class.name) @class

(class_declaration
  (class_heritage
    (extends_clause value: (_) @class.superclass))) @class
`,
	QueryImports: `
(import_statement
  source: (string (string_fragment) @import.source)) @import
`,
	QueryDeclarations: `
(function_declaration name: (identifier) @decl.name) @decl
(lexical_declaration (variable_declarator name: (identifier) @decl.name)) @decl
(interface_declaration name: (type_identifier) @decl.name) @decl
`,
	QueryFields: `
(class_declaration
  name: (type_identifier) @class.name
  body: (class_body
    (public_field_definition
      name: (property_identifier) @field.name
      type: (type_annotation (_) @field.type)?) @field))
`,
	QueryMethods: `
(class_declaration
  name: (type_identifier) @class.name
  body: (class_body
    (method_definition
      name: (property_identifier) @method.name
      parameters: (formal_parameters) @method.params
      return_type: (type_annotation (_) @method.return)?) @method))
`,
	QueryVariables: `
(lexical_declaration
  (variable_declarator
    name: (identifier) @var.name
    type: (type_annotation (_) @var.type)?)) @var
`,
	QueryIdentifiers: `
(identifier) @ident.name
(property_identifier) @ident.name
(type_identifier) @ident.name
`,
}

type QueryManager struct {
	mu      sync.Mutex
	queries map[string]*ts.Query
}

func NewQueryManager(names ...string) (*QueryManager, error) {
	qm := &QueryManager{queries: make(map[string]*ts.Query)}
	for _, name := range names {
		if err := qm.loadQuery(name); err != nil {
			qm.Close()
			return nil, fmt.Errorf("failed to load query %s: %w", name, err)
		}
	}
	return qm, nil
}

func (qm *QueryManager) loadQuery(name string) error {
	text, ok := queryText[name]
	if !ok {
		return fmt.Errorf("unknown query %s", name)
	}
	query, err := ts.NewQuery(typescriptLanguage, text)
	if err != nil {
		return fmt.Errorf("failed to compile query %s: %w", name, err)
	}
	qm.mu.Lock()
	qm.queries[name] = query
	qm.mu.Unlock()
	return nil
}

func (qm *QueryManager) Close() {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	for _, query := range qm.queries {
		query.Close()
	}
}

func (qm *QueryManager) getQuery(name string) (*ts.Query, error) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	q, ok := qm.queries[name]
	if !ok {
		return nil, fmt.Errorf("unknown query %s", name)
	}
	return q, nil
}

type CaptureInfo struct {
	NodeId    int
	Text      string
	StartByte uint
	EndByte   uint
}

type CaptureMap = map[string][]CaptureInfo

type QueryMatcher struct {
	query  *ts.Query
	cursor *ts.QueryCursor
}

func NewQueryMatcher(manager *QueryManager, queryName string) (*QueryMatcher, error) {
	if manager == nil {
		return nil, ErrNoQueryManager
	}
	query, err := manager.getQuery(queryName)
	if err != nil {
		return nil, err
	}
	return &QueryMatcher{query, ts.NewQueryCursor()}, nil
}

func (qm QueryMatcher) Close() {
	// queries themselves are closed by QueryManager.Close, only the cursor is ours
	qm.cursor.Close()
}

func (qm QueryMatcher) GetCaptureNameByIndex(index uint32) string {
	return qm.query.CaptureNames()[index]
}

func (qm QueryMatcher) GetCaptureIndexForName(name string) (uint, bool) {
	return qm.query.CaptureIndexForName(name)
}

func (q QueryMatcher) AllQueryMatches(node *ts.Node, text []byte) iter.Seq[*ts.QueryMatch] {
	matches := q.cursor.Matches(q.query, node, text)
	return func(yield func(m *ts.QueryMatch) bool) {
		for {
			m := matches.Next()
			if m == nil {
				break
			}
			if !yield(m) {
				return
			}
		}
	}
}

// ParentCaptures aggregates all captures sharing the same ancestor node
// identified by parentCaptureName into one CaptureMap per ancestor, in
// source order. Used to collect e.g. all captures belonging to a single
// class declaration.
func (q *QueryMatcher) ParentCaptures(root *ts.Node, code []byte, parentCaptureName string) iter.Seq[CaptureMap] {
	names := q.query.CaptureNames()

	type pgroup struct {
		capMap    CaptureMap
		startByte uint
	}
	parentGroups := make(map[int]pgroup)

	for match := range q.AllQueryMatches(root, code) {
		var parentNode *ts.Node
		for _, cap := range match.Captures {
			if names[cap.Index] == parentCaptureName {
				parentNode = &cap.Node
				break
			}
		}
		if parentNode == nil {
			continue
		}
		pid := int(parentNode.Id())
		if _, ok := parentGroups[pid]; !ok {
			parentGroups[pid] = pgroup{make(CaptureMap), parentNode.StartByte()}
		}
		for _, cap := range match.Captures {
			name := names[cap.Index]
			ci := CaptureInfo{
				NodeId:    int(cap.Node.Id()),
				Text:      cap.Node.Utf8Text(code),
				StartByte: cap.Node.StartByte(),
				EndByte:   cap.Node.EndByte(),
			}
			if !slices.ContainsFunc(parentGroups[pid].capMap[name], func(m CaptureInfo) bool {
				return m.NodeId == ci.NodeId
			}) {
				parentGroups[pid].capMap[name] = append(parentGroups[pid].capMap[name], ci)
			}
		}
	}

	sorted := make([]pgroup, 0, len(parentGroups))
	for _, group := range parentGroups {
		sorted = append(sorted, group)
	}
	slices.SortStableFunc(sorted, func(a, b pgroup) int {
		return int(a.startByte) - int(b.startByte)
	})

	return func(yield func(CaptureMap) bool) {
		for _, group := range sorted {
			if !yield(group.capMap) {
				break
			}
		}
	}
}

func GetDescendantById(root *ts.Node, id int) *ts.Node {
	var find func(node *ts.Node) *ts.Node
	find = func(node *ts.Node) *ts.Node {
		if int(node.Id()) == id {
			return node
		}
		for i := range int(node.ChildCount()) {
			child := node.Child(uint(i))
			if child == nil {
				continue
			}
			if res := find(child); res != nil {
				return res
			}
		}
		return nil
	}
	return find(root)
}

// Position is a line/character position, 0-indexed, matching LSP convention.
type Position struct {
	Line      uint32
	Character uint32
}

type Range struct {
	Start Position
	End   Position
}

func byteOffsetToPosition(content []byte, offset uint) Position {
	var line, char uint32
	for i, b := range content {
		if uint(i) >= offset {
			break
		}
		if b == '\n' {
			line++
			char = 0
		} else {
			char++
		}
	}
	return Position{Line: line, Character: char}
}

// Contains reports whether p falls within r, inclusive of both ends.
func (r Range) Contains(p Position) bool {
	after := p.Line > r.Start.Line || (p.Line == r.Start.Line && p.Character >= r.Start.Character)
	before := p.Line < r.End.Line || (p.Line == r.End.Line && p.Character <= r.End.Character)
	return after && before
}

func NodeToRange(node *ts.Node, content []byte) Range {
	return Range{
		Start: byteOffsetToPosition(content, node.StartByte()),
		End:   byteOffsetToPosition(content, node.EndByte()),
	}
}

// CaptureRange converts a CaptureInfo's byte span into a line/character
// Range, for callers (like the Lookup Table) that only retained the
// CaptureInfo rather than the original node.
func CaptureRange(c CaptureInfo, content []byte) Range {
	return Range{
		Start: byteOffsetToPosition(content, c.StartByte),
		End:   byteOffsetToPosition(content, c.EndByte),
	}
}

// Thread-safe singleton QueryManager loaded with the queries the Parser
// Service and Type-Query Handler need on every parse.
var (
	globalQueryManager *QueryManager
	globalQueryOnce    sync.Once
	globalQueryError   error
)

func GetGlobalQueryManager() (*QueryManager, error) {
	globalQueryOnce.Do(func() {
		manager, err := NewQueryManager(QueryClasses, QueryImports, QueryDeclarations, QueryFields, QueryMethods, QueryVariables, QueryIdentifiers)
		if err != nil {
			globalQueryError = err
			return
		}
		globalQueryManager = manager
	})
	if globalQueryError != nil {
		return nil, globalQueryError
	}
	if globalQueryManager == nil {
		return nil, fmt.Errorf("failed to initialize global query manager")
	}
	return globalQueryManager, nil
}

// GetCachedQueryMatcher returns a matcher sharing the manager's compiled
// query but with a fresh cursor — cursors are stateful and must not be
// shared across concurrent callers.
func GetCachedQueryMatcher(manager *QueryManager, queryName string) (*QueryMatcher, error) {
	if manager == nil {
		return nil, ErrNoQueryManager
	}
	query, err := manager.getQuery(queryName)
	if err != nil {
		return nil, err
	}
	return &QueryMatcher{query, ts.NewQueryCursor()}, nil
}
