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
package lookup

import (
	"os"
	"sync"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/heap"
	"dyncheckd.dev/server/queries"
	"dyncheckd.dev/server/sourcefile"
)

// Entry is what the Cache remembers per cached path: the built Table and
// the display source text read at the time the entry was built.
type Entry struct {
	Table      *Table
	SourceText string
}

// Cache is the Lookup Cache: get, evict, find_annotation, find_definition.
// It is keyed by relative path string; entries are built lazily on first
// get and invalidated only by explicit eviction, never by a freshness
// timer.
type Cache struct {
	mu      sync.Mutex
	entries map[sourcefile.FileHandle]*Entry

	sourceRoot string
	heap       *heap.Heap
	env        *environment.Environment
}

// New creates an empty Cache rooted at sourceRoot.
func New(sourceRoot string, h *heap.Heap, env *environment.Environment) *Cache {
	return &Cache{
		entries:    make(map[sourcefile.FileHandle]*Entry),
		sourceRoot: sourceRoot,
		heap:       h,
		env:        env,
	}
}

// Get returns the cached (or freshly built) entry for path, rooted at the
// cache's source_root. It returns false if path falls outside source_root
// or if the Shared Heap has no parsed source for it.
func (c *Cache) Get(path string) (*Entry, bool) {
	handle, ok := sourcefile.New(c.sourceRoot, path)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[handle]; ok {
		return entry, true
	}

	source, ok := c.heap.GetSource(handle)
	if !ok {
		return nil, false
	}

	displayText := ""
	if content, err := os.ReadFile(sourcefile.AbsPath(c.sourceRoot, handle)); err == nil {
		displayText = string(content)
	}

	table, err := CreateOfSource(c.env, source)
	if err != nil {
		return nil, false
	}

	entry := &Entry{Table: table, SourceText: displayText}
	c.entries[handle] = entry
	return entry, true
}

// Evict removes path's cached entry, if any. It never fails, including
// when path falls outside source_root or was never cached.
func (c *Cache) Evict(path string) {
	handle, ok := sourcefile.New(c.sourceRoot, path)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, handle)
}

// FindAnnotation composes Get with Table.GetAnnotation.
func (c *Cache) FindAnnotation(path string, pos queries.Position) (string, bool) {
	entry, ok := c.Get(path)
	if !ok {
		return "", false
	}
	return entry.Table.GetAnnotation(pos)
}

// FindDefinition composes Get with Table.GetDefinition.
func (c *Cache) FindDefinition(path string, pos queries.Position) (queries.Range, bool) {
	entry, ok := c.Get(path)
	if !ok {
		return queries.Range{}, false
	}
	return entry.Table.GetDefinition(pos)
}
