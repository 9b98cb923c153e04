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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/heap"
	"dyncheckd.dev/server/queries"
	"dyncheckd.dev/server/sourcefile"
)

const sampleSource = `
export class Widget {
  label: string;
}
`

func TestTableGetAnnotationAndDefinition(t *testing.T) {
	env := environment.New()
	table, err := CreateOfSource(env, []byte(sampleSource))
	require.NoError(t, err)

	labelLine := 2
	labelCol := 2
	ann, ok := table.GetAnnotation(queries.Position{Line: uint32(labelLine), Character: uint32(labelCol)})
	require.True(t, ok)
	assert.Equal(t, "string", ann)

	_, ok = table.GetDefinition(queries.Position{Line: uint32(labelLine), Character: uint32(labelCol)})
	assert.True(t, ok)
}

func TestCacheGetEvictAndRebuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.dyn")
	require.NoError(t, os.WriteFile(path, []byte(sampleSource), 0o644))

	h := heap.New(1 << 20)
	handle, ok := sourcefile.New(dir, path)
	require.True(t, ok)
	h.Put(handle, []byte(sampleSource))

	env := environment.New()
	cache := New(dir, h, env)

	entry, ok := cache.Get("widget.dyn")
	require.True(t, ok)
	assert.Contains(t, entry.SourceText, "Widget")

	again, ok := cache.Get("widget.dyn")
	require.True(t, ok)
	assert.Same(t, entry, again)

	cache.Evict("widget.dyn")
	rebuilt, ok := cache.Get("widget.dyn")
	require.True(t, ok)
	assert.NotSame(t, entry, rebuilt)
}

func TestCacheGetMissingHeapSourceReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.dyn")
	require.NoError(t, os.WriteFile(path, []byte(sampleSource), 0o644))

	h := heap.New(1 << 20)
	env := environment.New()
	cache := New(dir, h, env)

	_, ok := cache.Get("widget.dyn")
	assert.False(t, ok)
}

func TestCacheGetOutsideSourceRootReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	h := heap.New(1 << 20)
	env := environment.New()
	cache := New(dir, h, env)

	_, ok := cache.Get("../outside.dyn")
	assert.False(t, ok)
}
