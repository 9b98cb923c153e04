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
package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyncheckd.dev/server/sourcefile"
)

func TestPopulateAndInferProtocols(t *testing.T) {
	env := New()
	handle := sourcefile.FileHandle("widget.dyn")

	env.Populate(handle, []*ClassDef{
		{Name: "Widget", Superclass: "Base"},
		{Name: "Base"},
	}, []string{"other"})
	env.InferProtocols()

	_, ok := env.ClassDefinition("Widget")
	require.True(t, ok)
	assert.True(t, env.Order().IsInstantiated("Widget"))
	assert.True(t, env.Order().IsInstantiated("Base"))

	le, err := env.Order().LessOrEqual("Widget", "Base")
	require.NoError(t, err)
	assert.True(t, le)
}

func TestPurgeRemovesClassesAndTypeOrderEntries(t *testing.T) {
	env := New()
	handle := sourcefile.FileHandle("widget.dyn")
	env.Populate(handle, []*ClassDef{{Name: "Widget"}}, nil)
	env.InferProtocols()
	require.True(t, env.Order().IsInstantiated("Widget"))

	env.Purge(handle)

	_, ok := env.ClassDefinition("Widget")
	assert.False(t, ok)
	assert.False(t, env.Order().IsInstantiated("Widget"))
}

func TestDependenciesTransitiveClosure(t *testing.T) {
	env := New()
	env.Populate(sourcefile.FileHandle("a.dyn"), nil, []string{"b"})
	env.Populate(sourcefile.FileHandle("b.dyn"), nil, []string{"c"})
	env.Populate(sourcefile.FileHandle("c.dyn"), nil, nil)

	deps := env.Dependencies(sourcefile.FileHandle("a.dyn"))
	assert.Equal(t, []string{"b", "c"}, deps)
}

func TestDependentsTransitiveClosure(t *testing.T) {
	env := New()
	env.Populate(sourcefile.FileHandle("a.dyn"), nil, []string{"b"})
	env.Populate(sourcefile.FileHandle("b.dyn"), nil, []string{"c"})
	env.Populate(sourcefile.FileHandle("c.dyn"), nil, nil)

	dependents := env.Dependents(sourcefile.FileHandle("c.dyn"))
	assert.Equal(t, []string{"a", "b"}, dependents)
}

func TestDependenciesIgnoresCycles(t *testing.T) {
	env := New()
	env.Populate(sourcefile.FileHandle("a.dyn"), nil, []string{"b"})
	env.Populate(sourcefile.FileHandle("b.dyn"), nil, []string{"a"})

	deps := env.Dependencies(sourcefile.FileHandle("a.dyn"))
	assert.Equal(t, []string{"b"}, deps)
}

func TestHandleForQualifierTracksOwnership(t *testing.T) {
	env := New()
	handle := sourcefile.FileHandle("pkg/widget.dyn")
	env.Populate(handle, nil, nil)

	got, ok := env.HandleForQualifier("pkg.widget")
	require.True(t, ok)
	assert.Equal(t, handle, got)

	env.Purge(handle)
	_, ok = env.HandleForQualifier("pkg.widget")
	assert.False(t, ok)
}

func TestUntrackedErrorMessage(t *testing.T) {
	env := New()
	_, err := env.Order().LessOrEqual("Ghost", "object")
	require.Error(t, err)
	assert.Equal(t, "Type Ghost was not found in the type order.", err.Error())
}

func TestJoinFindsCommonAncestor(t *testing.T) {
	env := New()
	env.Populate(sourcefile.FileHandle("a.dyn"), []*ClassDef{
		{Name: "Base"},
		{Name: "Left", Superclass: "Base"},
		{Name: "Right", Superclass: "Base"},
	}, nil)
	env.InferProtocols()

	join, err := env.Order().Join("Left", "Right")
	require.NoError(t, err)
	assert.Equal(t, "Base", join)
}
