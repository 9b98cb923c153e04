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
package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/heap"
	"dyncheckd.dev/server/scheduler"
	"dyncheckd.dev/server/sourcefile"
)

const widgetSource = `
import { Base } from "./base";

export class Widget extends Base {
  label: string;
  render(): string {
    return this.label;
  }
}
`

func TestParseSourcesExtractsClassesAndImports(t *testing.T) {
	h := heap.New(1 << 20)
	s := scheduler.New(1)
	svc := New(h, s)

	handle := sourcefile.FileHandle("widget.dyn")
	results := svc.ParseSources(map[sourcefile.FileHandle][]byte{
		handle: []byte(widgetSource),
	})

	require.Len(t, results, 1)
	result := results[0]
	require.NoError(t, result.Err)
	require.Len(t, result.Classes, 1)

	want := &environment.ClassDef{
		Name:       "Widget",
		Superclass: "Base",
		Attributes: []environment.Attribute{{Name: "label", Type: "string"}},
		Methods:    []environment.Method{{Name: "render", Params: nil, Return: "string"}},
	}
	if diff := cmp.Diff(want, result.Classes[0]); diff != "" {
		t.Fatalf("class definition mismatch (-want +got):\n%s", diff)
	}

	assert.Contains(t, result.Imports, "./base")

	stored, ok := h.GetSource(handle)
	require.True(t, ok)
	assert.Equal(t, widgetSource, string(stored))
}

func TestParseSourcesHandlesMultipleFilesInBatch(t *testing.T) {
	h := heap.New(1 << 20)
	s := scheduler.New(4).WithParallel(true)
	svc := New(h, s)

	results := svc.ParseSources(map[sourcefile.FileHandle][]byte{
		sourcefile.FileHandle("a.dyn"): []byte(`export class A {}`),
		sourcefile.FileHandle("b.dyn"): []byte(`export class B {}`),
	})

	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.Len(t, r.Classes, 1)
	}
}
