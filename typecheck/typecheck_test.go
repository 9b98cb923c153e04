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
package typecheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyncheckd.dev/server/environment"
	"dyncheckd.dev/server/scheduler"
	"dyncheckd.dev/server/sourcefile"
)

func TestAnalyzeFlagsUndefinedSuperclass(t *testing.T) {
	env := environment.New()
	handle := sourcefile.FileHandle("widget.dyn")
	env.Populate(handle, []*environment.ClassDef{
		{Name: "Widget", Superclass: "Ghost"},
	}, nil)
	env.InferProtocols()

	svc := New(scheduler.New(1))
	errs := svc.Analyze(env, []sourcefile.FileHandle{handle})

	require.Len(t, errs, 1)
	assert.Equal(t, "widget.dyn", errs[0].Path)
	assert.Contains(t, errs[0].Message, "Ghost")
}

func TestAnalyzeCleanFileProducesNoErrors(t *testing.T) {
	env := environment.New()
	handle := sourcefile.FileHandle("widget.dyn")
	env.Populate(handle, []*environment.ClassDef{
		{Name: "Widget", Superclass: "Base"},
		{Name: "Base"},
	}, nil)
	env.InferProtocols()

	svc := New(scheduler.New(1))
	errs := svc.Analyze(env, []sourcefile.FileHandle{handle})
	assert.Empty(t, errs)
}

func TestAnalyzeUnknownHandleProducesNoErrors(t *testing.T) {
	env := environment.New()
	svc := New(scheduler.New(1))
	errs := svc.Analyze(env, []sourcefile.FileHandle{sourcefile.FileHandle("missing.dyn")})
	assert.Empty(t, errs)
}
