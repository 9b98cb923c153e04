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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyncheckd.dev/server/cmd/config"
	"dyncheckd.dev/server/sourcefile"
)

func newTestState(t *testing.T) (*ServerState, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SourceRoot = dir
	return New(cfg), dir
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestTypeCheckRequestReportsUndefinedSuperclass(t *testing.T) {
	s, dir := newTestState(t)
	writeSource(t, dir, "a.dyn", `export class A extends Ghost {}`)

	resp, err := s.Process(TypeCheckRequest{
		UpdateEnvironmentWith: []string{"a.dyn"},
		Check:                 []string{"a.dyn"},
	})
	require.NoError(t, err)

	tcr, ok := resp.(TypeCheckResponse)
	require.True(t, ok)

	handle, _ := sourcefile.New(dir, "a.dyn")
	errs, present := tcr.Errors[handle]
	require.True(t, present)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Ghost")

	_, known := s.Handles[handle]
	assert.True(t, known)
}

func TestRecheckResponseKeySetMatchesCheckHandles(t *testing.T) {
	s, dir := newTestState(t)
	writeSource(t, dir, "a.dyn", `export class A {}`)

	resp, err := s.Process(TypeCheckRequest{
		UpdateEnvironmentWith: []string{"a.dyn"},
		Check:                 []string{"a.dyn"},
	})
	require.NoError(t, err)
	tcr := resp.(TypeCheckResponse)

	handle, _ := sourcefile.New(dir, "a.dyn")
	require.Contains(t, tcr.Errors, handle)
	assert.Empty(t, tcr.Errors[handle])
}

func TestDisplayTypeErrorsEmptyReturnsAllKnownKeys(t *testing.T) {
	s, dir := newTestState(t)
	writeSource(t, dir, "a.dyn", `export class A {}`)
	_, err := s.Process(TypeCheckRequest{
		UpdateEnvironmentWith: []string{"a.dyn"},
		Check:                 []string{"a.dyn"},
	})
	require.NoError(t, err)

	resp, err := s.Process(DisplayTypeErrorsRequest{})
	require.NoError(t, err)
	tcr := resp.(TypeCheckResponse)

	assert.Len(t, tcr.Errors, len(s.Errors))
}

func TestDeferredDependentsQueuedAndFlushed(t *testing.T) {
	s, dir := newTestState(t)
	writeSource(t, dir, "b.dyn", `export class B {}`)
	writeSource(t, dir, "c.dyn", `import "./b";
export class C {}`)

	_, err := s.Process(TypeCheckRequest{
		UpdateEnvironmentWith: []string{"b.dyn", "c.dyn"},
		Check:                 []string{"b.dyn", "c.dyn"},
	})
	require.NoError(t, err)

	_, err = s.Process(TypeCheckRequest{
		UpdateEnvironmentWith: []string{"b.dyn"},
		Check:                 []string{"b.dyn"},
	})
	require.NoError(t, err)

	require.Len(t, s.Deferred, 1)
	deferred, ok := s.Deferred[0].(TypeCheckRequest)
	require.True(t, ok)
	assert.NotContains(t, deferred.Check, "b.dyn")

	resp, err := s.Process(FlushTypeErrorsRequest{})
	require.NoError(t, err)
	_ = resp.(TypeCheckResponse)
	assert.Empty(t, s.Deferred)
}

func TestTypeQueryLessOrEqual(t *testing.T) {
	s, dir := newTestState(t)
	writeSource(t, dir, "a.dyn", `export class Base {}
export class Widget extends Base {}`)
	_, err := s.Process(TypeCheckRequest{
		UpdateEnvironmentWith: []string{"a.dyn"},
		Check:                 []string{"a.dyn"},
	})
	require.NoError(t, err)

	resp, err := s.Process(TypeQueryRequest{Query: LessOrEqualQuery{A: "Widget", B: "Base"}})
	require.NoError(t, err)
	assert.Equal(t, "true", resp.(TypeQueryResponse).Text)

	resp, err = s.Process(TypeQueryRequest{Query: LessOrEqualQuery{A: "Widget", B: "Ghost"}})
	require.NoError(t, err)
	assert.Contains(t, resp.(TypeQueryResponse).Text, "Error: Type Ghost was not found in the type order.")
}

func TestTypeQuerySuperclassesAsymmetry(t *testing.T) {
	s, _ := newTestState(t)

	resp, err := s.Process(TypeQueryRequest{Query: AttributesQuery{Type: "Ghost"}})
	require.NoError(t, err)
	assert.Equal(t, "Error: No class definition found for Ghost", resp.(TypeQueryResponse).Text)

	resp, err = s.Process(TypeQueryRequest{Query: SuperclassesQuery{Type: "Ghost"}})
	require.NoError(t, err)
	assert.Equal(t, "No class definition found for Ghost", resp.(TypeQueryResponse).Text)
}

func TestSaveDocumentChecksOnSaveWhenNoNotifiers(t *testing.T) {
	s, dir := newTestState(t)
	writeSource(t, dir, "a.dyn", `export class A extends Ghost {}`)

	resp, err := s.dispatchInnerLSP(SaveDocumentRequest{File: "a.dyn"})
	require.NoError(t, err)
	require.NotNil(t, resp)

	handle, _ := sourcefile.New(dir, "a.dyn")
	assert.Len(t, s.Errors[handle], 1)
}

func TestSaveDocumentSkipsCheckWhenNotifiersPresent(t *testing.T) {
	s, dir := newTestState(t)
	writeSource(t, dir, "a.dyn", `export class A extends Ghost {}`)
	s.SetFileNotifiers([]string{"watchman"})

	resp, err := s.dispatchInnerLSP(SaveDocumentRequest{File: "a.dyn"})
	require.NoError(t, err)
	assert.Nil(t, resp)

	handle, _ := sourcefile.New(dir, "a.dyn")
	assert.NotContains(t, s.Errors, handle)
}

func TestStopRequestRespondsWithStopResponse(t *testing.T) {
	s, _ := newTestState(t)
	resp, err := s.Process(StopRequest{})
	require.NoError(t, err)
	assert.Equal(t, StopResponse{}, resp)
}

func TestClientConnectionRequestIsInvalid(t *testing.T) {
	s, _ := newTestState(t)
	_, err := s.Process(ClientConnectionRequest{})
	require.Error(t, err)
	var invalid *InvalidRequestError
	assert.ErrorAs(t, err, &invalid)
}

func TestInnerOnlyRequestsAtOuterLayerAreDropped(t *testing.T) {
	s, _ := newTestState(t)
	resp, err := s.Process(HoverRequest{File: "a.dyn"})
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestRecheckIsIdempotentInErrors(t *testing.T) {
	s, dir := newTestState(t)
	writeSource(t, dir, "a.dyn", `export class A extends Ghost {}`)

	req := TypeCheckRequest{UpdateEnvironmentWith: []string{"a.dyn"}, Check: []string{"a.dyn"}}
	resp1, err := s.Process(req)
	require.NoError(t, err)
	resp2, err := s.Process(req)
	require.NoError(t, err)

	assert.Equal(t, resp1, resp2)
}
