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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequestTypeCheck(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"kind":"typeCheck","payload":{"updateEnvironmentWith":["a.dyn"],"check":["a.dyn"]}}`))
	require.NoError(t, err)
	tcr, ok := req.(TypeCheckRequest)
	require.True(t, ok)
	assert.Equal(t, []string{"a.dyn"}, tcr.Check)
	assert.Equal(t, []string{"a.dyn"}, tcr.UpdateEnvironmentWith)
}

func TestDecodeRequestTypeQueryLessOrEqual(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"kind":"typeQuery","payload":{"query":"lessOrEqual","payload":{"A":"Widget","B":"Base"}}}`))
	require.NoError(t, err)
	tqr, ok := req.(TypeQueryRequest)
	require.True(t, ok)
	q, ok := tqr.Query.(LessOrEqualQuery)
	require.True(t, ok)
	assert.Equal(t, "Widget", q.A)
	assert.Equal(t, "Base", q.B)
}

func TestDecodeRequestUnknownKind(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"kind":"bogus"}`))
	assert.Error(t, err)
}

func TestEncodeResponseTypeCheckSetsKind(t *testing.T) {
	body, err := EncodeResponse(TypeCheckResponse{Errors: nil})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"kind":"typeCheck"`)
}

func TestEncodeResponseStop(t *testing.T) {
	body, err := EncodeResponse(StopResponse{})
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"stop"}`, string(body))
}
