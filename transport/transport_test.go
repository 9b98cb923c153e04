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
package transport

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte(`{"kind":"stop"}`)))
	require.NoError(t, writeFrame(&buf, []byte(`{"kind":"flushTypeErrors"}`)))

	reader := bufio.NewReader(&buf)
	first, err := readFrame(reader)
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"stop"}`, string(first))

	second, err := readFrame(reader)
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"flushTypeErrors"}`, string(second))
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	oversized := uint32(maxFrameBytes + 1)
	header := []byte{byte(oversized >> 24), byte(oversized >> 16), byte(oversized >> 8), byte(oversized)}
	buf.Write(header)

	_, err := readFrame(bufio.NewReader(&buf))
	assert.Error(t, err)
}
