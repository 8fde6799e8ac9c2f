/*
Copyright 2026 The keel Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package channel

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelhttp/keel/pkg/transport"
)

func TestInputReadPendingWithoutContent(t *testing.T) {
	t.Parallel()
	in := newInput()
	n, err := in.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrReadPending, "reads never block; they report pending instead")
}

func TestInputReadsAcrossChunks(t *testing.T) {
	t.Parallel()
	in := newInput()
	in.addContent([]byte("abcdef"))
	in.addContent([]byte("gh"))
	in.eofReached()

	buf := make([]byte, 4)
	n, err := in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]), "a short buffer drains the chunk in pieces")

	n, err = in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]), "the remainder of the first chunk comes next")

	n, err = in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "gh", string(buf[:n]))
	assert.Equal(t, int64(8), in.BytesRead())

	_, err = in.Read(buf)
	assert.ErrorIs(t, err, io.EOF, "the drained input reports the normal end of body")
	assert.True(t, in.IsEOF())
}

func TestInputEarlyEOFIsQuiet(t *testing.T) {
	t.Parallel()
	in := newInput()
	in.addContent([]byte("partial"))
	in.earlyEOFReached()

	buf := make([]byte, 16)
	n, err := in.Read(buf)
	require.NoError(t, err, "buffered content is still readable after a truncation")
	assert.Equal(t, "partial", string(buf[:n]))

	_, err = in.Read(buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "a truncated body surfaces as an unexpected EOF")
	assert.True(t, transport.IsQuiet(err), "truncations are connection noise, not application errors")
}

func TestInputFailurePoisonsReads(t *testing.T) {
	t.Parallel()
	in := newInput()
	in.fail(assert.AnError)
	_, err := in.Read(make([]byte, 4))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestInputRecycle(t *testing.T) {
	t.Parallel()
	in := newInput()
	in.addContent([]byte("junk"))
	in.eofReached()
	in.SetReadCallback(func() {})
	in.recycle()

	assert.Zero(t, in.Available())
	assert.Zero(t, in.BytesRead())
	assert.Nil(t, in.callback())
	_, err := in.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrReadPending, "a recycled input starts over")
}
