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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelhttp/keel/pkg/transport"
)

func TestResponseSnapshotFreezes(t *testing.T) {
	t.Parallel()
	r := newResponse()
	require.NoError(t, r.SetStatus(http.StatusCreated))
	require.NoError(t, r.SetHeader("Location", "/things/1"))
	require.NoError(t, r.SetContentLength(0))

	meta := r.snapshot()
	assert.Equal(t, http.StatusCreated, meta.Status)
	assert.Equal(t, "Created", meta.Reason, "an empty reason falls back to the standard text")
	assert.Equal(t, "/things/1", meta.Fields.Get("Location"))

	assert.ErrorIs(t, r.SetStatus(http.StatusOK), ErrCommitted)
	assert.ErrorIs(t, r.AddHeader("X-Late", "no"), ErrCommitted)
	assert.ErrorIs(t, r.SetContentLength(1), ErrCommitted)
	assert.Equal(t, "/things/1", meta.Fields.Get("Location"), "the snapshot is untouched by later attempts")
}

func TestResponseSnapshotIsIndependent(t *testing.T) {
	t.Parallel()
	r := newResponse()
	require.NoError(t, r.AddHeader("Server", "keel"))
	meta := r.snapshot()
	meta.Fields.Set("Server", "tampered")

	r.recycle()
	require.NoError(t, r.AddHeader("Server", "keel"))
	assert.Equal(t, "keel", r.Header("Server"), "mutating a snapshot never reaches the response")
}

func TestResponseDefaults(t *testing.T) {
	t.Parallel()
	r := newResponse()
	assert.Equal(t, http.StatusOK, r.Status())
	assert.Equal(t, int64(transport.ContentLengthUnknown), r.ContentLength())
	assert.False(t, r.IsFrozen())
}

func TestOutputCloseIdempotent(t *testing.T) {
	t.Parallel()
	tr := newRecordingChannel(t)
	out := tr.output

	require.NoError(t, out.Write([]byte("x"), false))
	require.NoError(t, out.Close())
	require.NoError(t, out.Close(), "closing twice is a no-op")
	assert.ErrorIs(t, out.Write([]byte("y"), false), ErrOutputClosed,
		"writes after close are rejected")
}

// newRecordingChannel builds a channel around an inline-succeeding transport
// for output-level tests.
func newRecordingChannel(t *testing.T) *Channel {
	t.Helper()
	ch := newTestChannel(t, inlineTransport{}, HandlerFunc(func(*Channel) error { return nil }))
	ch.OnRequest(getRequest("/out"))
	return ch
}

type inlineTransport struct{}

func (inlineTransport) Send(_ *transport.ResponseMeta, _ bool, _ []byte, _ bool, cb transport.Callback) {
	cb.Succeeded()
}
func (inlineTransport) Abort(error) {}
func (inlineTransport) OnCompleted() {}
