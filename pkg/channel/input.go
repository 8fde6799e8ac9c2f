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
	"sync"

	"github.com/keelhttp/keel/pkg/transport"
)

// Input is the request-content side of a channel. The transport pushes
// parsed content chunks in; the application reads them out. Reads never
// block: when no content is buffered Read returns ErrReadPending and the
// read callback fires once content arrives.
type Input struct {
	mu sync.Mutex

	chunks   [][]byte
	buffered int64
	read     int64
	eof      bool
	earlyEOF bool
	failure  error

	readCallback func()
}

func newInput() *Input {
	return &Input{}
}

// addContent appends a parsed content chunk. The chunk is retained as-is;
// the transport must not reuse the backing array until it has been read.
func (in *Input) addContent(content []byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(content) == 0 {
		return
	}
	in.chunks = append(in.chunks, content)
	in.buffered += int64(len(content))
}

// eofReached marks the normal end of the request content.
func (in *Input) eofReached() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.eof = true
}

// earlyEOFReached marks a truncated request body.
func (in *Input) earlyEOFReached() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.eof = true
	in.earlyEOF = true
}

// fail poisons the input; subsequent reads return err.
func (in *Input) fail(err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.failure = err
	in.eof = true
}

// Read copies buffered content into p. It returns ErrReadPending when no
// content is available yet, io.EOF at the normal end of the body, and a
// quiet io.ErrUnexpectedEOF when the body was truncated.
func (in *Input) Read(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.chunks) == 0 {
		switch {
		case in.failure != nil:
			return 0, in.failure
		case in.earlyEOF:
			return 0, &transport.QuietError{Err: io.ErrUnexpectedEOF}
		case in.eof:
			return 0, io.EOF
		default:
			return 0, ErrReadPending
		}
	}
	n := copy(p, in.chunks[0])
	if n == len(in.chunks[0]) {
		in.chunks = in.chunks[1:]
	} else {
		in.chunks[0] = in.chunks[0][n:]
	}
	in.buffered -= int64(n)
	in.read += int64(n)
	return n, nil
}

// Available returns the number of buffered bytes.
func (in *Input) Available() int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.buffered
}

// BytesRead returns the total bytes consumed by the application.
func (in *Input) BytesRead() int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.read
}

// IsEOF reports whether all content has been pushed and consumed.
func (in *Input) IsEOF() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.eof && len(in.chunks) == 0
}

// SetReadCallback registers the function run on a driving goroutine once
// content becomes available after a pending read.
func (in *Input) SetReadCallback(cb func()) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.readCallback = cb
}

func (in *Input) callback() func() {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.readCallback
}

func (in *Input) recycle() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.chunks = nil
	in.buffered = 0
	in.read = 0
	in.eof = false
	in.earlyEOF = false
	in.failure = nil
	in.readCallback = nil
}
