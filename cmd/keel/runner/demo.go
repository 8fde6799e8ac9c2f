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

package runner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/keelhttp/keel/pkg/channel"
	"github.com/keelhttp/keel/pkg/logging"
	"github.com/keelhttp/keel/pkg/metrics"
	"github.com/keelhttp/keel/pkg/pool"
	"github.com/keelhttp/keel/pkg/transport"
)

// demoTransport is a loopback transport: frames are logged instead of
// written to a socket, and done fires once the exchange finishes either way.
type demoTransport struct {
	logger logr.Logger
	done   chan struct{}
	once   sync.Once
}

var _ transport.Transport = &demoTransport{}

func newDemoTransport(logger logr.Logger) *demoTransport {
	return &demoTransport{logger: logger.WithName("demo-transport"), done: make(chan struct{})}
}

func (t *demoTransport) Send(meta *transport.ResponseMeta, head bool, content []byte, last bool, cb transport.Callback) {
	if meta != nil {
		t.logger.V(logging.DEBUG).Info("frame", "status", meta.Status, "bytes", len(content), "last", last)
	} else {
		t.logger.V(logging.DEBUG).Info("frame", "bytes", len(content), "last", last)
	}
	cb.Succeeded()
}

func (t *demoTransport) Abort(err error) {
	t.logger.V(logging.DEBUG).Info("aborted", "error", err.Error())
	t.finish()
}

func (t *demoTransport) OnCompleted() { t.finish() }

func (t *demoTransport) finish() { t.once.Do(func() { close(t.done) }) }

// demoHandler exercises the sync, async, echo, error, and not-handled paths.
type demoHandler struct {
	logger logr.Logger
}

var _ channel.Handler = &demoHandler{}
var _ channel.ResumeHandler = &demoHandler{}

func (h *demoHandler) Handle(ch *channel.Channel) error {
	switch ch.Request().URI {
	case "/hello":
		body := []byte("hello from keel\n")
		if err := ch.Response().SetContentLength(int64(len(body))); err != nil {
			return err
		}
		return ch.Write(body, true)

	case "/echo":
		var body []byte
		buf := make([]byte, 512)
		for {
			n, err := ch.Read(buf)
			body = append(body, buf[:n]...)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
		return ch.Write(body, true)

	case "/slow":
		if err := ch.StartAsync(time.Second); err != nil {
			return err
		}
		go func() {
			time.Sleep(25 * time.Millisecond)
			if err := ch.AsyncResume(); err != nil {
				h.logger.Error(err, "resume failed", "id", ch.RequestID())
			}
		}()
		return nil

	case "/fail":
		return fmt.Errorf("demo failure")

	default:
		// Not handled: the engine synthesizes a 404.
		return nil
	}
}

func (h *demoHandler) OnAsyncResume(ch *channel.Channel) error {
	return ch.Write([]byte("slow response done\n"), true)
}

// runTraffic drives requestCount loopback requests through fresh channels,
// one at a time, waiting for each exchange to finish.
func (r *Runner) runTraffic(ctx context.Context, logger logr.Logger, workers *pool.Pool, cfg channel.Config) error {
	handler := &demoHandler{logger: logger.WithName("demo-handler")}
	recorder := metrics.NewRecorder()
	uris := []string{"/hello", "/echo", "/slow", "/fail", "/missing"}

	for i := 0; i < *requestCount; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		uri := uris[i%len(uris)]
		tr := newDemoTransport(logger)
		ch := channel.New(logger, cfg, workers, tr, handler)
		ch.SetRecorder(recorder)

		meta := &transport.RequestMeta{
			Method:        "GET",
			URI:           uri,
			Version:       "HTTP/1.1",
			ContentLength: 0,
		}
		var content []byte
		if uri == "/echo" {
			meta.Method = "POST"
			content = []byte("ping")
			meta.ContentLength = int64(len(content))
		}

		ch.OnRequest(meta)
		if len(content) > 0 {
			ch.OnContent(content)
		}
		ch.OnContentComplete()
		ch.OnRequestComplete()
		if err := ch.Execute(); err != nil {
			return fmt.Errorf("dispatching %s: %w", uri, err)
		}

		select {
		case <-tr.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return fmt.Errorf("exchange %s did not finish", uri)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(*requestInterval):
		}
	}
	return nil
}
