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

package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keelhttp/keel/pkg/logging"
)

func TestGetEnvInt(t *testing.T) {
	logger := logging.NewTestLogger()

	tests := []struct {
		name     string
		value    string
		set      bool
		defaults int
		want     int
	}{
		{name: "parses a valid value", value: "42", set: true, defaults: 7, want: 42},
		{name: "falls back on garbage", value: "not-a-number", set: true, defaults: 7, want: 7},
		{name: "falls back when unset", set: false, defaults: 7, want: 7},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			const key = "KEEL_TEST_INT"
			if test.set {
				t.Setenv(key, test.value)
			}
			assert.Equal(t, test.want, GetEnvInt(key, test.defaults, logger))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	logger := logging.NewTestLogger()

	tests := []struct {
		name     string
		value    string
		set      bool
		defaults time.Duration
		want     time.Duration
	}{
		{name: "parses a valid duration", value: "250ms", set: true, defaults: time.Second, want: 250 * time.Millisecond},
		{name: "falls back on garbage", value: "soon", set: true, defaults: time.Second, want: time.Second},
		{name: "falls back when unset", set: false, defaults: time.Second, want: time.Second},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			const key = "KEEL_TEST_DURATION"
			if test.set {
				t.Setenv(key, test.value)
			}
			assert.Equal(t, test.want, GetEnvDuration(key, test.defaults, logger))
		})
	}
}

func TestGetEnvString(t *testing.T) {
	logger := logging.NewTestLogger()

	t.Run("returns the set value", func(t *testing.T) {
		t.Setenv("KEEL_TEST_STRING", "value")
		assert.Equal(t, "value", GetEnvString("KEEL_TEST_STRING", "default", logger))
	})
	t.Run("falls back when unset", func(t *testing.T) {
		assert.Equal(t, "default", GetEnvString("KEEL_TEST_STRING_MISSING", "default", logger))
	})
}
