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

// Package env reads typed configuration overrides from the environment.
package env

import (
	"os"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	logutil "github.com/keelhttp/keel/pkg/logging"
)

func getEnvWithParser[T any](key string, defaultVal T, parser func(string) (T, error), logger logr.Logger) T {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}

	parsed, err := parser(raw)
	if err != nil {
		logger.V(logutil.DEFAULT).Info("Failed to parse environment variable, using default value",
			"key", key, "rawValue", raw, "error", err, "defaultValue", defaultVal)
		return defaultVal
	}

	logger.V(logutil.VERBOSE).Info("Loaded environment variable", "key", key, "value", parsed)
	return parsed
}

// GetEnvInt gets an int from an environment variable with a default value.
func GetEnvInt(key string, defaultVal int, logger logr.Logger) int {
	return getEnvWithParser(key, defaultVal, strconv.Atoi, logger)
}

// GetEnvDuration gets a time.Duration from an environment variable with a default value.
func GetEnvDuration(key string, defaultVal time.Duration, logger logr.Logger) time.Duration {
	return getEnvWithParser(key, defaultVal, time.ParseDuration, logger)
}

// GetEnvString gets a string from an environment variable with a default value.
func GetEnvString(key string, defaultVal string, logger logr.Logger) string {
	parser := func(s string) (string, error) { return s, nil }
	return getEnvWithParser(key, defaultVal, parser, logger)
}
