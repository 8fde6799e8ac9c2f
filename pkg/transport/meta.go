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

package transport

import "strings"

// ContentLengthUnknown marks a response whose length is not declared
// (chunked or close-delimited).
const ContentLengthUnknown = -1

// Field is a single header name/value pair.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered header collection. Lookups are case-insensitive;
// insertion order is preserved for emission.
type Fields []Field

// Get returns the first value for name, or "".
func (f Fields) Get(name string) string {
	for _, field := range f {
		if strings.EqualFold(field.Name, name) {
			return field.Value
		}
	}
	return ""
}

// Contains reports whether a field with the given name is present.
func (f Fields) Contains(name string) bool {
	for _, field := range f {
		if strings.EqualFold(field.Name, name) {
			return true
		}
	}
	return false
}

// Add appends a field, keeping any existing fields of the same name.
func (f *Fields) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

// Set replaces all fields of the given name with a single value.
func (f *Fields) Set(name, value string) {
	f.Remove(name)
	f.Add(name, value)
}

// Remove deletes all fields of the given name.
func (f *Fields) Remove(name string) {
	kept := (*f)[:0]
	for _, field := range *f {
		if !strings.EqualFold(field.Name, name) {
			kept = append(kept, field)
		}
	}
	*f = kept
}

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	copy(out, f)
	return out
}

// RequestMeta is the parsed request line and headers delivered by the
// transport layer at the start of an exchange.
type RequestMeta struct {
	Method        string
	URI           string
	Version       string
	Fields        Fields
	ContentLength int64
}

// IsHead reports whether the request is a HEAD request, whose responses
// carry headers but never a body.
func (m *RequestMeta) IsHead() bool {
	return m != nil && m.Method == "HEAD"
}

// ResponseMeta is the response line and headers handed to the transport at
// commit time. Once committed the snapshot is logically frozen.
type ResponseMeta struct {
	Status        int
	Reason        string
	Version       string
	Fields        Fields
	ContentLength int64
}

// IsInterim reports whether this is a 1xx response, which never commits the
// exchange.
func (m *ResponseMeta) IsInterim() bool {
	return m != nil && m.Status >= 100 && m.Status < 200
}
