// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// json.go -- JSON codec backed by goccy/go-json; it encodes the cookie wire
// format, save-state request bodies and analytics payloads.

package codec

import "github.com/goccy/go-json"

// JSON is the default codec.
type JSON struct{}

// Marshal serializes v to JSON bytes.
func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes JSON bytes into v.
func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Name returns "json".
func (JSON) Name() string { return "json" }

// ContentType returns "application/json".
func (JSON) ContentType() string { return "application/json" }

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool { return json.Valid(data) }

// Default is the default codec instance.
var Default Codec = JSON{}
