// Package codec provides encode/decode interfaces for cookie payloads,
// save-state requests and cached user-state records.
package codec

// Codec encodes and decodes values for storage or transmission.
type Codec interface {
	// Marshal serializes v into bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes data into v (must be a pointer).
	Unmarshal(data []byte, v any) error
	// Name returns the codec identifier used for diagnostics.
	Name() string
	// ContentType returns the MIME type written on HTTP payloads.
	ContentType() string
}
