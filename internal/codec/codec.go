// Package codec encodes values for storage and the devtools endpoints.
package codec

import "encoding/json"

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec produces indented JSON, for humans.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.MarshalIndent(v, "", "  ") }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// CompactJSONCodec produces single-line JSON, as needed for event streams.
type CompactJSONCodec struct{}

func (CompactJSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (CompactJSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

var (
	_ Codec = JSONCodec{}
	_ Codec = CompactJSONCodec{}
)
