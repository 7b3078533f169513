package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(NormalizePayload(data), v)
}

// Valid reports whether data is a well-formed JSON document. An empty payload
// counts as JSON null.
func Valid(data []byte) bool {
	return defaultConfig.Valid(NormalizePayload(data))
}

// NormalizePayload maps an empty payload to the JSON literal null.
func NormalizePayload(data []byte) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}
