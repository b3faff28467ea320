package persistence

import (
	"bytes"
	"encoding/gob"
	"time"
)

// The engine persists state contexts and usage snapshots as interface
// values; their container types must be known to gob. Domain-specific
// payload types are registered by their own packages.
func init() {
	gob.Register(map[string]any{})
	gob.Register(map[string]float64{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(time.Time{})
}

// EncodeValue serializes arbitrary Go values using encoding/gob.
// Values are encoded behind an interface so that DecodeValue can always
// decode into `any`. Callers must gob.Register concrete payload types.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	var iv = v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue deserializes data produced by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := gob.NewDecoder(bytes.NewBuffer(data))
	var iv any
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
