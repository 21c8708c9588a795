// Package codec holds the wire serializers used by the event bus.
package codec

import (
	jsoniter "github.com/json-iterator/go"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
)

var config = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON encodes events as UTF-8 JSON text containing their exported fields only.
type JSON struct{}

var _ cbus.Serializer = JSON{}

// Serialize writes v as json bytes.
func (JSON) Serialize(v any) ([]byte, error) {
	return config.Marshal(v)
}

// Deserialize parses json bytes into ptr.
func (JSON) Deserialize(data []byte, ptr any) error {
	return config.Unmarshal(data, ptr)
}
