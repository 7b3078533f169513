package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill copies Watermill headers into Metadata.
func FromWatermill(md message.Metadata) Metadata {
	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// ToWatermill copies Metadata into a fresh Watermill header map.
func ToWatermill(metadata Metadata) message.Metadata {
	wm := make(message.Metadata, len(metadata))
	for k, v := range metadata {
		wm[k] = v
	}
	return wm
}

// CorrelationIDOf reads the correlation id header straight off a message.
func CorrelationIDOf(msg *message.Message) (string, bool) {
	if msg == nil {
		return "", false
	}
	id := msg.Metadata.Get(CorrelationIDKey)
	return id, id != ""
}
