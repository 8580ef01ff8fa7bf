package domain

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode builds a wire frame for the given event
func Encode(eventType EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// Decode parses a wire frame
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: malformed frame", ErrValidation)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing event type", ErrValidation)
	}
	return env, nil
}

// DecodePayload unmarshals and validates an inbound payload
func DecodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return Validate(dst)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: malformed %s payload", ErrValidation, env.Type)
	}
	return Validate(dst)
}
