// Package protocol defines the wire messages exchanged with the
// coordination service.
//
// A message is a JSON object with exactly one top-level key, the
// variant tag, whose value is the variant's payload. Anything with
// zero or multiple top-level keys is a parse failure.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Variant tags recognized on the wire.
const (
	VariantNewModel          = "NewModel"
	VariantChallenge         = "Challenge"
	VariantChallengeResponse = "ChallengeResponse"
	VariantAccessToken       = "AccessToken"
	VariantAlive             = "Alive"
	VariantJobConfig         = "JobConfig"
	VariantConfigResponse    = "ConfigResponse"
	VariantDataset           = "Dataset"
	VariantPredictions       = "Predictions"
	VariantServer            = "Server"
)

// Message is one decoded wire message: the variant tag plus its still
// unparsed payload.
type Message struct {
	Variant string
	Payload json.RawMessage
}

// Parse decodes raw bytes into a Message, enforcing the single-variant
// invariant.
func Parse(data []byte) (Message, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(obj) == 0 {
		return Message{}, ErrNoVariant
	}
	if len(obj) > 1 {
		return Message{}, ErrMultiVariant
	}
	for variant, payload := range obj {
		return Message{Variant: variant, Payload: payload}, nil
	}
	return Message{}, ErrNoVariant
}

// Encode serializes a variant and payload into wire bytes.
func Encode(variant string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return json.Marshal(map[string]json.RawMessage{variant: raw})
}

// Decode unmarshals the message payload into v after checking the
// variant tag.
func (m Message) Decode(variant string, v any) error {
	if m.Variant != variant {
		return fmt.Errorf("%w: got %q want %q", ErrVariantMismatch, m.Variant, variant)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
