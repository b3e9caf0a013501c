package protocol

import "errors"

var (
	ErrNoVariant       = errors.New("protocol: message has no variant key")
	ErrMultiVariant    = errors.New("protocol: message has more than one variant key")
	ErrMalformed       = errors.New("protocol: malformed message")
	ErrVariantMismatch = errors.New("protocol: variant mismatch")
	ErrInvalidPayload  = errors.New("protocol: invalid payload")
)
