package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NewModel is the client->server enrollment opener.
type NewModel struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	ModelName string `json:"model_name"`
}

func (m NewModel) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("%w: NewModel missing email", ErrInvalidPayload)
	}
	if m.Password == "" {
		return fmt.Errorf("%w: NewModel missing password", ErrInvalidPayload)
	}
	if strings.TrimSpace(m.ModelName) == "" {
		return fmt.Errorf("%w: NewModel missing model_name", ErrInvalidPayload)
	}
	return nil
}

// Challenge is the server->client signing challenge. The challenge
// bytes arrive base64 encoded.
type Challenge struct {
	Challenge string `json:"challenge"`
}

func (c Challenge) Validate() error {
	if c.Challenge == "" {
		return fmt.Errorf("%w: Challenge missing challenge", ErrInvalidPayload)
	}
	return nil
}

// ChallengeResponse carries the base64 signature over the decoded
// challenge bytes.
type ChallengeResponse struct {
	Email     string `json:"email"`
	ModelName string `json:"model_name"`
	Response  string `json:"response"`
}

func (c ChallengeResponse) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: ChallengeResponse missing email", ErrInvalidPayload)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: ChallengeResponse missing model_name", ErrInvalidPayload)
	}
	if c.Response == "" {
		return fmt.Errorf("%w: ChallengeResponse missing response", ErrInvalidPayload)
	}
	return nil
}

// AccessToken is the credential pair. The server sends it at the end of
// enrollment; the client sends it back to open a session.
type AccessToken struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

func (a AccessToken) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: AccessToken missing id", ErrInvalidPayload)
	}
	if strings.TrimSpace(a.Token) == "" {
		return fmt.Errorf("%w: AccessToken missing token", ErrInvalidPayload)
	}
	return nil
}

// JobOffer is the JobConfig payload. Fields are pointers so a missing
// field is distinguishable from a zero value; the negotiation policy
// rejects incomplete offers rather than erroring.
type JobOffer struct {
	MessageCreationTimestamp  *int64  `json:"message_creation_timestamp"`
	PredictionCutoffTimestamp *int64  `json:"prediction_cutoff_timestamp"`
	PredictionType            *string `json:"prediction_type"`
}

func (o JobOffer) Complete() bool {
	return o.MessageCreationTimestamp != nil &&
		o.PredictionCutoffTimestamp != nil &&
		o.PredictionType != nil
}

func (o JobOffer) Validate() error {
	if o.MessageCreationTimestamp == nil {
		return fmt.Errorf("%w: JobConfig missing message_creation_timestamp", ErrInvalidPayload)
	}
	if o.PredictionCutoffTimestamp == nil {
		return fmt.Errorf("%w: JobConfig missing prediction_cutoff_timestamp", ErrInvalidPayload)
	}
	if o.PredictionType == nil {
		return fmt.Errorf("%w: JobConfig missing prediction_type", ErrInvalidPayload)
	}
	return nil
}

// ConfigResponse is the client's accept/reject answer to a JobConfig.
type ConfigResponse struct {
	Accept bool `json:"accept"`
}

// Dataset carries the training and prediction tables, each a
// base64-encoded bzip2-compressed CSV string.
type Dataset struct {
	Train   string `json:"train"`
	Predict string `json:"predict"`
}

func (d Dataset) Validate() error {
	if d.Train == "" {
		return fmt.Errorf("%w: Dataset missing train", ErrInvalidPayload)
	}
	if d.Predict == "" {
		return fmt.Errorf("%w: Dataset missing predict", ErrInvalidPayload)
	}
	return nil
}

// ServerEnvelope is the server's error-report payload. Text is itself a
// JSON string holding the detailed payload; Code's shape is
// server-defined, so it stays raw until rendered.
type ServerEnvelope struct {
	Code json.RawMessage `json:"code"`
	Text string          `json:"text"`
}

// ServerDetail is the decoded form of a ServerEnvelope's Text field.
type ServerDetail struct {
	Message string `json:"message"`
}

func (s ServerEnvelope) CodeString() string {
	return strings.Trim(string(s.Code), `"`)
}

// Detail decodes the nested JSON in Text.
func (s ServerEnvelope) Detail() (ServerDetail, error) {
	var d ServerDetail
	if err := json.Unmarshal([]byte(s.Text), &d); err != nil {
		return ServerDetail{}, fmt.Errorf("%w: server text: %v", ErrInvalidPayload, err)
	}
	return d, nil
}

// ServerError is a fatal error reported by the server. It terminates
// the enrollment or session that received it.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: code %s", e.Code)
	}
	return fmt.Sprintf("server error: code %s: %s", e.Code, e.Message)
}

// Err classifies the envelope. Known lock-out messages and payloads
// that cannot be classified are terminal; anything else is advisory
// and returns nil.
func (s ServerEnvelope) Err() error {
	detail, err := s.Detail()
	if err != nil {
		return &ServerError{Code: s.CodeString(), Message: "unclassifiable server error"}
	}
	switch strings.ToLower(detail.Message) {
	case "":
		return &ServerError{Code: s.CodeString(), Message: "unclassifiable server error"}
	case "locked", "unauthorized":
		return &ServerError{Code: s.CodeString(), Message: detail.Message}
	}
	return nil
}

// StatusReply is the bare status object the server sends after a
// session AccessToken, outside the single-variant scheme.
type StatusReply struct {
	Message string `json:"message"`
}
