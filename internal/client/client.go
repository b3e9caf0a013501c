// Package client implements the long-lived model session.
//
// A Client authenticates a previously enrolled credential, then cycles
// between liveness echoes, job-offer negotiation, and dataset
// processing. All I/O is blocking; a session owns its connection
// exclusively and never reconnects.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sybl-ml/sybl-go/internal/credstore"
	"github.com/sybl-ml/sybl-go/internal/dataset"
	"github.com/sybl-ml/sybl-go/internal/logging"
	"github.com/sybl-ml/sybl-go/internal/observability"
	"github.com/sybl-ml/sybl-go/internal/policy"
	"github.com/sybl-ml/sybl-go/internal/protocol"
	"github.com/sybl-ml/sybl-go/internal/protocol/wire"
)

// authSuccess is the status text the server sends when a session
// credential is accepted.
const authSuccess = "Authentication successful"

var (
	ErrCallbackRequired     = errors.New("client: callback not registered")
	ErrCredentialRequired   = errors.New("client: credential not loaded")
	ErrAuthenticationFailed = errors.New("client: authentication failed")
)

// Callback performs the actual work: given prepared training and
// prediction tables (record_id already stripped) and the accepted
// offer, it returns one prediction row per prediction-set row.
type Callback func(train, predict dataset.Table, offer *protocol.JobOffer) (dataset.Table, error)

// Client is one session's state machine.
type Client struct {
	cfg      Config
	cred     credstore.Credential
	pol      *policy.Policy
	callback Callback

	state    State
	pending  *protocol.Message
	accepted *protocol.JobOffer

	tr  *wire.Transport
	log zerolog.Logger
}

func New(cfg Config) *Client {
	return &Client{
		cfg:   cfg.WithDefaults(),
		pol:   policy.Default(),
		state: StateAuthenticating,
		log:   logging.New("client"),
	}
}

// RegisterCallback installs the work callback. Run refuses to start
// without one.
func (c *Client) RegisterCallback(cb Callback) error {
	if cb == nil {
		return ErrCallbackRequired
	}
	c.callback = cb
	return nil
}

// LoadCredential loads the enrollment credential for the identity from
// the store.
func (c *Client) LoadCredential(store *credstore.Store, email, modelName string) error {
	cred, err := store.Load(email, modelName)
	if err != nil {
		return err
	}
	c.cred = cred
	return nil
}

// UsePolicy replaces the default job negotiation policy.
func (c *Client) UsePolicy(p *policy.Policy) {
	if p != nil {
		c.pol = p
	}
}

// Run connects, authenticates, and drives the session loop until a
// fatal error. It never returns nil: the loop has no success exit.
func (c *Client) Run(ctx context.Context) error {
	if c.callback == nil {
		return ErrCallbackRequired
	}
	if c.cred.ModelID == "" || c.cred.AccessToken == "" {
		return ErrCredentialRequired
	}

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("client: connect %s: %w", c.cfg.Address, err)
	}
	defer conn.Close()
	c.log.Info().Str("addr", c.cfg.Address).Msg("connected")

	c.tr = wire.NewTransport(conn)
	if err := c.authenticate(); err != nil {
		observability.RecordSessionFailure("authenticate")
		return err
	}
	c.state = StateHeartbeat
	c.log.Info().Msg("session authenticated")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch c.state {
		case StateHeartbeat:
			err = c.heartbeat()
		case StateReadJob:
			err = c.readJob()
		case StateProcessing:
			err = c.processDataset()
		default:
			err = fmt.Errorf("client: invalid state %v", c.state)
		}
		if err != nil {
			observability.RecordSessionFailure(c.state.String())
			return err
		}
	}
}

// authenticate sends the credential and checks the server's status
// reply. The reply is a bare status object, not a variant message.
func (c *Client) authenticate() error {
	payload, err := protocol.Encode(protocol.VariantAccessToken, protocol.AccessToken{
		ID:    c.cred.ModelID,
		Token: c.cred.AccessToken,
	})
	if err != nil {
		return err
	}
	if err := c.tr.Send(payload); err != nil {
		return fmt.Errorf("client: send AccessToken: %w", err)
	}

	raw, err := c.tr.Receive()
	if err != nil {
		return fmt.Errorf("client: receive auth reply: %w", err)
	}
	var status protocol.StatusReply
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("%w: unreadable reply", ErrAuthenticationFailed)
	}
	if !strings.EqualFold(status.Message, authSuccess) {
		return fmt.Errorf("%w: %q", ErrAuthenticationFailed, status.Message)
	}
	return nil
}

// receive reads one message, intercepting terminal Server envelopes on
// the way. Parse failures are returned for the caller to classify.
func (c *Client) receive() (raw []byte, msg protocol.Message, err error) {
	raw, err = c.tr.Receive()
	if err != nil {
		return nil, protocol.Message{}, fmt.Errorf("client: receive: %w", err)
	}
	msg, err = protocol.Parse(raw)
	if err != nil {
		return raw, protocol.Message{}, err
	}

	if msg.Variant == protocol.VariantServer {
		var env protocol.ServerEnvelope
		if decErr := msg.Decode(protocol.VariantServer, &env); decErr != nil {
			return raw, msg, fmt.Errorf("client: %w", decErr)
		}
		if srvErr := env.Err(); srvErr != nil {
			return raw, msg, fmt.Errorf("client: %w", srvErr)
		}
		c.log.Warn().Str("code", env.CodeString()).Msg("server report")
	}
	return raw, msg, nil
}

// heartbeat blocks on one message and routes it. Alive is echoed back
// verbatim; JobConfig and Dataset are buffered for the consuming state.
func (c *Client) heartbeat() error {
	raw, msg, err := c.receive()
	if err != nil {
		if isParseError(err) {
			// The steady-state loop logs structural anomalies and
			// keeps reading.
			c.log.Warn().Err(err).Msg("dropping unparseable message")
			return nil
		}
		return err
	}

	switch msg.Variant {
	case protocol.VariantAlive:
		observability.RecordHeartbeat()
		c.log.Debug().Msg("heartbeat")
		if err := c.tr.Send(raw); err != nil {
			return fmt.Errorf("client: echo Alive: %w", err)
		}
	case protocol.VariantJobConfig:
		c.log.Info().Msg("received job config")
		c.pending = &msg
		c.state = StateReadJob
	case protocol.VariantDataset:
		c.log.Info().Msg("received dataset")
		c.pending = &msg
		c.state = StateProcessing
	default:
		c.log.Debug().Str("variant", msg.Variant).Msg("ignoring message")
	}
	return nil
}

// readJob pops the buffered offer, runs the negotiation policy, and
// answers with a ConfigResponse. All failure modes here recover to
// heartbeat; only transport errors are fatal.
func (c *Client) readJob() error {
	c.state = StateHeartbeat

	msg := c.takePending()
	if msg == nil {
		c.log.Error().Msg("no buffered message, returning to heartbeat")
		return nil
	}

	var offer protocol.JobOffer
	if err := msg.Decode(protocol.VariantJobConfig, &offer); err != nil {
		c.log.Warn().Err(err).Msg("invalid job config message")
		return nil
	}

	accept := c.pol.Compare(offer)
	reply, err := protocol.Encode(protocol.VariantConfigResponse, protocol.ConfigResponse{Accept: accept})
	if err != nil {
		return err
	}
	if err := c.tr.Send(reply); err != nil {
		return fmt.Errorf("client: send ConfigResponse: %w", err)
	}
	observability.RecordJobOffer(accept)

	if accept {
		c.accepted = &offer
		c.log.Info().Msg("accepting job")
	} else {
		c.log.Info().Msg("rejecting job")
	}
	return nil
}

// processDataset pops the buffered dataset, runs the work callback, and
// sends the predictions with record ids re-attached.
func (c *Client) processDataset() error {
	c.state = StateHeartbeat

	msg := c.takePending()
	if msg == nil {
		c.log.Error().Msg("no buffered message, returning to heartbeat")
		return nil
	}

	var ds protocol.Dataset
	if err := msg.Decode(protocol.VariantDataset, &ds); err != nil {
		c.log.Warn().Err(err).Msg("invalid dataset message")
		return nil
	}
	if err := ds.Validate(); err != nil {
		c.log.Warn().Err(err).Msg("invalid dataset message")
		return nil
	}
	c.log.Info().Msg("processing job")

	train, err := dataset.DecodeTable(ds.Train)
	if err != nil {
		return fmt.Errorf("client: decode train table: %w", err)
	}
	predict, err := dataset.DecodeTable(ds.Predict)
	if err != nil {
		return fmt.Errorf("client: decode predict table: %w", err)
	}

	train, predict, recordIDs, err := dataset.Prepare(train, predict)
	if err != nil {
		if c.cfg.DeclineBadDatasets {
			c.log.Error().Err(err).Msg("declining malformed dataset")
			return nil
		}
		return fmt.Errorf("client: %w", err)
	}

	predictions, err := c.callback(train, predict, c.accepted)
	if err != nil {
		return fmt.Errorf("client: work callback: %w", err)
	}

	tagged, err := dataset.AttachRecordIDs(predictions, recordIDs)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	encoded, err := dataset.EncodeTable(tagged)
	if err != nil {
		return fmt.Errorf("client: encode predictions: %w", err)
	}

	reply, err := protocol.Encode(protocol.VariantPredictions, encoded)
	if err != nil {
		return err
	}
	if err := c.tr.Send(reply); err != nil {
		return fmt.Errorf("client: send Predictions: %w", err)
	}
	observability.RecordPredictions()
	c.log.Info().Int("rows", tagged.NumRows()).Msg("predictions sent")
	return nil
}

// takePending empties the single-slot buffer.
func (c *Client) takePending() *protocol.Message {
	msg := c.pending
	c.pending = nil
	return msg
}

func isParseError(err error) bool {
	return errors.Is(err, protocol.ErrMalformed) ||
		errors.Is(err, protocol.ErrNoVariant) ||
		errors.Is(err, protocol.ErrMultiVariant)
}
