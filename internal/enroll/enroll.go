// Package enroll implements the one-shot enrollment handshake.
//
// The client opens a connection, announces a new model, answers signing
// challenges until the server is satisfied, and persists the issued
// credential. It runs once per model and shares no state with the
// session client.
package enroll

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sybl-ml/sybl-go/internal/auth"
	"github.com/sybl-ml/sybl-go/internal/credstore"
	"github.com/sybl-ml/sybl-go/internal/logging"
	"github.com/sybl-ml/sybl-go/internal/protocol"
	"github.com/sybl-ml/sybl-go/internal/protocol/wire"
)

var (
	ErrAddressRequired  = errors.New("enroll: address required")
	ErrIdentityRequired = errors.New("enroll: email and model name required")
	ErrSignerRequired   = errors.New("enroll: signer required")
	ErrStoreRequired    = errors.New("enroll: credential store required")
)

// Config holds enrollment identity and endpoint settings.
type Config struct {
	Address        string
	Email          string
	Password       string
	ModelName      string
	ConnectTimeout time.Duration
}

func (c Config) WithDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

// Enroller drives the handshake for one identity.
type Enroller struct {
	cfg    Config
	signer auth.Signer
	store  *credstore.Store
	log    zerolog.Logger
}

func New(cfg Config, signer auth.Signer, store *credstore.Store) (*Enroller, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if strings.TrimSpace(cfg.Email) == "" || strings.TrimSpace(cfg.ModelName) == "" {
		return nil, ErrIdentityRequired
	}
	if signer == nil {
		return nil, ErrSignerRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	return &Enroller{
		cfg:    cfg.WithDefaults(),
		signer: signer,
		store:  store,
		log:    logging.New("enroll"),
	}, nil
}

// Run performs the handshake and returns the issued credential after it
// has been persisted. Connection refusal is fatal and not retried.
func (e *Enroller) Run(ctx context.Context) (credstore.Credential, error) {
	dialer := net.Dialer{Timeout: e.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.cfg.Address)
	if err != nil {
		return credstore.Credential{}, fmt.Errorf("enroll: connect %s: %w", e.cfg.Address, err)
	}
	defer conn.Close()
	e.log.Info().Str("addr", e.cfg.Address).Msg("connected")

	tr := wire.NewTransport(conn)
	opener, err := protocol.Encode(protocol.VariantNewModel, protocol.NewModel{
		Email:     e.cfg.Email,
		Password:  e.cfg.Password,
		ModelName: e.cfg.ModelName,
	})
	if err != nil {
		return credstore.Credential{}, err
	}
	if err := tr.Send(opener); err != nil {
		return credstore.Credential{}, fmt.Errorf("enroll: send NewModel: %w", err)
	}

	for {
		raw, err := tr.Receive()
		if err != nil {
			return credstore.Credential{}, fmt.Errorf("enroll: receive: %w", err)
		}
		msg, err := protocol.Parse(raw)
		if err != nil {
			// Enrollment aborts on structural anomalies it cannot
			// classify.
			return credstore.Credential{}, fmt.Errorf("enroll: %w", err)
		}

		switch msg.Variant {
		case protocol.VariantChallenge:
			if err := e.answerChallenge(tr, msg); err != nil {
				return credstore.Credential{}, err
			}
		case protocol.VariantAccessToken:
			return e.recordAccess(msg)
		case protocol.VariantServer:
			var env protocol.ServerEnvelope
			if err := msg.Decode(protocol.VariantServer, &env); err != nil {
				return credstore.Credential{}, fmt.Errorf("enroll: %w", err)
			}
			if err := env.Err(); err != nil {
				return credstore.Credential{}, fmt.Errorf("enroll: %w", err)
			}
			e.log.Warn().Str("code", env.CodeString()).Msg("server report")
		default:
			e.log.Warn().Str("variant", msg.Variant).Msg("unknown message variant")
		}
	}
}

func (e *Enroller) answerChallenge(tr *wire.Transport, msg protocol.Message) error {
	var ch protocol.Challenge
	if err := msg.Decode(protocol.VariantChallenge, &ch); err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("enroll: %w", err)
	}

	challenge, err := base64.StdEncoding.DecodeString(ch.Challenge)
	if err != nil {
		return fmt.Errorf("enroll: decode challenge: %w", err)
	}
	signature, err := e.signer.Sign(challenge)
	if err != nil {
		return fmt.Errorf("enroll: sign challenge: %w", err)
	}

	e.log.Info().Msg("authenticating challenge")
	reply, err := protocol.Encode(protocol.VariantChallengeResponse, protocol.ChallengeResponse{
		Email:     e.cfg.Email,
		ModelName: e.cfg.ModelName,
		Response:  base64.StdEncoding.EncodeToString(signature),
	})
	if err != nil {
		return err
	}
	if err := tr.Send(reply); err != nil {
		return fmt.Errorf("enroll: send ChallengeResponse: %w", err)
	}
	return nil
}

func (e *Enroller) recordAccess(msg protocol.Message) (credstore.Credential, error) {
	var tok protocol.AccessToken
	if err := msg.Decode(protocol.VariantAccessToken, &tok); err != nil {
		return credstore.Credential{}, fmt.Errorf("enroll: %w", err)
	}
	if err := tok.Validate(); err != nil {
		return credstore.Credential{}, fmt.Errorf("enroll: %w", err)
	}

	cred := credstore.Credential{ModelID: tok.ID, AccessToken: tok.Token}
	if err := e.store.Save(e.cfg.Email, e.cfg.ModelName, cred); err != nil {
		return credstore.Credential{}, err
	}
	e.log.Info().Str("model_id", cred.ModelID).Msg("model enrolled")
	return cred, nil
}
