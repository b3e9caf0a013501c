package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sybl-ml/sybl-go/internal/credstore"
	"github.com/sybl-ml/sybl-go/internal/dataset"
	"github.com/sybl-ml/sybl-go/internal/policy"
	"github.com/sybl-ml/sybl-go/internal/protocol"
	"github.com/sybl-ml/sybl-go/internal/protocol/wire"
	"github.com/sybl-ml/sybl-go/internal/testutil/testlog"
)

const (
	testEmail = "user@example.com"
	testModel = "forecaster"
)

func seededStore(t *testing.T) *credstore.Store {
	t.Helper()
	store := credstore.NewStore(filepath.Join(t.TempDir(), "sybl.json"))
	err := store.Save(testEmail, testModel, credstore.Credential{ModelID: "id-1", AccessToken: "tok-1"})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func constantCallback(value string) Callback {
	return func(train, predict dataset.Table, offer *protocol.JobOffer) (dataset.Table, error) {
		rows := make([][]string, predict.NumRows())
		for i := range rows {
			rows[i] = []string{value}
		}
		return dataset.Table{Columns: []string{"prediction"}, Rows: rows}, nil
	}
}

func TestRunRequiresCallback(t *testing.T) {
	testlog.Start(t)
	c := New(Config{Address: "127.0.0.1:1"})
	if err := c.Run(context.Background()); !errors.Is(err, ErrCallbackRequired) {
		t.Fatalf("expected ErrCallbackRequired, got %v", err)
	}
}

func TestRunRequiresCredential(t *testing.T) {
	testlog.Start(t)
	c := New(Config{Address: "127.0.0.1:1"})
	if err := c.RegisterCallback(constantCallback("0")); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	if err := c.Run(context.Background()); !errors.Is(err, ErrCredentialRequired) {
		t.Fatalf("expected ErrCredentialRequired, got %v", err)
	}
}

func TestRegisterCallbackRejectsNil(t *testing.T) {
	c := New(Config{})
	if err := c.RegisterCallback(nil); !errors.Is(err, ErrCallbackRequired) {
		t.Fatalf("expected ErrCallbackRequired, got %v", err)
	}
}

// pipeClient wires a client to one end of an in-memory duplex for
// exercising single state handlers.
func pipeClient(t *testing.T) (*Client, *wire.Transport, func()) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	c := New(Config{})
	c.tr = wire.NewTransport(clientSide)
	cleanup := func() {
		_ = clientSide.Close()
		_ = serverSide.Close()
	}
	return c, wire.NewTransport(serverSide), cleanup
}

func TestHeartbeatEchoesAlive(t *testing.T) {
	testlog.Start(t)
	c, server, cleanup := pipeClient(t)
	defer cleanup()
	c.state = StateHeartbeat

	echoed := make(chan []byte, 1)
	go func() {
		_ = server.Send([]byte(`{"Alive":"x"}`))
		raw, _ := server.Receive()
		echoed <- raw
	}()

	if err := c.heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if c.state != StateHeartbeat {
		t.Fatalf("state after Alive: got %v want heartbeat", c.state)
	}
	select {
	case raw := <-echoed:
		if string(raw) != `{"Alive":"x"}` {
			t.Fatalf("echo mismatch: %q", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no echo received")
	}
}

func TestHeartbeatBuffersJobConfig(t *testing.T) {
	testlog.Start(t)
	c, server, cleanup := pipeClient(t)
	defer cleanup()
	c.state = StateHeartbeat

	go func() {
		_ = server.Send([]byte(`{"JobConfig":{"message_creation_timestamp":0,"prediction_cutoff_timestamp":300,"prediction_type":"regression"}}`))
	}()

	if err := c.heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if c.state != StateReadJob {
		t.Fatalf("state: got %v want read_job", c.state)
	}
	if c.pending == nil || c.pending.Variant != protocol.VariantJobConfig {
		t.Fatalf("job config not buffered: %+v", c.pending)
	}
}

func TestHeartbeatBuffersDataset(t *testing.T) {
	testlog.Start(t)
	c, server, cleanup := pipeClient(t)
	defer cleanup()
	c.state = StateHeartbeat

	go func() {
		_ = server.Send([]byte(`{"Dataset":{"train":"a","predict":"b"}}`))
	}()

	if err := c.heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if c.state != StateProcessing {
		t.Fatalf("state: got %v want processing", c.state)
	}
	if c.pending == nil || c.pending.Variant != protocol.VariantDataset {
		t.Fatalf("dataset not buffered: %+v", c.pending)
	}
}

func TestHeartbeatDropsUnparseableMessage(t *testing.T) {
	testlog.Start(t)
	c, server, cleanup := pipeClient(t)
	defer cleanup()
	c.state = StateHeartbeat

	go func() {
		_ = server.Send([]byte(`{"Alive":"x","JobConfig":{}}`))
	}()

	if err := c.heartbeat(); err != nil {
		t.Fatalf("multi-variant message should be dropped, got %v", err)
	}
	if c.state != StateHeartbeat {
		t.Fatalf("state: got %v want heartbeat", c.state)
	}
}

func TestReadJobEmptySlotRecovers(t *testing.T) {
	testlog.Start(t)
	c := New(Config{})
	c.state = StateReadJob

	if err := c.readJob(); err != nil {
		t.Fatalf("empty slot should recover, got %v", err)
	}
	if c.state != StateHeartbeat {
		t.Fatalf("state: got %v want heartbeat", c.state)
	}
}

func TestReadJobShapeMismatchRecovers(t *testing.T) {
	testlog.Start(t)
	c := New(Config{})
	c.state = StateReadJob
	msg, err := protocol.Parse([]byte(`{"Dataset":{"train":"a","predict":"b"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c.pending = &msg

	if err := c.readJob(); err != nil {
		t.Fatalf("shape mismatch should recover, got %v", err)
	}
	if c.state != StateHeartbeat {
		t.Fatalf("state: got %v want heartbeat", c.state)
	}
	if c.accepted != nil {
		t.Fatalf("no offer should be remembered")
	}
}

func TestProcessingEmptySlotRecovers(t *testing.T) {
	testlog.Start(t)
	c := New(Config{})
	c.state = StateProcessing

	if err := c.processDataset(); err != nil {
		t.Fatalf("empty slot should recover, got %v", err)
	}
	if c.state != StateHeartbeat {
		t.Fatalf("state: got %v want heartbeat", c.state)
	}
}

// scriptedServer runs a canned conversation: authenticate, one Alive
// round trip, one JobConfig negotiation, one Dataset exchange, then
// close.
func scriptedServer(ln net.Listener, failures chan<- error) {
	defer close(failures)
	conn, err := ln.Accept()
	if err != nil {
		failures <- fmt.Errorf("accept: %w", err)
		return
	}
	defer conn.Close()
	tr := wire.NewTransport(conn)

	fail := func(format string, args ...any) {
		failures <- fmt.Errorf(format, args...)
	}

	// Session authentication.
	raw, err := tr.Receive()
	if err != nil {
		fail("receive access token: %v", err)
		return
	}
	msg, err := protocol.Parse(raw)
	if err != nil {
		fail("parse access token: %v", err)
		return
	}
	var tok protocol.AccessToken
	if err := msg.Decode(protocol.VariantAccessToken, &tok); err != nil {
		fail("decode access token: %v", err)
		return
	}
	if tok.ID != "id-1" || tok.Token != "tok-1" {
		fail("credential mismatch: %+v", tok)
		return
	}
	reply, _ := json.Marshal(protocol.StatusReply{Message: "Authentication successful"})
	if err := tr.Send(reply); err != nil {
		fail("send auth reply: %v", err)
		return
	}

	// Liveness round trip.
	if err := tr.Send([]byte(`{"Alive":"ping"}`)); err != nil {
		fail("send alive: %v", err)
		return
	}
	echo, err := tr.Receive()
	if err != nil {
		fail("receive echo: %v", err)
		return
	}
	if string(echo) != `{"Alive":"ping"}` {
		fail("echo mismatch: %q", echo)
		return
	}

	// Job negotiation.
	offer := []byte(`{"JobConfig":{"message_creation_timestamp":0,"prediction_cutoff_timestamp":300,"prediction_type":"regression"}}`)
	if err := tr.Send(offer); err != nil {
		fail("send job config: %v", err)
		return
	}
	raw, err = tr.Receive()
	if err != nil {
		fail("receive config response: %v", err)
		return
	}
	msg, err = protocol.Parse(raw)
	if err != nil {
		fail("parse config response: %v", err)
		return
	}
	var cr protocol.ConfigResponse
	if err := msg.Decode(protocol.VariantConfigResponse, &cr); err != nil {
		fail("decode config response: %v", err)
		return
	}
	if !cr.Accept {
		fail("offer should have been accepted")
		return
	}

	// Dataset exchange.
	train := dataset.Table{
		Columns: []string{"record_id", "feature", "label"},
		Rows:    [][]string{{"1", "0.5", "10"}, {"2", "0.7", "12"}},
	}
	predict := dataset.Table{
		Columns: []string{"record_id", "feature"},
		Rows:    [][]string{{"7", "0.2"}, {"8", "0.9"}},
	}
	trainEnc, err := dataset.EncodeTable(train)
	if err != nil {
		fail("encode train: %v", err)
		return
	}
	predictEnc, err := dataset.EncodeTable(predict)
	if err != nil {
		fail("encode predict: %v", err)
		return
	}
	dsMsg, err := protocol.Encode(protocol.VariantDataset, protocol.Dataset{Train: trainEnc, Predict: predictEnc})
	if err != nil {
		fail("encode dataset: %v", err)
		return
	}
	if err := tr.Send(dsMsg); err != nil {
		fail("send dataset: %v", err)
		return
	}

	raw, err = tr.Receive()
	if err != nil {
		fail("receive predictions: %v", err)
		return
	}
	msg, err = protocol.Parse(raw)
	if err != nil {
		fail("parse predictions: %v", err)
		return
	}
	var encoded string
	if err := msg.Decode(protocol.VariantPredictions, &encoded); err != nil {
		fail("decode predictions: %v", err)
		return
	}
	table, err := dataset.DecodeTable(encoded)
	if err != nil {
		fail("decode prediction table: %v", err)
		return
	}
	if table.Columns[0] != dataset.RecordIDColumn {
		fail("record_id not first column: %v", table.Columns)
		return
	}
	if table.NumRows() != 2 || table.Rows[0][0] != "7" || table.Rows[1][0] != "8" {
		fail("prediction ids mismatch: %v", table.Rows)
		return
	}
	if table.Rows[0][1] != "42" {
		fail("prediction value mismatch: %v", table.Rows)
		return
	}
}

func TestSessionEndToEnd(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	failures := make(chan error, 8)
	go scriptedServer(ln, failures)

	c := New(Config{Address: ln.Addr().String()})
	if err := c.RegisterCallback(constantCallback("42")); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	c.UsePolicy(policy.New([]string{"regression"}, 10))
	if err := c.LoadCredential(seededStore(t), testEmail, testModel); err != nil {
		t.Fatalf("load credential: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The server closes the connection after the exchange, which is
	// fatal to the session loop by design.
	if err := c.Run(ctx); err == nil {
		t.Fatalf("expected connection-loss error after script completion")
	}
	for err := range failures {
		t.Errorf("server: %v", err)
	}
	if c.accepted == nil || *c.accepted.PredictionType != "regression" {
		t.Fatalf("accepted offer not remembered: %+v", c.accepted)
	}
}

func TestAuthenticationRejectionIsFatal(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tr := wire.NewTransport(conn)
		if _, err := tr.Receive(); err != nil {
			return
		}
		_ = tr.Send([]byte(`{"message":"Authentication failed"}`))
	}()

	c := New(Config{Address: ln.Addr().String()})
	if err := c.RegisterCallback(constantCallback("0")); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	if err := c.LoadCredential(seededStore(t), testEmail, testModel); err != nil {
		t.Fatalf("load credential: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Run(ctx); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestServerLockedEnvelopeIsFatal(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tr := wire.NewTransport(conn)
		if _, err := tr.Receive(); err != nil {
			return
		}
		_ = tr.Send([]byte(`{"message":"Authentication successful"}`))
		_ = tr.Send([]byte(`{"Server":{"code":"unauthorized","text":"{\"message\":\"Locked\"}"}}`))
		// Hold the connection open so the client's error is the
		// envelope, not a read failure.
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
	}()

	c := New(Config{Address: ln.Addr().String()})
	if err := c.RegisterCallback(constantCallback("0")); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	if err := c.LoadCredential(seededStore(t), testEmail, testModel); err != nil {
		t.Fatalf("load credential: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.Run(ctx)
	var srvErr *protocol.ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if srvErr.Code != "unauthorized" {
		t.Fatalf("server error code: got %q", srvErr.Code)
	}
}

func datasetWithoutRecordIDs(t *testing.T) []byte {
	t.Helper()
	train := dataset.Table{Columns: []string{"feature", "label"}, Rows: [][]string{{"0.5", "10"}}}
	predict := dataset.Table{Columns: []string{"feature"}, Rows: [][]string{{"0.2"}}}
	trainEnc, err := dataset.EncodeTable(train)
	if err != nil {
		t.Fatalf("encode train: %v", err)
	}
	predictEnc, err := dataset.EncodeTable(predict)
	if err != nil {
		t.Fatalf("encode predict: %v", err)
	}
	msg, err := protocol.Encode(protocol.VariantDataset, protocol.Dataset{Train: trainEnc, Predict: predictEnc})
	if err != nil {
		t.Fatalf("encode dataset: %v", err)
	}
	return msg
}

func TestStrictDatasetMissingRecordIDIsFatal(t *testing.T) {
	testlog.Start(t)
	c, server, cleanup := pipeClient(t)
	defer cleanup()

	raw := datasetWithoutRecordIDs(t)
	msg, err := protocol.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c.pending = &msg
	c.state = StateProcessing
	if err := c.RegisterCallback(constantCallback("0")); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	_ = server

	if err := c.processDataset(); !errors.Is(err, dataset.ErrMissingRecordID) {
		t.Fatalf("expected ErrMissingRecordID, got %v", err)
	}
}

func TestLenientDatasetMissingRecordIDSkipsJob(t *testing.T) {
	testlog.Start(t)
	c, server, cleanup := pipeClient(t)
	defer cleanup()
	c.cfg.DeclineBadDatasets = true

	raw := datasetWithoutRecordIDs(t)
	msg, err := protocol.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c.pending = &msg
	c.state = StateProcessing
	if err := c.RegisterCallback(constantCallback("0")); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	_ = server

	if err := c.processDataset(); err != nil {
		t.Fatalf("lenient mode should skip the job, got %v", err)
	}
	if c.state != StateHeartbeat {
		t.Fatalf("state: got %v want heartbeat", c.state)
	}
}
