package chargepoint

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/config"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/kvstore"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/session"
)

// fakeConn is a hand-rolled fake at the wsConn collaborator boundary,
// following the pack's practice of mocking interfaces rather than
// concrete types (chrisn-au's correlation tests fake the transport).
type fakeConn struct {
	toEngine   chan []byte
	fromEngine chan []byte
	closed     chan struct{}
	closeOnce  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toEngine:   make(chan []byte, 16),
		fromEngine: make(chan []byte, 16),
		closed:     make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-f.toEngine:
		if !ok {
			return 0, nil, &closeErr{code: CloseNormal}
		}
		return 1, data, nil
	case <-f.closed:
		return 0, nil, &closeErr{code: CloseNormal}
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case f.fromEngine <- data:
	default:
	}
	return nil
}

func (f *fakeConn) Close() error {
	if !f.closeOnce {
		f.closeOnce = true
		close(f.closed)
	}
	return nil
}

func (f *fakeConn) Subprotocol() string { return "ocpp1.6" }

// closeErr stands in for a socket close. It is not *websocket.CloseError,
// so receiveLoop's type assertion misses and every fake close is treated as
// CloseNoStatusReceived (an error close), whether it comes from toEngine
// being closed or from fakeConn.closed.
type closeErr struct{ code int }

func (e *closeErr) Error() string { return "fake close" }

type fakeDialer struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) Dial(urlStr string, requestHeader http.Header) (wsConn, *http.Response, error) {
	if d.err != nil {
		return nil, nil, d.err
	}
	return d.conn, &http.Response{Header: http.Header{}}, nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeConn) {
	t.Helper()
	cfg := &config.Config{
		CpId:                    "CP01",
		WsUrl:                   "ws://test/",
		Subprotocols:            []string{"ocpp1.6"},
		RemoteStartDelaySeconds: 0,
		RemoteStartStopResponse: "Accepted",
	}
	e := New(cfg, zerolog.Nop(), kvstore.NewMemStore(), kvstore.NewMemStore(), nil)
	conn := newFakeConn()
	e.dialer = &fakeDialer{conn: conn}
	return e, conn
}

// awaitCall reads the next frame the engine wrote and decodes it as a CALL.
func awaitCall(t *testing.T, conn *fakeConn) *ocpp.Call {
	t.Helper()
	select {
	case data := <-conn.fromEngine:
		decoded, err := ocpp.Decode(data)
		require.NoError(t, err)
		require.NotNil(t, decoded.Call, "expected a CALL frame, got %s", string(data))
		return decoded.Call
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound CALL")
		return nil
	}
}

func replyAccepted(t *testing.T, conn *fakeConn, uniqueID string, payload interface{}) {
	t.Helper()
	data, err := ocpp.EncodeCallResult(uniqueID, payload)
	require.NoError(t, err)
	conn.toEngine <- data
}

func TestColdConnect(t *testing.T) {
	e, conn := newTestEngine(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		call := awaitCall(t, conn)
		assert.Equal(t, ocpp.ActionBootNotification, call.Action)

		var req ocpp.BootNotificationRequest
		require.NoError(t, ocpp.DecodePayload(call.Payload, &req))
		assert.NotEmpty(t, req.ChargePointVendor)

		replyAccepted(t, conn, call.UniqueID, ocpp.BootNotificationResponse{
			Status:      ocpp.RegistrationAccepted,
			Interval:    300,
			CurrentTime: "2026-07-30T00:00:00Z",
		})
	}()

	require.NoError(t, e.Connect())
	<-done

	// The BootNotification result is applied inside Connect, so both
	// conditions already hold when it returns.
	require.Eventually(t, func() bool {
		return e.Status() == session.Connected
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return e.hb.Running()
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 300*time.Second, e.hb.Interval())
}

func TestHappyTransaction(t *testing.T) {
	e, conn := newTestEngine(t)

	go func() {
		call := awaitCall(t, conn)
		replyAccepted(t, conn, call.UniqueID, ocpp.BootNotificationResponse{Status: ocpp.RegistrationAccepted, Interval: 300})
	}()
	require.NoError(t, e.Connect())
	require.Eventually(t, func() bool { return e.Status() == session.Connected }, time.Second, 10*time.Millisecond)

	authDone := make(chan struct{})
	go func() {
		defer close(authDone)
		call := awaitCall(t, conn)
		assert.Equal(t, ocpp.ActionAuthorize, call.Action)
		var req ocpp.AuthorizeRequest
		require.NoError(t, ocpp.DecodePayload(call.Payload, &req))
		assert.Equal(t, "DEADBEEF", req.IdTag)
		replyAccepted(t, conn, call.UniqueID, ocpp.AuthorizeResponse{IdTagInfo: ocpp.IdTagInfo{Status: "Accepted"}})
	}()
	require.NoError(t, e.Authorize("DEADBEEF"))
	<-authDone
	assert.Equal(t, session.Authorized, e.Status())

	// StartTransaction fires both StartTransaction and StatusNotification;
	// order between the two isn't constrained by spec.md, so collect both.
	startDone := make(chan struct{})
	go func() {
		defer close(startDone)
		seenStart, seenStatus := false, false
		for i := 0; i < 2; i++ {
			call := awaitCall(t, conn)
			switch call.Action {
			case ocpp.ActionStartTransaction:
				seenStart = true
				var req ocpp.StartTransactionRequest
				require.NoError(t, ocpp.DecodePayload(call.Payload, &req))
				assert.Equal(t, 1, req.ConnectorId)
				assert.Equal(t, "DEADBEEF", req.IdTag)
				replyAccepted(t, conn, call.UniqueID, ocpp.StartTransactionResponse{TransactionId: 42, IdTagInfo: ocpp.IdTagInfo{Status: "Accepted"}})
			case ocpp.ActionStatusNotification:
				seenStatus = true
				var req ocpp.StatusNotificationRequest
				require.NoError(t, ocpp.DecodePayload(call.Payload, &req))
				assert.Equal(t, ocpp.StatusCharging, req.Status)
				replyAccepted(t, conn, call.UniqueID, ocpp.StatusNotificationResponse{})
			}
		}
		assert.True(t, seenStart)
		assert.True(t, seenStatus)
	}()
	require.NoError(t, e.StartTransaction("DEADBEEF", 1, 0))
	<-startDone
	assert.Equal(t, session.InTransaction, e.Status())
	e.StopMeterValuesLoop()

	require.NoError(t, e.SetMeterValue(5000, false))

	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		call := awaitCall(t, conn)
		assert.Equal(t, ocpp.ActionStopTransaction, call.Action)
		var req ocpp.StopTransactionRequest
		require.NoError(t, ocpp.DecodePayload(call.Payload, &req))
		assert.Equal(t, 42, req.TransactionId)
		assert.Equal(t, 5000, req.MeterStop)
		require.Len(t, req.TransactionData, 2)
		assert.Equal(t, "0", req.TransactionData[0].SampledValue[0].Value)
		assert.Equal(t, "5000", req.TransactionData[1].SampledValue[0].Value)
		replyAccepted(t, conn, call.UniqueID, ocpp.StopTransactionResponse{})

		// The StopTransaction CALLRESULT puts connector 1 back to Available
		// and reports it with a StatusNotification.
		call = awaitCall(t, conn)
		assert.Equal(t, ocpp.ActionStatusNotification, call.Action)
		var sn ocpp.StatusNotificationRequest
		require.NoError(t, ocpp.DecodePayload(call.Payload, &sn))
		assert.Equal(t, ocpp.StatusAvailable, sn.Status)
		replyAccepted(t, conn, call.UniqueID, ocpp.StatusNotificationResponse{})
	}()
	require.NoError(t, e.StopTransaction("DEADBEEF", ""))
	<-stopDone
	assert.Equal(t, session.Authorized, e.Status())
	assert.Equal(t, "Available", e.ConnectorStatus(1))
}

func TestRemoteStartTransaction_RepliesThenStarts(t *testing.T) {
	e, conn := newTestEngine(t)
	e.cfg.RemoteStartDelaySeconds = 0

	go func() {
		call := awaitCall(t, conn)
		replyAccepted(t, conn, call.UniqueID, ocpp.BootNotificationResponse{Status: ocpp.RegistrationAccepted, Interval: 300})
	}()
	require.NoError(t, e.Connect())
	require.Eventually(t, func() bool { return e.Status() == session.Connected }, time.Second, 10*time.Millisecond)

	remoteStartID := "rs-1"
	data, err := ocpp.EncodeCall(remoteStartID, ocpp.ActionRemoteStartTransaction, ocpp.RemoteStartTransactionRequest{IdTag: "DEADBEEF", ConnectorId: 1})
	require.NoError(t, err)
	conn.toEngine <- data

	// First frame back must be the RemoteStartTransaction CALLRESULT.
	select {
	case raw := <-conn.fromEngine:
		var arr []json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &arr))
		var id string
		require.NoError(t, json.Unmarshal(arr[1], &id))
		assert.Equal(t, remoteStartID, id)
	case <-time.After(time.Second):
		t.Fatal("no reply to RemoteStartTransaction")
	}

	// Then the engine originates StartTransaction on its own — alongside
	// the StatusNotification(Charging) that setting the connector status
	// also triggers, in either order.
	seenStart := false
	for i := 0; i < 2; i++ {
		call := awaitCall(t, conn)
		if call.Action == ocpp.ActionStartTransaction {
			seenStart = true
		}
		replyAccepted(t, conn, call.UniqueID, struct{}{})
	}
	assert.True(t, seenStart)
}

func TestDoubleConnect_ClosesOldSocket(t *testing.T) {
	e, conn1 := newTestEngine(t)

	go func() {
		call := awaitCall(t, conn1)
		replyAccepted(t, conn1, call.UniqueID, ocpp.BootNotificationResponse{Status: ocpp.RegistrationAccepted, Interval: 300})
	}()
	require.NoError(t, e.Connect())
	require.Eventually(t, func() bool { return e.Status() == session.Connected }, time.Second, 10*time.Millisecond)

	conn2 := newFakeConn()
	e.dialer = &fakeDialer{conn: conn2}

	go func() {
		call := awaitCall(t, conn2)
		replyAccepted(t, conn2, call.UniqueID, ocpp.BootNotificationResponse{Status: ocpp.RegistrationAccepted, Interval: 300})
	}()
	require.NoError(t, e.Connect())

	require.Eventually(t, func() bool {
		select {
		case <-conn1.closed:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "first socket must be closed on double connect")
}

func TestSendOnNilSocket(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.Heartbeat()
	require.Error(t, err)
	assert.Equal(t, session.Error, e.Status())
}

func TestChangeAvailability_CascadesFromConnectorZero(t *testing.T) {
	e, conn := newTestEngine(t)

	go func() {
		call := awaitCall(t, conn)
		replyAccepted(t, conn, call.UniqueID, ocpp.BootNotificationResponse{Status: ocpp.RegistrationAccepted, Interval: 300})
	}()
	require.NoError(t, e.Connect())
	require.Eventually(t, func() bool { return e.Status() == session.Connected }, time.Second, 10*time.Millisecond)

	changeID := "ca-1"
	data, err := ocpp.EncodeCall(changeID, ocpp.ActionChangeAvailability, ocpp.ChangeAvailabilityRequest{ConnectorId: 0, Type: ocpp.AvailabilityInoperative})
	require.NoError(t, err)

	conn.toEngine <- data

	// First response back (non-CALL) acknowledges ChangeAvailability. It is
	// read before the goroutine below starts, so the two don't compete for it.
	select {
	case <-conn.fromEngine:
	case <-time.After(time.Second):
		t.Fatal("no reply to ChangeAvailability")
	}

	statusCount := 0
	go func() {
		for i := 0; i < 3; i++ {
			call := awaitCall(t, conn)
			if call.Action == ocpp.ActionStatusNotification {
				statusCount++
			}
			replyAccepted(t, conn, call.UniqueID, struct{}{})
		}
	}()

	require.Eventually(t, func() bool {
		return e.ConnectorAvailability(0) == "Inoperative" &&
			e.ConnectorAvailability(1) == "Inoperative" &&
			e.ConnectorAvailability(2) == "Inoperative"
	}, time.Second, 10*time.Millisecond)
}
