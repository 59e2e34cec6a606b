// Package chargepoint implements the OCPP 1.6 charge-point engine: the
// single WebSocket connection, the outbound operations the charge point
// originates, and the inbound operations it must answer. It is the
// adaptation of the teacher's charger package (C7/C8 in spec.md's
// component table) to spec.md's full session/connector/pending-call model.
package chargepoint

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/config"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/connector"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/heartbeat"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/kvstore"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/observer"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/ocpp"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/pending"
	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/session"
)

// wsConn is the slice of *websocket.Conn the engine actually uses, so
// tests can drive the engine against a fake instead of a real socket —
// the same collaborator-boundary-interface idiom the pack mocks at
// (chrisn-au's correlation tests fake the transport, not the manager).
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// dialer abstracts websocket.Dialer.Dial so tests can substitute a fake
// connection without a real network round trip.
type dialer interface {
	Dial(urlStr string, requestHeader http.Header) (wsConn, *http.Response, error)
}

type gorillaDialer struct {
	d *websocket.Dialer
}

func (g gorillaDialer) Dial(urlStr string, requestHeader http.Header) (wsConn, *http.Response, error) {
	conn, resp, err := g.d.Dial(urlStr, requestHeader)
	if conn == nil {
		return nil, resp, err
	}
	return conn, resp, err
}

// CloseNormal is the WebSocket close code the engine uses for a clean
// disconnect, per spec.md §4.8.
const CloseNormal = 3001

// Engine is a single simulated charge point: one WebSocket connection at a
// time, the session state machine, the connector model, the pending-call
// table, and the heartbeat scheduler.
type Engine struct {
	cfg    *config.Config
	log    zerolog.Logger
	obs    observer.Observer
	dialer dialer

	sess    *session.Machine
	conns   *connector.Model
	pend    *pending.Table
	hb      *heartbeat.Scheduler
	durable kvstore.Store
	sessKV  kvstore.Store

	mu   sync.Mutex
	conn wsConn
	subp string

	meter meterLoop
}

// New builds an Engine. durable and sessKV back the two KV namespaces;
// obs may be nil (defaults to a no-op).
func New(cfg *config.Config, log zerolog.Logger, durable, sessKV kvstore.Store, obs observer.Observer) *Engine {
	if obs == nil {
		obs = observer.NoopObserver{}
	}
	obs = logPrefixObserver{obs}

	e := &Engine{
		cfg:     cfg,
		log:     log,
		obs:     obs,
		durable: durable,
		sessKV:  sessKV,
	}
	e.sess = session.New(obs)
	e.conns = connector.New(durable, sessKV, obs)
	e.pend = pending.New()
	e.hb = heartbeat.New(e.sendHeartbeatTick)

	tlsConfig, _ := cfg.GetTLSConfig()
	e.dialer = gorillaDialer{d: &websocket.Dialer{
		Subprotocols:    cfg.Subprotocols,
		TLSClientConfig: tlsConfig,
	}}
	return e
}

// logPrefixObserver prefixes every OnLog line with "[OCPP] "; the other
// callbacks pass through unchanged.
type logPrefixObserver struct {
	observer.Observer
}

func (p logPrefixObserver) OnLog(line string) {
	p.Observer.OnLog("[OCPP] " + line)
}

// Status returns the current session status.
func (e *Engine) Status() session.Status {
	return e.sess.Status()
}

// Connect dials the configured server and negotiates an OCPP subprotocol.
// A second Connect while one socket is already open closes the old socket
// with CloseNormal and emits an ERROR, per spec.md §4.8, then proceeds
// with the new dial.
func (e *Engine) Connect() error {
	e.mu.Lock()
	if e.conn != nil {
		old := e.conn
		e.conn = nil
		e.mu.Unlock()

		closeOldSocket(old)
		e.sess.Fail("double connect: closed previous socket")
		e.obs.OnLog("double connect: closed previous socket")
	} else {
		e.mu.Unlock()
	}

	// SessionState is created on WebSocket open and discarded on close, per
	// spec.md §3/§4.1 — clear any leftover values from a prior connection
	// before this one starts writing to the same namespace.
	clearSessionStore(e.sessKV)

	e.sess.Transition(session.Connecting, "")

	conn, resp, err := e.dialer.Dial(e.cfg.WsUrl, nil)
	if err != nil {
		e.sess.Fail("connection cannot be opened")
		return ocpp.NewError(ocpp.KindTransportError, "chargepoint.Connect", err)
	}

	subprotocol := ""
	if resp != nil {
		subprotocol = resp.Header.Get("Sec-WebSocket-Protocol")
	}
	if sp, ok := conn.(interface{ Subprotocol() string }); ok {
		subprotocol = sp.Subprotocol()
	}
	if subprotocol == "" {
		conn.Close()
		e.sess.Fail("websocket error")
		return ocpp.NewError(ocpp.KindTransportError, "chargepoint.Connect", fmt.Errorf("server selected no OCPP subprotocol"))
	}

	e.mu.Lock()
	e.conn = conn
	e.subp = subprotocol
	e.mu.Unlock()
	e.durable.Put(kvstore.KeyNegotiatedSubp, subprotocol)
	e.durable.Put(kvstore.KeyWSURL, e.cfg.WsUrl)
	e.durable.Put(kvstore.KeyCPID, e.cfg.CpId)

	go e.receiveLoop(conn)

	if err := e.BootNotification(); err != nil {
		e.obs.OnLog(fmt.Sprintf("BootNotification failed: %v", err))
	}

	return nil
}

// Disconnect cleanly closes the socket (close code CloseNormal), cancels
// the heartbeat timer, drops all pending calls, and forces DISCONNECTED.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	e.hb.Stop()
	e.StopMeterValuesLoop()
	e.pend = pending.New()

	if conn != nil {
		closeOldSocket(conn)
	}

	// The session store is discarded on close, per spec.md §3/§4.1.
	clearSessionStore(e.sessKV)

	e.sess.Reset("")
}

// closeOldSocket sends the CloseNormal control frame spec.md §4.8
// requires before tearing down a socket, whether it's being superseded by
// a new Connect or cleanly disconnected.
func closeOldSocket(conn wsConn) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(CloseNormal, "")
	if wc, ok := conn.(*websocket.Conn); ok {
		wc.WriteControl(websocket.CloseMessage, msg, deadline)
	}
	conn.Close()
}

// clearSessionStore erases the session KV namespace, matching
// kvstore.MemStore's documented reconnect/process-exit lifecycle.
func clearSessionStore(sessKV kvstore.Store) {
	if mem, ok := sessKV.(*kvstore.MemStore); ok {
		mem.Clear()
	}
}

// receiveLoop reads frames until the socket closes or errors, then applies
// spec.md §4.8's close-code semantics.
func (e *Engine) receiveLoop(conn wsConn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseNoStatusReceived
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}

			e.mu.Lock()
			current := e.conn
			e.conn = nil
			e.mu.Unlock()
			if current != conn {
				// a newer connection has already replaced this one
				return
			}

			e.hb.Stop()
			if code == CloseNormal {
				e.sess.Reset("")
			} else {
				detail := fmt.Sprintf("Connection error: %d", code)
				e.sess.Fail(detail)
				e.obs.OnLog(detail)
			}
			return
		}

		// Each frame is handled on its own goroutine, matching the
		// teacher's receiveMessages/handleMessage split: an inbound CALL
		// handler that itself originates a nested CALL (e.g.
		// ChangeAvailability's StatusNotification) must not block this
		// loop, or its own reply could never be read.
		go e.handleFrame(data)
	}
}

// Connected reports whether a socket is currently open, without side
// effects — unlike activeConn, which fails the session on a miss.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

func (e *Engine) activeConn() (wsConn, error) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()

	if conn == nil {
		e.sess.Fail("No connection to OCPP server")
		return nil, ocpp.NewError(ocpp.KindTransportError, "chargepoint.send", fmt.Errorf("No connection to OCPP server"))
	}
	return conn, nil
}
