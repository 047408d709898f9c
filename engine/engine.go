package engine

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/quantarax/relay/internal/code"
	"github.com/quantarax/relay/internal/framing"
	"github.com/quantarax/relay/internal/observability"
	"github.com/quantarax/relay/internal/validation"
)

// DefaultSignalServerURL is used by start_send/start_receive when the
// caller does not override it.
const DefaultSignalServerURL = "ws://localhost:8080"

// StartSendResult is the synchronous reply to start_send: the code to read
// out to the peer, the session id for subsequent controls, and the local
// port the sender's QuicEndpoint is bound to.
type StartSendResult struct {
	Code      string
	SessionID string
	Port      int
}

// entry is the process-wide bookkeeping the Engine keeps for one session:
// its ProgressBus, cancel token, and the pending accept/decline decision
// for a receiver session (filled in by AcceptTransfer, consumed by the
// Receiver pipeline's decide callback).
type entry struct {
	sess *Session
	bus  *ProgressBus

	mu         sync.Mutex
	decisionCh chan bool
}

// Engine is the facade described in §6: a process-wide session store behind
// start_send/start_receive/accept_transfer/cancel_transfer, each session
// driven on its own goroutine and reporting through its ProgressBus.
type Engine struct {
	log     *observability.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewEngine constructs an Engine that logs through log. Metrics start
// disabled; call SetMetrics to attach the daemon's Prometheus registry.
func NewEngine(log *observability.Logger) *Engine {
	return &Engine{log: log, sessions: make(map[string]*entry)}
}

// SetMetrics attaches m so every session started afterward records
// transfer/chunk/checksum counters against it. Only the daemon binary,
// which also serves /metrics, calls this; cmd/send and cmd/receive leave
// it nil and Engine's recording calls become no-ops.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

func (e *Engine) put(id string, en *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[id] = en
}

func (e *Engine) get(id string) (*entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.sessions[id]
	return en, ok
}

// Subscribe returns the progress event channel for sessionID, for a caller
// (REST SSE handler, CLI display loop) that wants to watch one session.
func (e *Engine) Subscribe(sessionID string) (<-chan ProgressEvent, int, bool) {
	en, ok := e.get(sessionID)
	if !ok {
		return nil, 0, false
	}
	ch, id := en.bus.Subscribe()
	return ch, id, true
}

// Unsubscribe releases a subscription obtained from Subscribe.
func (e *Engine) Unsubscribe(sessionID string, subID int) {
	if en, ok := e.get(sessionID); ok {
		en.bus.Unsubscribe(subID)
	}
}

// StartSend begins sending files (already-resolved absolute paths or
// directories, expanded per §4.11) to whoever redeems the generated code.
// It returns as soon as the local QuicEndpoint is bound and the generated
// code is known; connection establishment and the actual transfer continue
// on a background goroutine and report through the session's ProgressBus.
func (e *Engine) StartSend(paths []string, signalServerURL string) (*StartSendResult, error) {
	if signalServerURL == "" {
		signalServerURL = DefaultSignalServerURL
	}

	expanded, err := validation.ExpandPaths(paths)
	if err != nil {
		return nil, errNetwork("expand send paths", err)
	}
	sendFiles, err := BuildFileInfos(expanded)
	if err != nil {
		return nil, err
	}

	transferCode, err := code.Generate()
	if err != nil {
		return nil, errCrypto("generate transfer code", err)
	}
	sess := NewSession(RoleSender, transferCode)

	quicEP, err := NewQuicEndpoint(":0")
	if err != nil {
		return nil, errNetwork("open local quic endpoint", err)
	}
	_, portStr, err := net.SplitHostPort(quicEP.LocalAddr().String())
	if err != nil {
		quicEP.Close()
		return nil, errNetwork("parse local quic address", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		quicEP.Close()
		return nil, errNetwork("parse local quic port", err)
	}

	bus := NewProgressBus(64)
	en := &entry{sess: sess, bus: bus}
	e.put(sess.ID, en)

	go e.runSend(sess, quicEP, signalServerURL, bus, sendFiles)

	return &StartSendResult{Code: transferCode.String(), SessionID: sess.ID, Port: port}, nil
}

func (e *Engine) runSend(sess *Session, quicEP *QuicEndpoint, signalServerURL string, bus *ProgressBus, files []SendFile) {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.RecordTransferStart()
	}

	result, err := EstablishConnection(sess, signalServerURL, quicEP, bus, e.log, e.metrics)
	if err != nil {
		e.fail(sess, bus, err)
		if e.metrics != nil {
			e.metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		}
		return
	}
	defer result.Transport.Close()
	if e.metrics != nil {
		e.metrics.RecordQUICConnection(!result.Relayed)
	}

	sender := NewSender(sess, result.Transport, result.SessionKey, bus, e.log, e.metrics, files)
	err = sender.Run()
	if err != nil {
		e.fail(sess, bus, err)
	}
	if e.metrics != nil {
		e.metrics.RecordTransferComplete(err == nil, time.Since(start).Seconds())
	}
}

// StartReceive begins waiting to receive whatever the peer holding
// transferCode offers, writing accepted files under saveDir. It returns the
// session id immediately; the file_offer (and everything after it) arrives
// through the session's ProgressBus, with AcceptTransfer supplying the
// accept/decline verdict once the caller has seen the offer.
func (e *Engine) StartReceive(transferCode, saveDir, signalServerURL string) (string, error) {
	if signalServerURL == "" {
		signalServerURL = DefaultSignalServerURL
	}

	parsed, err := code.Parse(transferCode)
	if err != nil {
		return "", errInvalidCode(err.Error())
	}
	sess := NewSession(RoleReceiver, parsed)

	quicEP, err := NewQuicEndpoint(":0")
	if err != nil {
		return "", errNetwork("open local quic endpoint", err)
	}

	bus := NewProgressBus(64)
	en := &entry{sess: sess, bus: bus, decisionCh: make(chan bool, 1)}
	e.put(sess.ID, en)

	go e.runReceive(sess, quicEP, signalServerURL, bus, saveDir, en)

	return sess.ID, nil
}

func (e *Engine) runReceive(sess *Session, quicEP *QuicEndpoint, signalServerURL string, bus *ProgressBus, saveDir string, en *entry) {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.RecordTransferStart()
	}

	result, err := EstablishConnection(sess, signalServerURL, quicEP, bus, e.log, e.metrics)
	if err != nil {
		e.fail(sess, bus, err)
		if e.metrics != nil {
			e.metrics.RecordTransferComplete(false, time.Since(start).Seconds())
		}
		return
	}
	defer result.Transport.Close()
	if e.metrics != nil {
		e.metrics.RecordQUICConnection(!result.Relayed)
	}

	decide := func(_ []framing.FileInfo) (bool, error) {
		select {
		case accept := <-en.decisionCh:
			return accept, nil
		case <-sess.Cancel.Done():
			return false, errCancelled()
		}
	}

	receiver := NewReceiver(sess, result.Transport, result.SessionKey, bus, e.log, e.metrics, saveDir, decide)
	err = receiver.Run()
	if err != nil {
		e.fail(sess, bus, err)
	}
	if e.metrics != nil {
		e.metrics.RecordTransferComplete(err == nil, time.Since(start).Seconds())
	}
}

// AcceptTransfer supplies the accept/decline verdict for a receiver session
// that has published a FileOffer event and is waiting on it.
func (e *Engine) AcceptTransfer(sessionID string, accept bool) error {
	en, ok := e.get(sessionID)
	if !ok {
		return errTransfer("unknown session id")
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.decisionCh == nil {
		return errTransfer("session is not a pending receive")
	}
	select {
	case en.decisionCh <- accept:
		return nil
	default:
		return errTransfer("transfer already has a decision")
	}
}

// CancelTransfer fires the session's cancel token, unwinding whichever
// pipeline stage is currently in flight.
func (e *Engine) CancelTransfer(sessionID string) error {
	en, ok := e.get(sessionID)
	if !ok {
		return errTransfer("unknown session id")
	}
	en.sess.Cancel.Cancel()
	return nil
}

func (e *Engine) fail(sess *Session, bus *ProgressBus, err error) {
	sess.SetState(StateFailed)
	e.log.Error(err, "session failed")
	bus.Publish(ProgressEvent{Kind: EventError, Message: err.Error()})
}
