// Package connection owns the client's single logical connection to the chat
// endpoint. It dials, surfaces inbound messages, and re-establishes the
// connection after a loss with a fixed delay and a bounded number of retries.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/mentionchat/internal/chat"
)

var (
	// ErrNotConnected is returned by Send unless the state is StateConnected.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyActive is returned by Connect while connecting or connected.
	ErrAlreadyActive = errors.New("connection already active")

	// ErrRetriesExhausted is returned by Connect after the manager gave up.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrClosed is returned once the manager has been shut down.
	ErrClosed = errors.New("connection manager closed")
)

type eventKind int

const (
	eventOpened eventKind = iota
	eventFrame
	eventClosed
	eventRetry
)

// event is a socket or timer callback. Every event is handled on the Run
// goroutine, in the order it was posted.
type event struct {
	kind eventKind
	gen  uint64
	conn Conn
	data []byte
	err  error
}

// Manager holds the connection state. Construct it with New, start Run, then
// call Connect.
type Manager struct {
	opts Options
	log  *slog.Logger

	events   chan event
	incoming chan chat.Message
	states   chan StateEvent

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.RWMutex
	state     State
	retries   int
	exhausted bool
	closed    bool
	conn      Conn
	// gen identifies the current dial; events from older dials are dropped.
	gen uint64
	// retryGen identifies the current retry chain. A scheduled reconnect
	// carrying an older value was superseded by Connect, Retry or an open.
	retryGen uint64

	writeMu sync.Mutex
}

// New creates a Manager. Zero option values fall back to the package
// defaults, except MaxRetries where zero disables reconnection.
func New(opts Options) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		opts:     opts,
		log:      opts.Logger.With("component", "connection", "endpoint", opts.Endpoint),
		events:   make(chan event, 64),
		incoming: make(chan chat.Message, 256),
		states:   make(chan StateEvent, 32),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Incoming delivers decoded bot messages in arrival order. It is closed when
// Run returns.
func (m *Manager) Incoming() <-chan chat.Message {
	return m.incoming
}

// StateChanges delivers state transitions. Events are dropped when nobody
// keeps up; State and Exhausted always report the current values.
func (m *Manager) StateChanges() <-chan StateEvent {
	return m.states
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Retries returns the number of reconnect attempts since the last open.
func (m *Manager) Retries() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retries
}

// Exhausted reports whether the manager gave up reconnecting.
func (m *Manager) Exhausted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exhausted
}

// Endpoint returns the address the manager dials.
func (m *Manager) Endpoint() string {
	return m.opts.Endpoint
}

// Connected reports whether Send can currently succeed.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Connect opens a new connection. It is rejected while a connection is
// already being established or open, and after retries were exhausted.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connectLocked(); err != nil {
		return err
	}
	m.retryGen++
	return nil
}

// Retry clears an exhausted retry budget and connects again.
func (m *Manager) Retry() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDisconnected {
		return ErrAlreadyActive
	}
	m.exhausted = false
	m.retries = 0
	m.retryGen++
	return m.connectLocked()
}

func (m *Manager) connectLocked() error {
	switch {
	case m.closed:
		return ErrClosed
	case m.exhausted:
		return ErrRetriesExhausted
	case m.state != StateDisconnected:
		return ErrAlreadyActive
	}

	m.gen++
	gen := m.gen
	m.setStateLocked(StateConnecting, nil)

	go func() {
		conn, err := m.opts.Dial(m.ctx, m.opts.Endpoint)
		if err != nil {
			m.post(event{kind: eventClosed, gen: gen, err: err})
			return
		}
		if !m.post(event{kind: eventOpened, gen: gen, conn: conn}) {
			_ = conn.Close()
		}
	}()
	return nil
}

// Send writes text verbatim as a single text frame.
func (m *Manager) Send(text string) error {
	m.mu.RLock()
	conn, state := m.conn, m.state
	m.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, chat.EncodeOutbound(text)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	m.opts.Metrics.RecordMessageSent()
	return nil
}

// Close stops Run and closes the socket. No reconnect happens afterwards.
func (m *Manager) Close() {
	m.cancel()
}

// Done is closed once Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Run is the manager's event loop. It returns when ctx is cancelled or Close
// is called.
func (m *Manager) Run(ctx context.Context) error {
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.ctx.Done():
			return nil
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// post hands ev to the loop. It reports false if the loop is gone.
func (m *Manager) post(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.ctx.Done():
		return false
	case <-m.done:
		return false
	}
}

func (m *Manager) handle(ev event) {
	switch ev.kind {
	case eventOpened:
		m.onOpen(ev)
	case eventFrame:
		m.onMessage(ev)
	case eventClosed:
		m.onClose(ev)
	case eventRetry:
		m.onRetry(ev)
	}
}

func (m *Manager) onOpen(ev event) {
	m.mu.Lock()
	if ev.gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		_ = ev.conn.Close()
		return
	}
	m.conn = ev.conn
	m.retries = 0
	m.retryGen++
	m.setStateLocked(StateConnected, nil)
	m.mu.Unlock()

	m.log.Info("connection open")
	go m.readPump(ev.conn, ev.gen)
}

func (m *Manager) readPump(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.post(event{kind: eventClosed, gen: gen, err: err})
			return
		}
		if !m.post(event{kind: eventFrame, gen: gen, data: data}) {
			return
		}
	}
}

func (m *Manager) onMessage(ev event) {
	if !m.current(ev.gen) {
		return
	}

	msg, err := chat.DecodeInbound(ev.data)
	if err != nil {
		m.opts.Metrics.RecordMalformedPayload()
		m.log.Warn("dropping inbound frame", "error", err, "bytes", len(ev.data))
		return
	}

	m.log.Debug("message received", "msg", msg.Text)
	m.opts.Metrics.RecordMessageReceived()

	select {
	case m.incoming <- msg:
	case <-m.ctx.Done():
	}
}

func (m *Manager) onClose(ev event) {
	m.mu.Lock()
	if ev.gen != m.gen || m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected, ev.err)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	if isExpectedCloseError(ev.err) {
		m.log.Info("connection closed", "reason", ev.err)
	} else {
		m.log.Warn("connection closed", "error", ev.err)
	}
	m.retryConnection()
}

// retryConnection schedules exactly one reconnect after the fixed delay, or
// enters the terminal state once the retry budget is spent.
func (m *Manager) retryConnection() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.retries >= m.opts.MaxRetries {
		m.exhausted = true
		m.publishLocked(StateEvent{Old: m.state, New: m.state, Attempt: m.retries, Exhausted: true})
		attempts := m.retries
		m.mu.Unlock()

		m.opts.Metrics.RecordReconnectExhausted()
		m.log.Error("max reconnect attempts reached, giving up", "attempts", attempts)
		return
	}
	m.retries++
	attempt := m.retries
	stamp := m.retryGen
	m.mu.Unlock()

	m.opts.Metrics.RecordReconnectAttempt()
	m.log.Info("reconnect scheduled", "attempt", attempt, "max", m.opts.MaxRetries, "delay", m.opts.RetryDelay)
	m.opts.AfterFunc(m.opts.RetryDelay, func() {
		m.post(event{kind: eventRetry, gen: stamp})
	})
}

func (m *Manager) onRetry(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.gen != m.retryGen {
		m.log.Debug("stale reconnect dropped", "retry_gen", ev.gen, "current", m.retryGen)
		return
	}
	m.log.Info("reconnecting", "attempt", m.retries)
	if err := m.connectLocked(); err != nil {
		m.log.Debug("reconnect skipped", "error", err)
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return gen == m.gen && m.state == StateConnected
}

// setStateLocked must be called with m.mu held.
func (m *Manager) setStateLocked(s State, err error) {
	old := m.state
	m.state = s
	m.opts.Metrics.SetConnectionState(int(s))
	m.publishLocked(StateEvent{Old: old, New: s, Attempt: m.retries, Exhausted: m.exhausted, Err: err})
}

// publishLocked must be called with m.mu held.
func (m *Manager) publishLocked(ev StateEvent) {
	if m.closed {
		return
	}
	select {
	case m.states <- ev:
	default:
		m.log.Debug("state change dropped", "state", ev.New.String())
	}
}

func (m *Manager) shutdown() {
	m.cancel()

	m.mu.Lock()
	m.closed = true
	conn := m.conn
	m.conn = nil
	if m.state != StateDisconnected {
		m.state = StateDisconnected
		m.opts.Metrics.SetConnectionState(int(StateDisconnected))
	}
	close(m.states)
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		_ = conn.Close()
	}

	close(m.incoming)
	close(m.done)
	m.log.Info("connection manager stopped")
}

// isExpectedCloseError reports whether err is an ordinary way for the socket
// to go away.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
