package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/mentionchat/internal/chat"
	"github.com/Tyrowin/mentionchat/internal/metrics"
	"github.com/Tyrowin/mentionchat/internal/observability"
)

type scheduled struct {
	delay time.Duration
	fire  func()
}

// manualClock records AfterFunc calls instead of starting timers.
type manualClock struct {
	calls chan scheduled
}

func newManualClock() *manualClock {
	return &manualClock{calls: make(chan scheduled, 16)}
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) {
	c.calls <- scheduled{delay: d, fire: f}
}

func (c *manualClock) next(t *testing.T) scheduled {
	t.Helper()
	select {
	case s := <-c.calls:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect was scheduled")
		return scheduled{}
	}
}

func (c *manualClock) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case s := <-c.calls:
		t.Fatalf("unexpected reconnect scheduled after %v", s.delay)
	case <-time.After(wait):
	}
}

var errRefused = errors.New("connection refused")

// failingDialer counts dial attempts and always fails.
type failingDialer struct {
	mu       sync.Mutex
	attempts []time.Time
}

func newFailingDialer() *failingDialer {
	return &failingDialer{}
}

func (d *failingDialer) Dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	d.attempts = append(d.attempts, time.Now())
	d.mu.Unlock()
	return nil, errRefused
}

func (d *failingDialer) times() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.attempts...)
}

func startManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = observability.Discard()
	}
	m := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-m.Done()
	})
	return m
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		2*time.Second, 5*time.Millisecond, "state never became %s", want)
}

// echoBotServer answers every text frame with {"msg": reply(text)} and
// records what it received.
type echoBotServer struct {
	*httptest.Server

	mu       sync.Mutex
	received []string
	conns    []*websocket.Conn
	accepted int
	reply    func(string) []byte
}

func newEchoBotServer(t *testing.T) *echoBotServer {
	t.Helper()
	s := &echoBotServer{
		reply: func(text string) []byte {
			payload, _ := chat.EncodeInbound(text)
			return payload
		},
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.accepted++
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, string(data))
			reply := s.reply
			s.mu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, reply(string(data))); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *echoBotServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *echoBotServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *echoBotServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *echoBotServer) receivedMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestOriginFor(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080", OriginFor("ws://127.0.0.1:8080/ws"))
	assert.Equal(t, "https://chat.example.com", OriginFor("wss://chat.example.com/ws"))
	assert.Equal(t, "", OriginFor("not a url"))
}

func TestConnectSendAndReceive(t *testing.T) {
	srv := newEchoBotServer(t)
	m := startManager(t, Options{Endpoint: srv.wsURL(), RetryDelay: time.Hour, MaxRetries: 3})

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)
	assert.Equal(t, 0, m.Retries())

	require.NoError(t, m.Send("hello @bob"))

	select {
	case msg := <-m.Incoming():
		assert.Equal(t, "hello @bob", msg.Text)
		assert.Equal(t, chat.SenderBot, msg.Sender)
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message")
	}

	assert.Equal(t, []string{"hello @bob"}, srv.receivedMessages())
}

func TestConnectIsGuarded(t *testing.T) {
	srv := newEchoBotServer(t)
	m := startManager(t, Options{Endpoint: srv.wsURL(), RetryDelay: time.Hour, MaxRetries: 3})

	require.NoError(t, m.Connect())
	err := m.Connect()
	assert.ErrorIs(t, err, ErrAlreadyActive)

	waitForState(t, m, StateConnected)
	assert.ErrorIs(t, m.Connect(), ErrAlreadyActive)
	assert.Equal(t, 1, srv.connCount())
}

func TestSendWhileDisconnected(t *testing.T) {
	m := startManager(t, Options{Endpoint: "ws://127.0.0.1:1/ws"})
	assert.ErrorIs(t, m.Send("hi"), ErrNotConnected)
	assert.False(t, m.Connected())
}

func TestReconnectSchedulingIsBounded(t *testing.T) {
	clock := newManualClock()
	dialer := newFailingDialer()
	reg := metrics.New()

	m := startManager(t, Options{
		Endpoint:   "ws://example.invalid/ws",
		RetryDelay: 100 * time.Millisecond,
		MaxRetries: 3,
		Dial:       dialer.Dial,
		AfterFunc:  clock.AfterFunc,
		Metrics:    reg,
	})

	require.NoError(t, m.Connect())

	for attempt := 1; attempt <= 3; attempt++ {
		s := clock.next(t)
		assert.Equal(t, 100*time.Millisecond, s.delay)
		assert.Equal(t, attempt, m.Retries(), "retry counter after scheduling attempt %d", attempt)
		s.fire()
	}

	require.Eventually(t, m.Exhausted, 2*time.Second, 5*time.Millisecond)
	clock.expectNone(t, 100*time.Millisecond)

	assert.Len(t, dialer.times(), 4)
	assert.Equal(t, StateDisconnected, m.State())
	assert.ErrorIs(t, m.Connect(), ErrRetriesExhausted)
	expected := `
# HELP mentionchat_client_reconnect_attempts_total Reconnect attempts scheduled after a connection loss.
# TYPE mentionchat_client_reconnect_attempts_total counter
mentionchat_client_reconnect_attempts_total 3
`
	require.NoError(t, testutil.GatherAndCompare(reg.Registry(), strings.NewReader(expected),
		"mentionchat_client_reconnect_attempts_total"))
}

func TestReconnectTimingWithFixedDelay(t *testing.T) {
	dialer := newFailingDialer()
	m := startManager(t, Options{
		Endpoint:   "ws://example.invalid/ws",
		RetryDelay: 100 * time.Millisecond,
		MaxRetries: 3,
		Dial:       dialer.Dial,
	})

	require.NoError(t, m.Connect())
	require.Eventually(t, m.Exhausted, 3*time.Second, 10*time.Millisecond)

	// Nothing else may happen after giving up.
	time.Sleep(250 * time.Millisecond)
	attempts := dialer.times()
	require.Len(t, attempts, 4)

	start := attempts[0]
	for i, want := range []time.Duration{100, 200, 300} {
		elapsed := attempts[i+1].Sub(start)
		assert.GreaterOrEqual(t, elapsed, want*time.Millisecond-10*time.Millisecond, "attempt %d", i+1)
		assert.Less(t, elapsed, want*time.Millisecond+250*time.Millisecond, "attempt %d", i+1)
	}
}

func TestZeroMaxRetriesGivesUpImmediately(t *testing.T) {
	clock := newManualClock()
	dialer := newFailingDialer()
	m := startManager(t, Options{
		Endpoint:  "ws://example.invalid/ws",
		Dial:      dialer.Dial,
		AfterFunc: clock.AfterFunc,
	})

	require.NoError(t, m.Connect())
	require.Eventually(t, m.Exhausted, 2*time.Second, 5*time.Millisecond)
	clock.expectNone(t, 50*time.Millisecond)
}

func TestRetryResetsExhaustedBudget(t *testing.T) {
	clock := newManualClock()
	dialer := newFailingDialer()
	m := startManager(t, Options{
		Endpoint:   "ws://example.invalid/ws",
		RetryDelay: time.Second,
		MaxRetries: 1,
		Dial:       dialer.Dial,
		AfterFunc:  clock.AfterFunc,
	})

	require.NoError(t, m.Connect())
	clock.next(t).fire()
	require.Eventually(t, m.Exhausted, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Retry())
	assert.False(t, m.Exhausted())
	s := clock.next(t)
	assert.Equal(t, time.Second, s.delay)
	assert.Equal(t, 1, m.Retries())
}

func TestManualConnectSupersedesPendingReconnect(t *testing.T) {
	tests := []struct {
		name        string
		manual      func(*Manager) error
		wantRetries int
	}{
		// Retry resets the budget, Connect keeps counting.
		{name: "retry", manual: (*Manager).Retry, wantRetries: 2},
		{name: "connect", manual: (*Manager).Connect, wantRetries: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newManualClock()
			dialer := newFailingDialer()
			m := startManager(t, Options{
				Endpoint:   "ws://example.invalid/ws",
				RetryDelay: time.Second,
				MaxRetries: 5,
				Dial:       dialer.Dial,
				AfterFunc:  clock.AfterFunc,
			})

			require.NoError(t, m.Connect())
			first := clock.next(t)

			require.NoError(t, tt.manual(m))
			second := clock.next(t)
			require.Len(t, dialer.times(), 2)

			// The reconnect scheduled before the manual attempt is stale.
			first.fire()
			assert.Never(t, func() bool { return len(dialer.times()) > 2 },
				100*time.Millisecond, 5*time.Millisecond, "stale reconnect dialed")
			clock.expectNone(t, 50*time.Millisecond)

			second.fire()
			clock.next(t)
			assert.Len(t, dialer.times(), 3)
			assert.Equal(t, tt.wantRetries, m.Retries())
			clock.expectNone(t, 100*time.Millisecond)
		})
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	srv := newEchoBotServer(t)
	clock := newManualClock()
	m := startManager(t, Options{
		Endpoint:   srv.wsURL(),
		RetryDelay: 50 * time.Millisecond,
		MaxRetries: 2,
		AfterFunc:  clock.AfterFunc,
	})

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	srv.dropAll()

	s := clock.next(t)
	assert.Equal(t, 1, m.Retries())
	assert.Equal(t, StateDisconnected, m.State())
	assert.ErrorIs(t, m.Send("lost"), ErrNotConnected)

	s.fire()
	waitForState(t, m, StateConnected)
	assert.Equal(t, 0, m.Retries(), "open resets the retry counter")
	assert.Equal(t, 2, srv.connCount())
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	srv := newEchoBotServer(t)
	srv.reply = func(text string) []byte {
		if text == "bad" {
			return []byte("not json")
		}
		payload, _ := chat.EncodeInbound(text)
		return payload
	}
	reg := metrics.New()
	m := startManager(t, Options{Endpoint: srv.wsURL(), RetryDelay: time.Hour, MaxRetries: 1, Metrics: reg})

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	require.NoError(t, m.Send("bad"))
	require.NoError(t, m.Send("@team update"))

	select {
	case msg := <-m.Incoming():
		assert.Equal(t, "@team update", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message")
	}
	assert.Equal(t, StateConnected, m.State())

	expected := `
# HELP mentionchat_client_malformed_payloads_total Inbound frames dropped because they could not be decoded.
# TYPE mentionchat_client_malformed_payloads_total counter
mentionchat_client_malformed_payloads_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg.Registry(), strings.NewReader(expected),
		"mentionchat_client_malformed_payloads_total"))
}

func TestStateChangesArePublished(t *testing.T) {
	srv := newEchoBotServer(t)
	m := startManager(t, Options{Endpoint: srv.wsURL(), RetryDelay: time.Hour, MaxRetries: 1})

	require.NoError(t, m.Connect())

	var seen []State
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-m.StateChanges():
			seen = append(seen, ev.New)
		case <-timeout:
			t.Fatalf("saw only %v", seen)
		}
	}
	assert.Equal(t, []State{StateConnecting, StateConnected}, seen)
}

func TestCloseStopsEverything(t *testing.T) {
	srv := newEchoBotServer(t)
	m := New(Options{Endpoint: srv.wsURL(), Logger: observability.Discard(), MaxRetries: 5})
	go func() { _ = m.Run(context.Background()) }()

	require.NoError(t, m.Connect())
	waitForState(t, m, StateConnected)

	m.Close()
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	_, open := <-m.Incoming()
	assert.False(t, open)
	assert.ErrorIs(t, m.Connect(), ErrClosed)
	assert.Equal(t, StateDisconnected, m.State())
}
