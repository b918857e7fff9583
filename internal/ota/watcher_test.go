package ota

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"ota-console/internal/model"
	"ota-console/internal/protocol"
	"ota-console/internal/session"
)

// scriptTransport is an open transport that answers reads from a script
type scriptTransport struct {
	open     bool
	replies  []string
	writes   []string
	writeErr error
}

func (s *scriptTransport) Open(ctx context.Context) error {
	s.open = true
	return nil
}

func (s *scriptTransport) Close() error {
	s.open = false
	return nil
}

func (s *scriptTransport) IsOpen() bool { return s.open }

func (s *scriptTransport) Write(ctx context.Context, data []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, string(data))
	return nil
}

func (s *scriptTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	if len(s.replies) == 0 {
		return nil, errors.New("i/o timeout")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return []byte(reply), nil
}

func (s *scriptTransport) GetProtocolType() model.ConnectionType { return model.ConnectionTypeTCP }
func (s *scriptTransport) RemoteAddr() string                   { return "192.168.10.125:8080" }
func (s *scriptTransport) Timeout() time.Duration               { return DefaultReconnectTimeout }
func (s *scriptTransport) Stats() protocol.ProtocolStats        { return protocol.ProtocolStats{} }

// countingConnector hands out one scripted session per call
type countingConnector struct {
	t         *testing.T
	transport *scriptTransport
	err       error
	calls     int
	timeouts  []time.Duration
}

func (c *countingConnector) Connect(ctx context.Context, timeout time.Duration) (*session.Session, error) {
	c.calls++
	c.timeouts = append(c.timeouts, timeout)
	if c.err != nil {
		return nil, c.err
	}
	c.transport.open = true
	return session.New(c.transport, session.DefaultReplyBufferSize, zaptest.NewLogger(c.t)), nil
}

// recordingSleep records requested delays without sleeping
type recordingSleep struct {
	delays []time.Duration
	err    error
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return r.err
}

func TestWatcher_Defaults(t *testing.T) {
	sleeper := &recordingSleep{}
	connector := &countingConnector{t: t, transport: &scriptTransport{replies: []string{"OK\n", "2.0.0\n"}}}

	watcher := NewWatcher(connector, WatcherConfig{
		Token:       "hunter2",
		RebootDelay: -1,
		Sleep:       sleeper.sleep,
		Logger:      zaptest.NewLogger(t),
	})

	result, err := watcher.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer result.Session.Close()

	if len(sleeper.delays) != 1 || sleeper.delays[0] != 5*time.Second {
		t.Errorf("delays = %v, want one 5s sleep", sleeper.delays)
	}
	if connector.calls != 1 {
		t.Errorf("connect calls = %d, want 1", connector.calls)
	}
	if connector.timeouts[0] != 10*time.Second {
		t.Errorf("connect timeout = %v, want 10s", connector.timeouts[0])
	}
}

func TestWatcher_ReportsVersion(t *testing.T) {
	transport := &scriptTransport{replies: []string{"OK\n", "2.0.0\n"}}
	connector := &countingConnector{t: t, transport: transport}
	sleeper := &recordingSleep{}

	watcher := NewWatcher(connector, WatcherConfig{
		Token:       "hunter2",
		RebootDelay: 50 * time.Millisecond,
		Sleep:       sleeper.sleep,
	})

	result, err := watcher.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if result.Version != "2.0.0" || result.Truncated {
		t.Errorf("result = %+v", result)
	}
	if !result.Authenticated {
		t.Error("Authenticated = false after OK")
	}
	if result.SessionID != result.Session.ID() {
		t.Error("SessionID does not match the returned session")
	}
	if !transport.IsOpen() {
		t.Error("verified session closed before handing it to the caller")
	}

	wantWrites := []string{"AUTH hunter2\n", "version\n"}
	if len(transport.writes) != len(wantWrites) {
		t.Fatalf("writes = %q, want %q", transport.writes, wantWrites)
	}
	for i, w := range wantWrites {
		if transport.writes[i] != w {
			t.Errorf("write %d = %q, want %q", i, transport.writes[i], w)
		}
	}
	if sleeper.delays[0] != 50*time.Millisecond {
		t.Errorf("delay = %v, want 50ms", sleeper.delays[0])
	}

	result.Session.Close()
}

func TestWatcher_DeniedTokenStillQueriesVersion(t *testing.T) {
	transport := &scriptTransport{replies: []string{"DENIED\n", "WHAT?\n"}}
	connector := &countingConnector{t: t, transport: transport}

	watcher := NewWatcher(connector, WatcherConfig{Token: "wrong", Sleep: (&recordingSleep{}).sleep})

	result, err := watcher.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer result.Session.Close()

	if result.Authenticated {
		t.Error("Authenticated = true after DENIED")
	}
	if result.Version != "WHAT?" {
		t.Errorf("Version = %q", result.Version)
	}
}

func TestWatcher_ConnectFailureNoRetry(t *testing.T) {
	connector := &countingConnector{t: t, err: model.NewOpError(model.KindConnection, "connect", errors.New("connection refused"))}
	sleeper := &recordingSleep{}

	watcher := NewWatcher(connector, WatcherConfig{Token: "hunter2", Sleep: sleeper.sleep, Logger: zaptest.NewLogger(t)})

	result, err := watcher.Watch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if !model.IsKind(err, model.KindReconnect) {
		t.Errorf("kind = %s, want reconnect", model.KindOf(err))
	}
	if connector.calls != 1 {
		t.Errorf("connect calls = %d, want exactly 1", connector.calls)
	}
	if len(sleeper.delays) != 1 {
		t.Errorf("sleeps = %d, want 1", len(sleeper.delays))
	}
}

func TestWatcher_VersionQueryFailureClosesSession(t *testing.T) {
	// AUTH answered, version read times out
	transport := &scriptTransport{replies: []string{"OK\n"}}
	connector := &countingConnector{t: t, transport: transport}

	watcher := NewWatcher(connector, WatcherConfig{Token: "hunter2", Sleep: (&recordingSleep{}).sleep})

	_, err := watcher.Watch(context.Background())
	if !model.IsKind(err, model.KindReconnect) {
		t.Fatalf("error = %v, want reconnect kind", err)
	}
	if transport.IsOpen() {
		t.Error("session left open after failed version query")
	}
	if connector.calls != 1 {
		t.Errorf("connect calls = %d, want 1", connector.calls)
	}
}

func TestWatcher_AuthWriteFailure(t *testing.T) {
	transport := &scriptTransport{writeErr: errors.New("broken pipe")}
	connector := &countingConnector{t: t, transport: transport}

	watcher := NewWatcher(connector, WatcherConfig{Token: "hunter2", Sleep: (&recordingSleep{}).sleep})

	if _, err := watcher.Watch(context.Background()); !model.IsKind(err, model.KindReconnect) {
		t.Fatalf("error = %v, want reconnect kind", err)
	}
	if transport.IsOpen() {
		t.Error("session left open after failed authentication")
	}
}

func TestWatcher_CancelledDuringDelay(t *testing.T) {
	connector := &countingConnector{t: t, transport: &scriptTransport{}}
	watcher := NewWatcher(connector, WatcherConfig{RebootDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := watcher.Watch(ctx)
	if !model.IsKind(err, model.KindReconnect) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want cancelled reconnect", err)
	}
	if connector.calls != 0 {
		t.Errorf("connect calls = %d, want 0", connector.calls)
	}
}

func TestSleepContext(t *testing.T) {
	start := time.Now()
	if err := sleepContext(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("sleepContext: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("sleepContext returned early")
	}

	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero delay: %v", err)
	}
}
