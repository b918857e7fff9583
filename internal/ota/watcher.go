package ota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/session"
)

const (
	// DefaultRebootDelay is how long the device is given to flash and restart.
	DefaultRebootDelay = 5 * time.Second
	// DefaultReconnectTimeout bounds the post-reboot connect and each exchange.
	DefaultReconnectTimeout = 10 * time.Second
)

// Connector opens new sessions to the device
type Connector interface {
	Connect(ctx context.Context, timeout time.Duration) (*session.Session, error)
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// WatcherConfig configures a Watcher
type WatcherConfig struct {
	Token            string
	RebootDelay      time.Duration
	ReconnectTimeout time.Duration
	Sleep            SleepFunc
	Logger           *zap.Logger
}

// VerifyResult is what the rebooted device reported. Session is the new,
// authenticated session; the caller owns it and must close it.
type VerifyResult struct {
	Session       *session.Session
	SessionID     uuid.UUID
	Version       string
	Truncated     bool
	Authenticated bool
}

// Watcher waits out a device reboot and asks it for its firmware version
type Watcher struct {
	connector Connector
	config    WatcherConfig
}

// NewWatcher creates a Watcher. A negative RebootDelay or a non-positive
// ReconnectTimeout takes the default.
func NewWatcher(connector Connector, cfg WatcherConfig) *Watcher {
	if cfg.RebootDelay < 0 {
		cfg.RebootDelay = DefaultRebootDelay
	}
	if cfg.ReconnectTimeout <= 0 {
		cfg.ReconnectTimeout = DefaultReconnectTimeout
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Watcher{
		connector: connector,
		config:    cfg,
	}
}

// Watch sleeps once for the reboot delay, opens exactly one new session,
// re-authenticates and sends "version". There is no retry. Any failure is
// returned as a KindReconnect *model.OpError and the new session, if any,
// is closed; the upload itself is not affected by it.
func (w *Watcher) Watch(ctx context.Context) (result *VerifyResult, err error) {
	logger := w.config.Logger

	logger.Info("Waiting for device reboot", zap.Duration("delay", w.config.RebootDelay))
	if err := w.config.Sleep(ctx, w.config.RebootDelay); err != nil {
		return nil, model.NewOpError(model.KindReconnect, "wait for reboot", err)
	}

	sess, err := w.connector.Connect(ctx, w.config.ReconnectTimeout)
	if err != nil {
		return nil, model.NewOpError(model.KindReconnect, "reconnect", err)
	}
	defer func() {
		if err != nil {
			sess.Close()
		}
	}()

	if _, err := sess.Authenticate(ctx, w.config.Token); err != nil {
		return nil, model.NewOpError(model.KindReconnect, "re-authenticate", err)
	}

	reply, err := sess.SendLine(ctx, model.CommandVersion)
	if err != nil {
		return nil, model.NewOpError(model.KindReconnect, "query version", err)
	}

	logger.Info("Device reported version",
		zap.String("version", reply.Text),
		zap.String("session_id", sess.ID().String()),
	)

	return &VerifyResult{
		Session:       sess,
		SessionID:     sess.ID(),
		Version:       reply.Text,
		Truncated:     reply.Truncated,
		Authenticated: sess.Authenticated(),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
