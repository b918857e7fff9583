// internal/session/manager.go
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ota-console/internal/config"
	"ota-console/internal/model"
	"ota-console/internal/protocol"
	"ota-console/internal/utils"
)

// TransportFactory creates an unopened transport bounded by timeout
type TransportFactory func(timeout time.Duration) (protocol.Transport, error)

// Manager opens sessions to the configured device
type Manager struct {
	config       *config.DeviceConfig
	logger       *zap.Logger
	newTransport TransportFactory
}

// NewManager creates a Manager for cfg
func NewManager(cfg *config.DeviceConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		config: cfg,
		logger: logger.With(zap.String("component", "session")),
	}
	m.newTransport = func(timeout time.Duration) (protocol.Transport, error) {
		return protocol.CreateTransport(m.config, timeout, m.logger)
	}
	return m
}

// NewManagerWithFactory creates a Manager that builds transports with factory
func NewManagerWithFactory(cfg *config.DeviceConfig, factory TransportFactory, logger *zap.Logger) *Manager {
	return &Manager{
		config:       cfg,
		logger:       logger.With(zap.String("component", "session")),
		newTransport: factory,
	}
}

// Connect opens a new session. Refusal and timeout come back as an
// *model.OpError of kind KindConnection.
func (m *Manager) Connect(ctx context.Context, timeout time.Duration) (*Session, error) {
	transport, err := m.newTransport(timeout)
	if err != nil {
		return nil, model.NewOpError(model.KindConnection, "connect", err)
	}

	deviceLogger := utils.NewDeviceLogger(m.logger, transport.RemoteAddr(), string(transport.GetProtocolType()))

	if err := transport.Open(ctx); err != nil {
		deviceLogger.LogConnection("open", false, err)
		return nil, model.NewOpError(model.KindConnection, "connect", err)
	}

	deviceLogger.LogConnection("open", true, nil)
	return New(transport, m.config.ReplyBufferSize, m.logger), nil
}

// ConnectAndAuthenticate opens a session and sends the configured token.
// The session is returned even when the device refuses the token.
func (m *Manager) ConnectAndAuthenticate(ctx context.Context, timeout time.Duration) (*Session, error) {
	sess, err := m.Connect(ctx, timeout)
	if err != nil {
		return nil, err
	}

	if _, err := sess.Authenticate(ctx, m.config.Token); err != nil {
		sess.Close()
		return nil, model.NewOpError(model.KindConnection, "authenticate", err)
	}

	return sess, nil
}

// Token returns the configured shared secret
func (m *Manager) Token() string {
	return m.config.Token
}
