// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/protocol"
	"ota-console/internal/utils"
)

// DefaultReplyBufferSize bounds a single reply read
const DefaultReplyBufferSize = 256

// Session is one open connection to the device. A session is never reused
// after the device reboots; the caller asks the Manager for a new one.
type Session struct {
	id            uuid.UUID
	transport     protocol.Transport
	logger        *utils.DeviceLogger
	replyBuffer   int
	authenticated bool
	openedAt      time.Time
}

// New wraps an already open transport
func New(transport protocol.Transport, replyBuffer int, logger *zap.Logger) *Session {
	if replyBuffer <= 0 {
		replyBuffer = DefaultReplyBufferSize
	}

	id := uuid.New()
	return &Session{
		id:        id,
		transport: transport,
		logger: utils.NewDeviceLogger(
			logger.With(zap.String("session_id", id.String())),
			transport.RemoteAddr(),
			string(transport.GetProtocolType()),
		),
		replyBuffer: replyBuffer,
		openedAt:    time.Now(),
	}
}

// ID returns the session identifier
func (s *Session) ID() uuid.UUID { return s.id }

// PeerAddr returns the device address
func (s *Session) PeerAddr() string { return s.transport.RemoteAddr() }

// Timeout returns the per-operation timeout of the underlying transport
func (s *Session) Timeout() time.Duration { return s.transport.Timeout() }

// Authenticated reports whether the device answered OK to AUTH. Nothing
// in the session enforces it; the device decides whether to serve
// later commands.
func (s *Session) Authenticated() bool { return s.authenticated }

// Authenticate sends AUTH <token> and reads one reply. A refusal is
// logged and returned in the reply, not as an error.
func (s *Session) Authenticate(ctx context.Context, token string) (protocol.Reply, error) {
	reply, err := s.SendLine(ctx, fmt.Sprintf("%s %s", model.CommandAuth, token))
	if err != nil {
		return reply, fmt.Errorf("authenticate: %w", err)
	}

	s.authenticated = reply.HasPrefix(model.ReplyOK)
	s.logger.LogAuth(reply.Text, s.authenticated)
	return reply, nil
}

// SendLine writes text plus a newline, then performs one read of up to the
// reply buffer size. Replies longer than the buffer are cut short and
// flagged as truncated.
func (s *Session) SendLine(ctx context.Context, text string) (protocol.Reply, error) {
	if err := s.WriteLine(ctx, text); err != nil {
		return protocol.Reply{}, err
	}

	reply, err := s.ReadReply(ctx, s.replyBuffer)
	if err != nil {
		return protocol.Reply{}, err
	}

	if reply.Truncated {
		s.logger.Debug("Reply filled receive buffer", zap.Int("buffer", s.replyBuffer))
	}
	return reply, nil
}

// WriteLine writes text terminated by a newline
func (s *Session) WriteLine(ctx context.Context, text string) error {
	if err := s.transport.Write(ctx, []byte(text+"\n")); err != nil {
		return fmt.Errorf("send %q: %w", firstWord(text), err)
	}
	return nil
}

// ReadReply performs one read of at most max bytes
func (s *Session) ReadReply(ctx context.Context, max int) (protocol.Reply, error) {
	reply, err := protocol.ReadReply(ctx, s.transport, max)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}

// Write writes raw bytes in a single transport write
func (s *Session) Write(ctx context.Context, data []byte) error {
	return s.transport.Write(ctx, data)
}

// Close closes the session. It is safe to call more than once.
func (s *Session) Close() error {
	if !s.transport.IsOpen() {
		return nil
	}

	stats := s.transport.Stats()
	err := s.transport.Close()
	s.logger.Info("Session closed",
		zap.Duration("open_for", time.Since(s.openedAt)),
		zap.Int64("bytes_written", stats.BytesWritten),
		zap.Int64("bytes_read", stats.BytesRead),
		zap.Int64("errors", stats.ErrorCount),
	)
	return err
}

// firstWord keeps secrets such as the AUTH token out of error messages
func firstWord(text string) string {
	for i, r := range text {
		if r == ' ' {
			return text[:i]
		}
	}
	return text
}
