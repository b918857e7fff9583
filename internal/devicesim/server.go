// internal/devicesim/server.go
package devicesim

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/ota"
)

// Config configures a simulated device
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:0"
	Addr string
	// Token is the shared secret AUTH is checked against
	Token string
	// Version is reported by the version command until an update succeeds
	Version string
	// RejectOTA makes the device answer NACK to every transfer header
	RejectOTA bool
	// StallTimeout aborts a transfer when no payload arrives for this long
	StallTimeout time.Duration
	// MaxImageSize rejects headers announcing more than this many bytes
	MaxImageSize int
}

// Server is a host-side stand-in for the device firmware. It serves the
// same line commands and OTA receive path. After a successful update it
// drops every connection accepted up to and including the one that sent
// the image, as the real device does when it restarts. Commands arriving
// on newer connections wait until the image has been applied.
type Server struct {
	config   Config
	logger   *zap.Logger
	listener net.Listener

	// flash is held exclusively while an image is being received
	flash sync.RWMutex

	mu      sync.Mutex
	conns   map[net.Conn]int
	version string
	image   []byte
	updates int
	accepts int

	wg sync.WaitGroup
}

// NewServer creates a simulated device
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 8 * time.Second
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = 4 << 20
	}

	return &Server{
		config:  cfg,
		logger:  logger.With(zap.String("component", "devicesim")),
		conns:   make(map[net.Conn]int),
		version: cfg.Version,
	}
}

// Start binds the listen address and serves clients until ctx is done or
// Close is called
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener

	s.logger.Info("Device simulator listening", zap.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()

	context.AfterFunc(ctx, func() { s.Close() })
	return nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// Close stops accepting, drops every client and waits for handlers to exit
func (s *Server) Close() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.dropClients(-1)
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Version returns the version the device currently reports
func (s *Server) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Updates returns the number of images accepted
func (s *Server) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Accepts returns the number of connections accepted so far
func (s *Server) Accepts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

// Image returns a copy of the last accepted image
func (s *Server) Image() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.image...)
}

// VersionFor is the version string the simulator reports after flashing data
func VersionFor(data []byte) string {
	return fmt.Sprintf("sim-%08x", crc32.ChecksumIEEE(data))
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("Accept failed", zap.Error(err))
			}
			return
		}

		s.mu.Lock()
		s.accepts++
		seq := s.accepts
		s.conns[conn] = seq
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn, seq)
	}
}

func (s *Server) handle(conn net.Conn, seq int) {
	defer s.wg.Done()
	defer s.forget(conn)

	logger := s.logger.With(zap.String("client", conn.RemoteAddr().String()))
	logger.Debug("Client connected")

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("Client read failed", zap.Error(err))
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, model.CommandOTA+" ") {
			reboot, err := s.receiveImage(conn, reader, line, logger)
			if err != nil {
				logger.Debug("Transfer failed", zap.Error(err))
				return
			}
			if reboot {
				logger.Info("Update applied, restarting", zap.String("version", s.Version()))
				s.dropClients(seq)
				return
			}
			continue
		}

		s.flash.RLock()
		err = s.dispatch(conn, line)
		s.flash.RUnlock()
		if err != nil {
			logger.Debug("Client write failed", zap.Error(err))
			return
		}
	}
}

// dispatch serves one command line
func (s *Server) dispatch(conn net.Conn, line string) error {
	switch {
	case strings.HasPrefix(line, model.CommandPing):
		return reply(conn, model.ReplyPong)

	case strings.HasPrefix(line, model.CommandAuth+" "):
		if strings.TrimPrefix(line, model.CommandAuth+" ") == s.config.Token {
			return reply(conn, model.ReplyOK)
		}
		return reply(conn, model.ReplyDenied)

	case strings.HasPrefix(line, "led_on"):
		return reply(conn, "led_on")

	case strings.HasPrefix(line, "led_off"):
		return reply(conn, "led_off")

	case line == model.CommandVersion:
		return reply(conn, s.Version())

	default:
		return reply(conn, model.ReplyWhat)
	}
}

// receiveImage answers a transfer header and, when accepted, reads the
// payload and footer. A CRC mismatch discards the image and keeps the
// connection serving commands.
func (s *Server) receiveImage(conn net.Conn, reader *bufio.Reader, line string, logger *zap.Logger) (bool, error) {
	s.flash.Lock()
	defer s.flash.Unlock()

	header, err := model.ParseTransferHeader(line)
	if err != nil {
		return false, reply(conn, model.ReplyBadFmt)
	}
	if s.config.RejectOTA || header.Size > s.config.MaxImageSize {
		return false, reply(conn, model.ReplyNack)
	}
	if err := reply(conn, model.ReplyAck); err != nil {
		return false, err
	}

	logger = logger.With(zap.Int("size", header.Size))
	logger.Debug("Receiving image")

	image := make([]byte, header.Size)
	crc := uint32(0)
	for total := 0; total < header.Size; {
		end := total + ota.DefaultChunkSize
		if end > header.Size {
			end = header.Size
		}

		conn.SetReadDeadline(time.Now().Add(s.config.StallTimeout))
		n, err := reader.Read(image[total:end])
		if err != nil {
			logger.Warn("Payload stalled", zap.Int("received", total), zap.Error(err))
			return false, err
		}
		crc = crc32.Update(crc, crc32.IEEETable, image[total:total+n])
		total += n
	}

	footer := make([]byte, ota.FooterSize)
	conn.SetReadDeadline(time.Now().Add(s.config.StallTimeout))
	if _, err := io.ReadFull(reader, footer); err != nil {
		logger.Warn("CRC footer not received", zap.Error(err))
		return false, err
	}
	conn.SetReadDeadline(time.Time{})

	sent := binary.LittleEndian.Uint32(footer)
	if sent != crc || crc != header.CRC32 {
		logger.Warn("CRC mismatch",
			zap.String("calculated", fmt.Sprintf("0x%08x", crc)),
			zap.String("footer", fmt.Sprintf("0x%08x", sent)),
			zap.String("header", fmt.Sprintf("0x%08x", header.CRC32)),
		)
		return false, nil
	}

	s.mu.Lock()
	s.image = image
	s.version = VersionFor(image)
	s.updates++
	s.mu.Unlock()

	return true, nil
}

func (s *Server) forget(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// dropClients closes connections accepted at or before seq; a negative
// seq closes all of them
func (s *Server) dropClients(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, connSeq := range s.conns {
		if seq < 0 || connSeq <= seq {
			conn.Close()
		}
	}
}

func reply(conn net.Conn, text string) error {
	_, err := conn.Write([]byte(text + "\n"))
	return err
}
