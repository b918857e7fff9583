// internal/discovery/serial.go
package discovery

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/protocol"
)

// SerialConfig configures serial port scanning
type SerialConfig struct {
	BaudRate     int
	Timeout      time.Duration
	PortPatterns []string
	// Probe sends PING to every matching port; otherwise ports are only listed
	Probe bool
}

// SerialScanner lists serial ports and optionally probes them
type SerialScanner struct {
	logger       *zap.Logger
	config       SerialConfig
	listPorts    func() ([]string, error)
	newTransport func(port string) protocol.Transport
}

// NewSerialScanner creates a serial scanner
func NewSerialScanner(cfg SerialConfig, logger *zap.Logger) *SerialScanner {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.PortPatterns == nil {
		cfg.PortPatterns = defaultPortPatterns(runtime.GOOS)
	}

	s := &SerialScanner{
		logger:    logger.With(zap.String("scanner", "serial")),
		config:    cfg,
		listPorts: serial.GetPortsList,
	}
	s.newTransport = func(port string) protocol.Transport {
		return protocol.NewSerialConnection(&protocol.SerialConfig{
			Port:     port,
			BaudRate: s.config.BaudRate,
			DataBits: 8,
			StopBits: 1,
			Parity:   "none",
			Timeout:  s.config.Timeout,
		}, s.logger)
	}
	return s
}

// GetScannerType returns scanner type
func (s *SerialScanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *SerialScanner) IsAvailable() bool {
	return true
}

// Scan lists the serial ports matching the configured patterns
func (s *SerialScanner) Scan(ctx context.Context) ([]*Candidate, error) {
	ports, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports = filterPorts(ports, s.config.PortPatterns)
	s.logger.Debug("Found serial ports", zap.Strings("ports", ports))

	candidates := make([]*Candidate, 0, len(ports))
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}

		candidate := &Candidate{ConnectionType: model.ConnectionTypeSerial, Address: port}
		if s.config.Probe {
			candidate.Reply, candidate.Err = probe(ctx, s.newTransport(port), s.logger)
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

func filterPorts(ports, patterns []string) []string {
	if len(patterns) == 0 {
		return ports
	}

	var filtered []string
	for _, port := range ports {
		for _, pattern := range patterns {
			if strings.HasPrefix(port, pattern) {
				filtered = append(filtered, port)
				break
			}
		}
	}
	return filtered
}

func defaultPortPatterns(goos string) []string {
	switch goos {
	case "windows":
		return []string{"COM"}
	case "darwin":
		return []string{"/dev/cu.usbserial", "/dev/cu.usbmodem", "/dev/tty.usbserial", "/dev/tty.usbmodem"}
	default:
		return []string{"/dev/ttyUSB", "/dev/ttyACM"}
	}
}
