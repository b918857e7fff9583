// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"ota-console/internal/config"
)

// CreateTransport creates an unopened transport for the configured device.
// timeout bounds connect and every subsequent read and write.
func CreateTransport(cfg *config.DeviceConfig, timeout time.Duration, logger *zap.Logger) (Transport, error) {
	switch cfg.Transport {
	case config.TransportTCP, "":
		return createTCPTransport(cfg, timeout, logger)
	case config.TransportSerial:
		return createSerialTransport(cfg, timeout, logger)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// createTCPTransport creates a TCP transport
func createTCPTransport(cfg *config.DeviceConfig, timeout time.Duration, logger *zap.Logger) (Transport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("TCP host is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port number: %d", cfg.Port)
	}

	return NewTCPConnection(&TCPConfig{
		Host:      cfg.Host,
		Port:      cfg.Port,
		KeepAlive: cfg.KeepAlive,
		Timeout:   timeout,
	}, logger), nil
}

// createSerialTransport creates a serial transport
func createSerialTransport(cfg *config.DeviceConfig, timeout time.Duration, logger *zap.Logger) (Transport, error) {
	serialConfig := &SerialConfig{
		Port:     cfg.Serial.Port,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		StopBits: cfg.Serial.StopBits,
		Parity:   cfg.Serial.Parity,
		Timeout:  timeout,
	}

	if serialConfig.Port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	if err := validateBaudRate(serialConfig.BaudRate); err != nil {
		return nil, err
	}
	if serialConfig.DataBits == 0 {
		serialConfig.DataBits = 8
	}

	return NewSerialConnection(serialConfig, logger), nil
}

func validateBaudRate(rate int) error {
	validRates := []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}
	for _, validRate := range validRates {
		if rate == validRate {
			return nil
		}
	}
	return fmt.Errorf("invalid baud rate: %d", rate)
}
