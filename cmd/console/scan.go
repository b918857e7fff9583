// cmd/console/scan.go
package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"ota-console/internal/config"
	"ota-console/internal/discovery"
)

// scanDevices lists serial ports (target "serial") or probes a CIDR range
// for the device port and prints what answered
func scanDevices(ctx context.Context, cfg *config.Config, target string, out io.Writer, logger *zap.Logger) error {
	manager := discovery.NewScannerManager(logger)

	var scannerType string
	if target == "serial" {
		scannerType = "serial"
		manager.RegisterScanner(discovery.NewSerialScanner(discovery.SerialConfig{
			BaudRate: cfg.Device.Serial.BaudRate,
			Timeout:  cfg.Device.ConnectTimeout,
			Probe:    true,
		}, logger))
	} else {
		scannerType = "tcp"
		manager.RegisterScanner(discovery.NewTCPScanner(discovery.TCPConfig{
			Network: target,
			Port:    cfg.Device.Port,
		}, logger))
	}

	candidates, err := manager.ScanByType(ctx, scannerType)
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		fmt.Fprintln(out, "[scan] no devices found")
		return nil
	}

	for _, c := range candidates {
		status := "no reply"
		switch {
		case c.Responsive():
			status = "device"
		case c.Reply != "":
			status = fmt.Sprintf("replied %q", c.Reply)
		case c.Err != nil:
			status = c.Err.Error()
		}
		fmt.Fprintf(out, "[scan] %-24s %s\n", c.Address, status)
	}
	return nil
}
