// cmd/devicesim/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ota-console/internal/config"
	"ota-console/internal/devicesim"
	"ota-console/internal/utils"
)

// Serves the device's line protocol and OTA receive path on localhost so
// the console can be exercised without hardware.
func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Listen address")
	token := flag.String("token", "hunter2", "Token accepted by AUTH")
	version := flag.String("version", "1.0.0", "Version reported before the first update")
	reject := flag.Bool("reject", false, "Answer NACK to every OTA header")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger, err := utils.NewLogger(&config.LoggingConfig{
		Level:  *level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.CloseLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := devicesim.NewServer(devicesim.Config{
		Addr:      *addr,
		Token:     *token,
		Version:   *version,
		RejectOTA: *reject,
	}, logger)

	if err := server.Start(ctx); err != nil {
		logger.Fatal("Failed to start device simulator", zap.Error(err))
	}

	<-ctx.Done()
	server.Close()
	logger.Info("Device simulator stopped", zap.Int("updates", server.Updates()))
}
