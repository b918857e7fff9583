// cmd/console/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"ota-console/internal/config"
	"ota-console/internal/model"
	"ota-console/internal/ota"
	"ota-console/internal/service"
	"ota-console/internal/session"
	"ota-console/internal/utils"
)

// Application represents the console application
type Application struct {
	config  *config.Config
	logger  *zap.Logger
	manager *session.Manager
	updater *service.OTAService

	in  io.Reader
	out io.Writer
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: ./config.yaml if present)")
	host := flag.String("host", "", "Device address (overrides LOPY_ADDR)")
	port := flag.Int("port", 0, "Device port (overrides LOPY_PORT)")
	token := flag.String("token", "", "Shared token (overrides LOPY_TOKEN)")
	scan := flag.String("scan", "", `Find devices instead of connecting: "serial" or a CIDR range such as 192.168.10.0/24`)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[err] %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *host, *port, *token)

	app, err := NewApplication(cfg, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[err] %v\n", err)
		os.Exit(1)
	}
	defer utils.CloseLogger(app.logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *scan != "" {
		if err := scanDevices(ctx, cfg, *scan, os.Stdout, app.logger); err != nil {
			fmt.Fprintf(os.Stderr, "[err] scan failed: %v\n", err)
			utils.CloseLogger(app.logger)
			os.Exit(1)
		}
		return
	}

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[err] cannot connect: %v\n", err)
		utils.CloseLogger(app.logger)
		os.Exit(1)
	}
}

// applyFlags overrides configuration with explicitly set flags and asks
// for the token on a terminal when none is configured
func applyFlags(cfg *config.Config, host string, port int, token string) {
	if host != "" {
		cfg.Device.Host = host
	}
	if port > 0 {
		cfg.Device.Port = port
	}
	if token != "" {
		cfg.Device.Token = token
	}

	if cfg.Device.Token == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Token: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err == nil {
			cfg.Device.Token = string(secret)
		}
	}
}

// NewApplication wires the session manager, transfer engine and reboot
// watcher from cfg
func NewApplication(cfg *config.Config, in io.Reader, out io.Writer) (*Application, error) {
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		config:  cfg,
		logger:  logger,
		manager: session.NewManager(&cfg.Device, logger),
		in:      in,
		out:     out,
	}
	app.updater = app.newOTAService()

	return app, nil
}

func (app *Application) newOTAService() *service.OTAService {
	engine := ota.NewEngine(
		ota.WithChunkSize(app.config.OTA.ChunkSize),
		ota.WithAckBufferSize(app.config.OTA.AckBufferSize),
		ota.WithProgressCallback(app.printProgress),
		ota.WithLogger(app.logger.With(zap.String("component", "ota"))),
	)

	var watcher *ota.Watcher
	if app.config.OTA.VerifyVersion {
		watcher = ota.NewWatcher(app.manager, ota.WatcherConfig{
			Token:            app.manager.Token(),
			RebootDelay:      app.config.OTA.RebootDelay,
			ReconnectTimeout: app.config.Device.ReconnectTimeout,
			Logger:           app.logger.With(zap.String("component", "reboot-watcher")),
		})
	}

	return service.NewOTAService(engine, watcher, app.logger)
}

// Run connects, authenticates once and serves the prompt until the operator
// quits or input ends. Only a failed initial connection is returned.
func (app *Application) Run(ctx context.Context) error {
	fmt.Fprintf(app.out, "[console] connecting to %s …\n", app.deviceName())

	sess, err := app.manager.ConnectAndAuthenticate(ctx, app.config.Device.ConnectTimeout)
	if err != nil {
		return err
	}
	app.logger.Info("Connected",
		zap.String("peer", sess.PeerAddr()),
		zap.Duration("timeout", sess.Timeout()),
		zap.Bool("authenticated", sess.Authenticated()),
	)

	console := newConsole(app, sess)
	defer console.close()

	console.loop(ctx)

	fmt.Fprintln(app.out, "[console] bye.")
	return nil
}

func (app *Application) deviceName() string {
	if app.config.IsSerial() {
		return app.config.Device.Serial.Port
	}
	return app.config.GetDeviceAddr()
}

func (app *Application) printProgress(p ota.Progress) {
	if p.State == model.TransferStateComplete {
		if p.TotalBytes > 0 {
			fmt.Fprintln(app.out)
		}
		return
	}
	fmt.Fprintf(app.out, "\r[OTA] %5.1f%%  chunk %d/%d", p.Percentage, p.Chunk, p.TotalChunks)
}
