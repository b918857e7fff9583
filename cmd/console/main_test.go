package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"ota-console/internal/config"
	"ota-console/internal/devicesim"
	"ota-console/internal/model"
)

func testConfig(t *testing.T, addr string) *config.Config {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %s: %v", addr, err)
	}
	port, _ := strconv.Atoi(portStr)

	return &config.Config{
		Device: config.DeviceConfig{
			Host:             host,
			Port:             port,
			Token:            "hunter2",
			Transport:        config.TransportTCP,
			ConnectTimeout:   2 * time.Second,
			ReconnectTimeout: 2 * time.Second,
			ReplyBufferSize:  256,
		},
		OTA: config.OTAConfig{
			ChunkSize:     256,
			AckBufferSize: 64,
			RebootDelay:   0,
			VerifyVersion: true,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "console", Output: "stderr"},
		App:     config.AppConfig{Prompt: "LoPy> "},
	}
}

func startSimulator(t *testing.T, cfg devicesim.Config) *devicesim.Server {
	t.Helper()
	sim := devicesim.NewServer(cfg, zaptest.NewLogger(t))
	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("start simulator: %v", err)
	}
	t.Cleanup(func() { sim.Close() })
	return sim
}

func TestRun_Session(t *testing.T) {
	sim := startSimulator(t, devicesim.Config{Token: "hunter2", Version: "1.0.0"})

	data := bytes.Repeat([]byte{0x5a, 0xa5, 0x01}, 700)
	path := filepath.Join(t.TempDir(), "lopy4.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write firmware: %v", err)
	}

	input := strings.Join([]string{
		"PING",
		"version",
		"/ota " + filepath.Join(t.TempDir(), "missing.bin"),
		"/ota " + path,
		"version",
		"/quit",
		"PING",
	}, "\n") + "\n"

	var out bytes.Buffer
	app, err := NewApplication(testConfig(t, sim.Addr()), strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}

	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	text := out.String()
	want := []string{
		"LoPy4: PONG",
		"LoPy4: 1.0.0",
		"[err] file not found",
		"[OTA] lopy4.bin  2100 bytes",
		"[OTA] upload complete",
		"[OTA] device reports version: " + devicesim.VersionFor(data),
		"LoPy4: " + devicesim.VersionFor(data),
		"[console] bye.",
	}
	for _, w := range want {
		if !strings.Contains(text, w) {
			t.Errorf("output missing %q\n%s", w, text)
		}
	}
	if strings.Count(text, "LoPy4: PONG") != 1 {
		t.Errorf("input after /quit was forwarded:\n%s", text)
	}
	if sim.Updates() != 1 {
		t.Errorf("simulator updates = %d, want 1", sim.Updates())
	}
}

func TestRun_RejectedUpload(t *testing.T) {
	sim := startSimulator(t, devicesim.Config{Token: "hunter2", RejectOTA: true})

	path := filepath.Join(t.TempDir(), "fw.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write firmware: %v", err)
	}

	var out bytes.Buffer
	app, err := NewApplication(testConfig(t, sim.Addr()), strings.NewReader("/ota "+path+"\nPING\n"), &out)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, `[OTA] header rejected (device replied "NACK")`) {
		t.Errorf("missing rejection message:\n%s", text)
	}
	if !strings.Contains(text, "LoPy4: PONG") {
		t.Errorf("session unusable after rejection:\n%s", text)
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	app, err := NewApplication(testConfig(t, addr), strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}

	err = app.Run(context.Background())
	if !model.IsKind(err, model.KindConnection) {
		t.Fatalf("Run error = %v, want connection kind", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	sim := startSimulator(t, devicesim.Config{Token: "hunter2"})

	// a pipe nobody writes to keeps the prompt waiting for input
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer pw.Close()

	var out bytes.Buffer
	app, err := NewApplication(testConfig(t, sim.Addr()), pr, &out)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if !strings.Contains(out.String(), "[console] bye.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestIsQuit(t *testing.T) {
	for _, line := range []string{"/q", "/quit", "exit", "EXIT", "/Q"} {
		if !isQuit(line) {
			t.Errorf("isQuit(%q) = false", line)
		}
	}
	for _, line := range []string{"quit", "/ota x", "exit now"} {
		if isQuit(line) {
			t.Errorf("isQuit(%q) = true", line)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{Device: config.DeviceConfig{Host: "192.168.10.125", Port: 8080, Token: "hunter2"}}

	applyFlags(cfg, "10.1.1.1", 0, "")
	if cfg.Device.Host != "10.1.1.1" || cfg.Device.Port != 8080 || cfg.Device.Token != "hunter2" {
		t.Errorf("device = %+v", cfg.Device)
	}

	applyFlags(cfg, "", 9001, "other")
	if cfg.Device.Port != 9001 || cfg.Device.Token != "other" {
		t.Errorf("device = %+v", cfg.Device)
	}
}

func TestScanDevices(t *testing.T) {
	sim := startSimulator(t, devicesim.Config{})
	cfg := testConfig(t, sim.Addr())

	var out bytes.Buffer
	if err := scanDevices(context.Background(), cfg, "127.0.0.1/32", &out, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("scanDevices: %v", err)
	}
	if !strings.Contains(out.String(), sim.Addr()) || !strings.Contains(out.String(), "device") {
		t.Errorf("output = %q", out.String())
	}

	if err := scanDevices(context.Background(), cfg, "bogus", &out, zaptest.NewLogger(t)); err == nil {
		t.Error("scan of an invalid range succeeded")
	}
}
