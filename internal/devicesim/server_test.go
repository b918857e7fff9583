package devicesim

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	server := NewServer(cfg, zaptest.NewLogger(t))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func dial(t *testing.T, server *Server) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", server.Addr(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) send(line string) string {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("write %q: %v", line, err)
	}
	return c.readLine()
}

func (c *client) readLine() string {
	c.t.Helper()
	reply, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return strings.TrimRight(reply, "\n")
}

func TestServer_Commands(t *testing.T) {
	server := startServer(t, Config{Token: "hunter2", Version: "1.2.3"})
	c := dial(t, server)

	tests := []struct {
		line string
		want string
	}{
		{"AUTH wrong", "DENIED"},
		{"AUTH hunter2", "OK"},
		{"PING", "PONG"},
		{"led_on", "led_on"},
		{"led_off", "led_off"},
		{"version", "1.2.3"},
		{"reboot now", "WHAT?"},
		{"OTA not-a-number", "BADFMT"},
	}

	for _, tt := range tests {
		if got := c.send(tt.line); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestServer_RejectsOversizedImage(t *testing.T) {
	server := startServer(t, Config{MaxImageSize: 16})
	c := dial(t, server)

	if got := c.send("OTA 17 00000000"); got != "NACK" {
		t.Errorf("oversized header -> %q, want NACK", got)
	}
	if got := c.send("PING"); got != "PONG" {
		t.Errorf("PING after NACK -> %q", got)
	}
}

func TestServer_AcceptsImage(t *testing.T) {
	server := startServer(t, Config{})
	c := dial(t, server)

	data := []byte("new firmware image")
	crc := crc32.ChecksumIEEE(data)

	if got := c.send(fmt.Sprintf("OTA %d %08x", len(data), crc)); got != "ACK" {
		t.Fatalf("header -> %q, want ACK", got)
	}

	footer := make([]byte, 4)
	binary.LittleEndian.PutUint32(footer, crc)
	if _, err := c.conn.Write(append(append([]byte(nil), data...), footer...)); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	// the device restarts and drops the updating connection
	if _, err := c.reader.ReadByte(); err == nil {
		t.Fatal("connection still served after update")
	}

	if server.Updates() != 1 {
		t.Errorf("Updates = %d, want 1", server.Updates())
	}
	if server.Version() != VersionFor(data) {
		t.Errorf("Version = %q, want %q", server.Version(), VersionFor(data))
	}

	after := dial(t, server)
	if got := after.send("version"); got != VersionFor(data) {
		t.Errorf("version after reboot = %q", got)
	}
}

func TestServer_CRCMismatchKeepsOldImage(t *testing.T) {
	server := startServer(t, Config{Version: "1.0.0"})
	c := dial(t, server)

	data := []byte("abc")
	if got := c.send(fmt.Sprintf("OTA %d %08x", len(data), crc32.ChecksumIEEE(data))); got != "ACK" {
		t.Fatalf("header -> %q, want ACK", got)
	}

	badFooter := []byte{0xde, 0xad, 0xbe, 0xef}
	if _, err := c.conn.Write(append([]byte("abc"), badFooter...)); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	if got := c.send("version"); got != "1.0.0" {
		t.Errorf("version after bad CRC = %q, want 1.0.0", got)
	}
	if server.Updates() != 0 {
		t.Errorf("Updates = %d, want 0", server.Updates())
	}
}

func TestServer_CloseDropsClients(t *testing.T) {
	server := NewServer(Config{}, zaptest.NewLogger(t))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c := dial(t, server)
	c.send("PING")

	if err := server.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.reader.ReadByte(); err == nil {
		t.Error("client still connected after Close")
	}
	if _, err := net.DialTimeout("tcp", server.Addr(), 200*time.Millisecond); err == nil {
		t.Error("listener still accepting after Close")
	}
}
