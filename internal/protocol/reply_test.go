package protocol

import (
	"strings"
	"testing"
)

func TestDecodeReply(t *testing.T) {
	tests := []struct {
		name      string
		raw       []byte
		max       int
		want      string
		truncated bool
	}{
		{name: "ok line", raw: []byte("OK\n"), max: 256, want: "OK"},
		{name: "crlf and padding", raw: []byte("  ACK \r\n"), max: 64, want: "ACK"},
		{name: "no newline but short", raw: []byte("PONG"), max: 256, want: "PONG"},
		{name: "empty", raw: nil, max: 64, want: ""},
		{name: "filled buffer without newline", raw: []byte(strings.Repeat("x", 8)), max: 8, want: "xxxxxxxx", truncated: true},
		{name: "filled buffer ending in newline", raw: []byte("1234567\n"), max: 8, want: "1234567"},
		{name: "invalid utf8", raw: []byte{'v', 0xff, '1', '\n'}, max: 256, want: "v\uFFFD1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := DecodeReply(tt.raw, tt.max)
			if reply.Text != tt.want {
				t.Errorf("Text = %q, want %q", reply.Text, tt.want)
			}
			if reply.Truncated != tt.truncated {
				t.Errorf("Truncated = %v, want %v", reply.Truncated, tt.truncated)
			}
		})
	}
}

func TestReply_HasPrefix(t *testing.T) {
	reply := Reply{Text: "OK welcome"}
	if !reply.HasPrefix("OK") {
		t.Error("HasPrefix(OK) = false")
	}
	if reply.HasPrefix("DENIED") {
		t.Error("HasPrefix(DENIED) = true")
	}
}
