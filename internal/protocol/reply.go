// internal/protocol/reply.go
package protocol

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"
)

// Reply is one device response read with a bounded buffer
type Reply struct {
	// Text is the decoded reply with surrounding whitespace removed.
	Text string
	// Truncated is set when the read filled the buffer without reaching
	// a line terminator, so the device may have sent more than Text holds.
	Truncated bool
}

// HasPrefix reports whether the reply text starts with prefix
func (r Reply) HasPrefix(prefix string) bool {
	return strings.HasPrefix(r.Text, prefix)
}

// DecodeReply decodes raw bytes read into a buffer of size max. Invalid
// UTF-8 is replaced rather than rejected.
func DecodeReply(raw []byte, max int) Reply {
	truncated := len(raw) >= max && !bytes.HasSuffix(raw, []byte("\n"))

	text := string(raw)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, string(utf8.RuneError))
	}

	return Reply{
		Text:      strings.TrimSpace(text),
		Truncated: truncated,
	}
}

// ReadReply performs one read of at most max bytes from t and decodes it
func ReadReply(ctx context.Context, t Transport, max int) (Reply, error) {
	raw, err := t.Read(ctx, max)
	if err != nil {
		return Reply{}, err
	}
	return DecodeReply(raw, max), nil
}
