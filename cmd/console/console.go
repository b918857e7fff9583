// cmd/console/console.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/session"
)

// console is the interactive prompt bound to one live session at a time
type console struct {
	app   *Application
	sess  *session.Session
	lines <-chan string
}

func newConsole(app *Application, sess *session.Session) *console {
	return &console{
		app:   app,
		sess:  sess,
		lines: readLines(app.in),
	}
}

// readLines feeds input lines to the prompt so that a pending read does not
// keep the prompt from noticing cancellation
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func (c *console) close() {
	if c.sess != nil {
		c.sess.Close()
	}
}

func (c *console) loop(ctx context.Context) {
	out := c.app.out
	for {
		fmt.Fprint(out, c.app.config.App.Prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return
		case l, ok := <-c.lines:
			if !ok {
				fmt.Fprintln(out)
				return
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if isQuit(line) {
			return
		}
		if strings.HasPrefix(strings.ToLower(line), "/ota ") {
			c.update(ctx, strings.TrimSpace(line[len("/ota "):]))
			continue
		}

		c.forward(ctx, line)
	}
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "/q", "/quit", "exit":
		return true
	}
	return false
}

// forward sends a free-text command and prints the device's reply
func (c *console) forward(ctx context.Context, line string) {
	reply, err := c.sess.SendLine(ctx, line)
	if err != nil {
		fmt.Fprintf(c.app.out, "[err] %v\n", err)
		return
	}

	fmt.Fprintln(c.app.out, "LoPy4:", reply.Text)
	if reply.Truncated {
		fmt.Fprintln(c.app.out, "[warn] reply filled the receive buffer and may be cut short")
	}
}

// update runs /ota <path> and reports the outcome. Nothing here ends the
// prompt.
func (c *console) update(ctx context.Context, path string) {
	out := c.app.out

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		fmt.Fprintln(out, "[err] file not found")
		return
	}

	result, err := c.app.updater.Update(ctx, c.sess, path)
	if result != nil {
		op := result.Operation
		fmt.Fprintf(out, "[OTA] %s  %d bytes  CRC 0x%08X\n", op.FirmwareName, op.Header.Size, op.Header.CRC32)
	}

	switch {
	case err == nil:
	case model.IsKind(err, model.KindProtocolRejection):
		var rejected *model.RejectedError
		if errors.As(err, &rejected) {
			fmt.Fprintf(out, "[OTA] header rejected (device replied %q)\n", rejected.Ack.Raw)
		} else {
			fmt.Fprintln(out, "[OTA] header rejected")
		}
		return
	case model.IsKind(err, model.KindTransport):
		fmt.Fprintf(out, "[OTA] transfer aborted: %v\n", err)
		fmt.Fprintln(out, "[OTA] connection state is unknown; reconnect before retrying")
		return
	default:
		fmt.Fprintf(out, "[err] %v\n", err)
		return
	}

	op := result.Operation
	fmt.Fprintln(out, "[OTA] upload complete – device will reboot")
	fmt.Fprintf(out, "[OTA] %d bytes in %.2fs (%.1f KB/s)\n",
		op.Stats.Bytes, op.Stats.Elapsed.Seconds(), op.Stats.KBPerSecond())

	switch {
	case op.Verified():
		fmt.Fprintf(out, "[OTA] device reports version: %s\n", *op.ReportedVersion)
	case op.VerifyError != nil:
		fmt.Fprintf(out, "[warn] could not verify new firmware: %v\n", op.VerifyError)
	}

	if result.Session != nil {
		c.app.logger.Debug("Switching to post-reboot session",
			zap.String("old_session", c.sess.ID().String()),
			zap.String("new_session", result.Session.ID().String()),
		)
		c.sess.Close()
		c.sess = result.Session
	}
}
