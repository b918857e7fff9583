package ota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/protocol"
)

// Conn is the part of a session the engine drives
type Conn interface {
	WriteLine(ctx context.Context, text string) error
	ReadReply(ctx context.Context, max int) (protocol.Reply, error)
	Write(ctx context.Context, data []byte) error
}

// Engine runs the header handshake, payload stream and CRC footer.
//
// An Engine runs one transfer at a time; it is not safe for concurrent use.
type Engine struct {
	config Config
	state  model.TransferState
	now    func() time.Time
}

// NewEngine creates an Engine with the given options.
//
// Example:
//
//	engine := ota.NewEngine(ota.WithLogger(logger))
//	stats, err := engine.Transfer(ctx, sess, img)
func NewEngine(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine{
		config: cfg,
		state:  model.TransferStateIdle,
		now:    time.Now,
	}
}

// State returns the state the last transfer reached
func (e *Engine) State() model.TransferState {
	return e.state
}

// ChunkSize returns the configured payload write size
func (e *Engine) ChunkSize() int {
	return e.config.ChunkSize
}

// Transfer sends img over conn.
//
// Failures come back as *model.OpError:
//   - KindProtocolRejection when the header reply is not exactly ACK; no
//     payload or footer byte has been written.
//   - KindTransport when a write or read fails; the session is left in an
//     unknown state and should be discarded.
func (e *Engine) Transfer(ctx context.Context, conn Conn, img *model.FirmwareImage) (*model.TransferStats, error) {
	if img == nil {
		return nil, fmt.Errorf("firmware image cannot be nil")
	}

	header := model.NewTransferHeader(img)
	logger := e.config.Logger.With(
		zap.String("firmware", img.Name()),
		zap.Int("size", header.Size),
		zap.String("crc32", fmt.Sprintf("0x%08X", header.CRC32)),
	)

	e.state = model.TransferStateIdle

	// Handshake
	if err := conn.WriteLine(ctx, header.String()); err != nil {
		return nil, e.fail("send header", err)
	}
	e.state = model.TransferStateHeaderSent

	reply, err := conn.ReadReply(ctx, e.config.AckBufferSize)
	if err != nil {
		return nil, e.fail("read header reply", err)
	}

	ack := model.ClassifyAck(reply.Text)
	if !ack.Accepted() {
		e.state = model.TransferStateRejected
		logger.Warn("Header rejected", zap.String("reply", ack.Raw), zap.String("kind", string(ack.Kind)))
		return nil, model.NewOpError(model.KindProtocolRejection, "ota header", &model.RejectedError{
			Header: header,
			Ack:    ack,
		})
	}

	logger.Debug("Header acknowledged")

	// Stream
	e.state = model.TransferStateStreaming
	start := e.now()

	chunks, err := e.stream(ctx, conn, img.Data(), start)
	if err != nil {
		return nil, e.fail("stream", err)
	}

	if err := conn.Write(ctx, Footer(header.CRC32)); err != nil {
		return nil, e.fail("send footer", err)
	}
	e.state = model.TransferStateFooterSent

	stats := model.NewTransferStats(header.Size, chunks, e.now().Sub(start))
	e.state = model.TransferStateComplete

	e.reportProgress(Progress{
		State:       e.state,
		Chunk:       chunks,
		TotalChunks: chunks,
		BytesSent:   header.Size,
		TotalBytes:  header.Size,
		Percentage:  100,
		Elapsed:     stats.Elapsed,
	})

	logger.Info("Upload complete",
		zap.Int("chunks", chunks),
		zap.Duration("elapsed", stats.Elapsed),
		zap.Float64("kb_per_second", stats.KBPerSecond()),
	)
	return stats, nil
}

// stream writes data in order as ChunkSize pieces, the last one holding
// the remainder. It returns the number of chunks written.
func (e *Engine) stream(ctx context.Context, conn Conn, data []byte, start time.Time) (int, error) {
	size := e.config.ChunkSize
	total := ChunkCount(len(data), size)

	chunk := 0
	for offset := 0; offset < len(data); offset += size {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}

		if err := conn.Write(ctx, data[offset:end]); err != nil {
			return chunk, fmt.Errorf("chunk %d/%d at offset %d: %w", chunk+1, total, offset, err)
		}
		chunk++

		e.reportProgress(Progress{
			State:       model.TransferStateStreaming,
			Chunk:       chunk,
			TotalChunks: total,
			BytesSent:   end,
			TotalBytes:  len(data),
			Percentage:  float64(end) / float64(len(data)) * 100,
			Elapsed:     e.now().Sub(start),
		})
	}

	return chunk, nil
}

func (e *Engine) fail(op string, err error) error {
	e.state = model.TransferStateIOError
	e.config.Logger.Error("Transfer aborted",
		zap.String("op", op),
		zap.Error(err),
	)
	return model.NewOpError(model.KindTransport, op, err)
}

func (e *Engine) reportProgress(p Progress) {
	if e.config.ProgressCallback != nil {
		e.config.ProgressCallback(p)
	}
}
