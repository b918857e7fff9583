// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationTypeOTA    OperationType = "OTA"
	OperationTypeVerify OperationType = "VERIFY_VERSION"
)

// TransferState represents where a firmware transfer is in its lifecycle
type TransferState string

const (
	TransferStateIdle       TransferState = "IDLE"
	TransferStateHeaderSent TransferState = "HEADER_SENT"
	TransferStateStreaming  TransferState = "STREAMING"
	TransferStateFooterSent TransferState = "FOOTER_SENT"
	TransferStateComplete   TransferState = "COMPLETE"
	TransferStateRejected   TransferState = "REJECTED"
	TransferStateIOError    TransferState = "IO_ERROR"
)

// IsTerminal checks if no further transition is possible
func (s TransferState) IsTerminal() bool {
	return s == TransferStateComplete ||
		s == TransferStateRejected ||
		s == TransferStateIOError
}

// TransferStats is the outcome of a completed stream
type TransferStats struct {
	Bytes          int           `json:"bytes"`
	Chunks         int           `json:"chunks"`
	Elapsed        time.Duration `json:"elapsed"`
	BytesPerSecond float64       `json:"bytes_per_second"`
}

// NewTransferStats computes throughput for size bytes sent in elapsed.
// A zero or negative elapsed time yields a throughput of 0.
func NewTransferStats(size, chunks int, elapsed time.Duration) *TransferStats {
	stats := &TransferStats{
		Bytes:   size,
		Chunks:  chunks,
		Elapsed: elapsed,
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		stats.BytesPerSecond = float64(size) / seconds
	}
	return stats
}

// KBPerSecond returns throughput in kilobytes per second
func (s *TransferStats) KBPerSecond() float64 {
	return s.BytesPerSecond / 1024
}

// OTAOperation records one /ota invocation from header to verification
type OTAOperation struct {
	ID              uuid.UUID      `json:"id"`
	FirmwareName    string         `json:"firmware_name"`
	Header          TransferHeader `json:"header"`
	State           TransferState  `json:"state"`
	Stats           *TransferStats `json:"stats,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ReportedVersion *string        `json:"reported_version,omitempty"`
	VerifyError     error          `json:"-"`
}

// NewOTAOperation starts a record for img
func NewOTAOperation(img *FirmwareImage) *OTAOperation {
	return &OTAOperation{
		ID:           uuid.New(),
		FirmwareName: img.Name(),
		Header:       NewTransferHeader(img),
		State:        TransferStateIdle,
		StartedAt:    time.Now(),
	}
}

// IsCompleted checks if the transfer reached a terminal state
func (op *OTAOperation) IsCompleted() bool {
	return op.State.IsTerminal()
}

// Uploaded checks if the device received the full image and footer
func (op *OTAOperation) Uploaded() bool {
	return op.State == TransferStateComplete
}

// Verified checks if the device reported a version after rebooting
func (op *OTAOperation) Verified() bool {
	return op.ReportedVersion != nil && op.VerifyError == nil
}
