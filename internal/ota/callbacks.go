package ota

import (
	"time"

	"ota-console/internal/model"
)

// Progress contains information about an ongoing transfer.
type Progress struct {
	// State is the engine state when the report was taken
	State model.TransferState

	// Chunk is the number of chunks written so far
	Chunk int

	// TotalChunks is the number of chunks the image splits into
	TotalChunks int

	// BytesSent is the number of payload bytes written so far
	BytesSent int

	// TotalBytes is the image size
	TotalBytes int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// Elapsed is the time since streaming started
	Elapsed time.Duration
}

// ProgressCallback is called during streaming to report progress.
// Implementations should return quickly; the next chunk is not written
// until the callback returns.
type ProgressCallback func(Progress)
