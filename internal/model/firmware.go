// internal/model/firmware.go
package model

import (
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
)

// FirmwareImage is a firmware binary held in memory for one transfer.
// The checksum is computed once at construction; the image is not
// modified afterwards.
type FirmwareImage struct {
	name  string
	data  []byte
	crc32 uint32
}

// NewFirmwareImage wraps data and computes its IEEE CRC32.
func NewFirmwareImage(name string, data []byte) *FirmwareImage {
	return &FirmwareImage{
		name:  name,
		data:  data,
		crc32: crc32.ChecksumIEEE(data),
	}
}

// Name returns the file name the image was loaded from
func (f *FirmwareImage) Name() string { return f.name }

// Size returns the image length in bytes
func (f *FirmwareImage) Size() int { return len(f.data) }

// CRC32 returns the checksum computed at load time
func (f *FirmwareImage) CRC32() uint32 { return f.crc32 }

// Data returns the raw image bytes. Callers must not modify the slice.
func (f *FirmwareImage) Data() []byte { return f.data }

// TransferHeader is the preamble line announcing an upcoming stream
type TransferHeader struct {
	Size  int
	CRC32 uint32
}

// NewTransferHeader builds the header for img
func NewTransferHeader(img *FirmwareImage) TransferHeader {
	return TransferHeader{Size: img.Size(), CRC32: img.CRC32()}
}

// String renders the header line without its terminator, e.g. "OTA 1 e8b7be43"
func (h TransferHeader) String() string {
	return fmt.Sprintf("%s %d %08x", CommandOTA, h.Size, h.CRC32)
}

// ParseTransferHeader parses "OTA <size> <crc>" as the device firmware does:
// decimal size, hexadecimal checksum in either case.
func ParseTransferHeader(line string) (TransferHeader, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != CommandOTA {
		return TransferHeader{}, fmt.Errorf("malformed header %q", line)
	}

	size, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return TransferHeader{}, fmt.Errorf("invalid size %q: %w", fields[1], err)
	}

	crc, err := strconv.ParseUint(fields[2], 16, 32)
	if err != nil {
		return TransferHeader{}, fmt.Errorf("invalid crc %q: %w", fields[2], err)
	}

	return TransferHeader{Size: int(size), CRC32: uint32(crc)}, nil
}

// AckKind classifies the device's reply to a transfer header
type AckKind string

const (
	AckKindAck   AckKind = "ACK"
	AckKindNack  AckKind = "NACK"
	AckKindOther AckKind = "OTHER"
)

// Ack is the device's reply to a transfer header
type Ack struct {
	Raw  string
	Kind AckKind
}

// ClassifyAck classifies a trimmed reply. Only the exact token ACK is an
// acknowledgment; "ACK2" or "ACK " prefixes are not.
func ClassifyAck(reply string) Ack {
	switch reply {
	case ReplyAck:
		return Ack{Raw: reply, Kind: AckKindAck}
	case ReplyNack:
		return Ack{Raw: reply, Kind: AckKindNack}
	default:
		return Ack{Raw: reply, Kind: AckKindOther}
	}
}

// Accepted reports whether the ack authorizes streaming
func (a Ack) Accepted() bool {
	return a.Kind == AckKindAck
}
