package ota

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"ota-console/internal/model"
)

// FooterSize is the length of the CRC footer following the payload
const FooterSize = 4

// LoadImage reads a firmware file fully into memory and checksums it
func LoadImage(path string) (*model.FirmwareImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read firmware: %w", err)
	}
	return model.NewFirmwareImage(filepath.Base(path), data), nil
}

// Footer encodes crc as the 4-byte little-endian trailer
func Footer(crc uint32) []byte {
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer, crc)
	return footer
}

// ChunkCount returns how many writes of at most chunkSize cover size bytes
func ChunkCount(size, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return (size + chunkSize - 1) / chunkSize
}
