// Package ota pushes a firmware image to the device over an open session
// and confirms the device came back with it.
//
// The wire exchange is:
//
//	-> OTA <size> <crc32 as 8 hex digits>\n
//	<- ACK
//	-> <size> raw bytes, written in ChunkSize pieces
//	-> 4 bytes, CRC32 little-endian
//
// Anything other than the exact reply ACK ends the transfer before a single
// payload byte is written. There is no per-chunk acknowledgment; the device
// checks the footer against its own running CRC and reboots on a match.
//
// After a complete transfer a Watcher waits for the reboot, opens a fresh
// session and asks the device for its version.
package ota
