// internal/model/device.go
package model

// ConnectionType represents how the device is connected
type ConnectionType string

const (
	ConnectionTypeTCP    ConnectionType = "TCP"
	ConnectionTypeSerial ConnectionType = "SERIAL"
)

// Reply tokens the device firmware answers with
const (
	ReplyOK     = "OK"
	ReplyAck    = "ACK"
	ReplyNack   = "NACK"
	ReplyDenied = "DENIED"
	ReplyPong   = "PONG"
	ReplyBadFmt = "BADFMT"
	ReplyWhat   = "WHAT?"
)

// Commands the console sends on its own behalf
const (
	CommandAuth    = "AUTH"
	CommandOTA     = "OTA"
	CommandVersion = "version"
	CommandPing    = "PING"
)
