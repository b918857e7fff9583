// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/protocol"
	"ota-console/internal/session"
)

// DeviceScanner finds devices reachable over one kind of link
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*Candidate, error)
	GetScannerType() string
	IsAvailable() bool
}

// Candidate is an address that may host a device
type Candidate struct {
	ConnectionType model.ConnectionType
	Address        string
	// Reply is what the address answered to PING, empty when it did not answer
	Reply string
	Err   error
}

// Responsive reports whether the candidate answered PING like the device firmware
func (c *Candidate) Responsive() bool {
	return c.Reply == model.ReplyPong
}

// ScannerManager runs the registered scanners
type ScannerManager struct {
	scanners map[string]DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger,
	}
}

// RegisterScanner registers a device scanner
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Debug("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and
// skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) []*Candidate {
	var all []*Candidate

	for _, scannerType := range sm.types() {
		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		candidates, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		all = append(all, candidates...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("candidates", len(candidates)),
		)
	}

	return all
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*Candidate, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	return scanner.Scan(ctx)
}

func (sm *ScannerManager) types() []string {
	types := make([]string, 0, len(sm.scanners))
	for scannerType := range sm.scanners {
		types = append(types, scannerType)
	}
	sort.Strings(types)
	return types
}

// probe opens t, sends PING and returns the reply text. The transport is
// closed before returning.
func probe(ctx context.Context, t protocol.Transport, logger *zap.Logger) (string, error) {
	if err := t.Open(ctx); err != nil {
		return "", err
	}

	sess := session.New(t, session.DefaultReplyBufferSize, logger)
	defer sess.Close()

	reply, err := sess.SendLine(ctx, model.CommandPing)
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}
