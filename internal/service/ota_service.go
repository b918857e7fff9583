// internal/service/ota_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ota-console/internal/model"
	"ota-console/internal/ota"
	"ota-console/internal/session"
	"ota-console/internal/utils"
)

// UpdateResult is the outcome of one firmware update
type UpdateResult struct {
	Operation *model.OTAOperation
	// Session is the post-reboot session, set only when verification
	// succeeded. It supersedes the session the image was sent over.
	Session *session.Session
}

// OTAService runs a firmware update end to end: load, transfer, and
// post-reboot verification
type OTAService struct {
	engine        *ota.Engine
	watcher       *ota.Watcher
	verifyVersion bool
	logger        *zap.Logger
}

// NewOTAService creates a new OTA service instance. A nil watcher skips
// post-reboot verification.
func NewOTAService(engine *ota.Engine, watcher *ota.Watcher, logger *zap.Logger) *OTAService {
	return &OTAService{
		engine:        engine,
		watcher:       watcher,
		verifyVersion: watcher != nil,
		logger:        logger.With(zap.String("service", "ota-service")),
	}
}

// Update pushes the firmware at path over conn and, once the device has it,
// waits for the reboot and asks for the running version.
//
// The returned error is non-nil only when the image could not be read or
// the transfer did not complete. A failed verification is recorded on the
// operation as VerifyError and logged as a warning.
func (s *OTAService) Update(ctx context.Context, conn ota.Conn, path string) (*UpdateResult, error) {
	img, err := ota.LoadImage(path)
	if err != nil {
		return nil, err
	}

	operation := model.NewOTAOperation(img)
	result := &UpdateResult{Operation: operation}

	opLogger := utils.NewOperationLogger(s.logger, string(model.OperationTypeOTA), operation.ID.String())
	opLogger.Start(
		zap.String("firmware", img.Name()),
		zap.Int("size", img.Size()),
		zap.String("crc32", fmt.Sprintf("0x%08X", img.CRC32())),
	)

	stats, err := s.engine.Transfer(ctx, conn, img)
	operation.State = s.engine.State()
	if err != nil {
		opLogger.Error(err, zap.String("state", string(operation.State)))
		return result, err
	}

	completedAt := time.Now()
	operation.Stats = stats
	operation.CompletedAt = &completedAt
	opLogger.Success(
		zap.Int("chunks", stats.Chunks),
		zap.Float64("kb_per_second", stats.KBPerSecond()),
	)

	if !s.verifyVersion {
		return result, nil
	}

	result.Session = s.verify(ctx, operation)
	return result, nil
}

// verify records the rebooted device's version on operation and returns
// the new session. Failures are kept on the operation and never returned.
func (s *OTAService) verify(ctx context.Context, operation *model.OTAOperation) *session.Session {
	opLogger := utils.NewOperationLogger(s.logger, string(model.OperationTypeVerify), operation.ID.String())
	opLogger.Start()

	result, err := s.watcher.Watch(ctx)
	if err != nil {
		operation.VerifyError = err
		opLogger.Warn("Could not verify firmware after reboot", err)
		return nil
	}

	operation.ReportedVersion = &result.Version
	opLogger.Success(zap.String("version", result.Version))
	return result.Session
}
