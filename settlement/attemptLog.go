package settlement

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lebrqksd-bot/lebrqapp-sub005/config"
	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

// AttemptLog is the gorm-backed AttemptRecorder. Every row moves
// STARTED -> SUCCEEDED/FAILED; an attempt never skips STARTED. DB being
// down must never block a settlement operation, so all writes are
// nil-guarded and logged on failure only.
type AttemptLog struct {
	getDB  func() *gorm.DB
	logger *logrus.Logger
}

// NewAttemptLog takes a DB provider rather than a handle because the
// database connects in the background after the server is listening.
func NewAttemptLog(getDB func() *gorm.DB, logger *logrus.Logger) *AttemptLog {
	return &AttemptLog{getDB: getDB, logger: logger}
}

func (l *AttemptLog) Begin(ctx context.Context, attempt models.SettlementAttempt) {
	if l == nil {
		return
	}
	db := l.getDB()
	if db == nil {
		return
	}
	attempt.Status = models.AttemptStatusStarted
	if err := db.WithContext(ctx).Create(&attempt).Error; err != nil {
		config.LogError(l.logger, "attemptLog.go", "Begin", "Create", attempt.AttemptId, err)
	}
}

func (l *AttemptLog) MarkSucceeded(ctx context.Context, attemptId string) {
	if l == nil {
		return
	}
	db := l.getDB()
	if db == nil {
		return
	}
	err := db.WithContext(ctx).Model(&models.SettlementAttempt{}).
		Where("attempt_id = ?", attemptId).
		Updates(map[string]interface{}{"status": models.AttemptStatusSucceeded, "last_error": nil}).Error
	if err != nil {
		config.LogError(l.logger, "attemptLog.go", "MarkSucceeded", "Updates", attemptId, err)
	}
}

func (l *AttemptLog) MarkFailed(ctx context.Context, attemptId string, opErr error) {
	if l == nil {
		return
	}
	db := l.getDB()
	if db == nil {
		return
	}
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	err := db.WithContext(ctx).Model(&models.SettlementAttempt{}).
		Where("attempt_id = ?", attemptId).
		Updates(map[string]interface{}{"status": models.AttemptStatusFailed, "last_error": &msg}).Error
	if err != nil {
		config.LogError(l.logger, "attemptLog.go", "MarkFailed", "Updates", attemptId, err)
	}
}
