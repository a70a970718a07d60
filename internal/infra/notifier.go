package infra

import (
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pactd/internal/domain"
)

// LogNotifier implements domain.Notifier by writing structured log
// events. It stands in for the notification UI, which lives outside this
// module.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyViolation(a domain.Agreement) {
	n.logger.Warn("agreement violated",
		zap.Int64("agreement_id", a.ID),
		zap.String("app", a.AppID),
		zap.Duration("agreed", a.Duration))
}

func (n *LogNotifier) NotifyCompletion(a domain.Agreement) {
	n.logger.Info("agreement honored",
		zap.Int64("agreement_id", a.ID),
		zap.String("app", a.AppID))
}

func (n *LogNotifier) NotifyThresholdExceeded(appID string, used, threshold time.Duration) {
	n.logger.Info("usage threshold exceeded",
		zap.String("app", appID),
		zap.Duration("used", used),
		zap.Duration("threshold", threshold))
}

func (n *LogNotifier) NotifyBlocked(appID string) {
	n.logger.Warn("blocked app in foreground", zap.String("app", appID))
}

// Ensure LogNotifier implements domain.Notifier.
var _ domain.Notifier = (*LogNotifier)(nil)
