package workflow

import (
	"github.com/charmbracelet/log"

	"github.com/desertthunder/spc/internal/models"
)

// Observer is notified of instance transitions after they are persisted.
type Observer interface {
	OnPhase(cp *models.Checkpoint)
	OnContinue(prev, next *models.Checkpoint)
	OnFailed(cp *models.Checkpoint, err error)
}

// NoopObserver ignores every notification.
type NoopObserver struct{}

func (NoopObserver) OnPhase(*models.Checkpoint)         {}
func (NoopObserver) OnContinue(_, _ *models.Checkpoint) {}
func (NoopObserver) OnFailed(*models.Checkpoint, error) {}

// LoggingObserver writes transitions to a [log.Logger].
type LoggingObserver struct {
	logger *log.Logger
}

func NewLoggingObserver(logger *log.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnPhase(cp *models.Checkpoint) {
	o.logger.Info("phase", "instance", cp.InstanceID, "generation", cp.Generation, "phase", cp.Phase, "attempt", cp.Attempt)
}

func (o *LoggingObserver) OnContinue(prev, next *models.Checkpoint) {
	o.logger.Info("continued as new", "instance", next.InstanceID, "from", prev.Generation, "to", next.Generation, "result", prev.LastResult)
}

func (o *LoggingObserver) OnFailed(cp *models.Checkpoint, err error) {
	o.logger.Error("instance failed", "instance", cp.InstanceID, "generation", cp.Generation, "phase", cp.Phase, "error", err)
}
