package diagnosis

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raglens/backend/internal/metrics"
	"github.com/raglens/backend/pkg/logger"
)

const (
	topKMin = 1
	topKMax = 20
)

// Tuner exposes the runtime parameters actions are allowed to touch.
type Tuner interface {
	TopK() int
	SetTopK(k int)
}

// Applier executes corrective actions. auto_safe actions run
// unattended, needs_approval actions require an explicit approval
// flag, and manual actions are never applied by machine.
type Applier struct {
	tuner Tuner
	log   *zap.Logger
}

func NewApplier(tuner Tuner) *Applier {
	return &Applier{
		tuner: tuner,
		log:   logger.Named("applier"),
	}
}

func (a *Applier) Apply(action Action, approved bool) error {
	switch action.ActionType {
	case ActionAutoSafe:
	case ActionNeedsApproval:
		if !approved {
			metrics.DiagnosisActionsApplied.WithLabelValues(action.ActionType, "rejected").Inc()
			return fmt.Errorf("action %s requires approval before it can be applied", action.ID)
		}
	default:
		metrics.DiagnosisActionsApplied.WithLabelValues(action.ActionType, "rejected").Inc()
		return fmt.Errorf("action %s is %s and cannot be applied automatically", action.ID, action.ActionType)
	}

	change, ok := action.ParameterChanges["top_k"]
	if !ok {
		metrics.DiagnosisActionsApplied.WithLabelValues(action.ActionType, "rejected").Inc()
		return fmt.Errorf("action %s has no applicable parameter changes", action.ID)
	}

	if change.To < topKMin || change.To > topKMax {
		metrics.DiagnosisActionsApplied.WithLabelValues(action.ActionType, "rejected").Inc()
		return fmt.Errorf("top_k %d out of range [%d, %d]", change.To, topKMin, topKMax)
	}

	previous := a.tuner.TopK()
	a.tuner.SetTopK(change.To)

	metrics.DiagnosisActionsApplied.WithLabelValues(action.ActionType, "applied").Inc()
	a.log.Info("Applied corrective action",
		zap.String("action_id", action.ID),
		zap.Int("previous_top_k", previous),
		zap.Int("new_top_k", change.To),
	)

	return nil
}
