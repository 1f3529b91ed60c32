package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
	"github.com/desertthunder/spc/internal/tasks"
)

// Store persists checkpoints and the history of their current generation.
type Store interface {
	Get(ctx context.Context, id string) (*models.Checkpoint, error)
	Save(ctx context.Context, cp *models.Checkpoint) error
	// Replace purges id's history and writes cp in one transaction.
	Replace(ctx context.Context, cp *models.Checkpoint) error
	List(ctx context.Context, status models.Status) ([]*models.Checkpoint, error)
	Append(ctx context.Context, ev *models.HistoryEvent) error
	History(ctx context.Context, id string) ([]models.HistoryEvent, error)
}

// Activities are the side-effecting steps an instance drives.
type Activities interface {
	RefreshToken(ctx context.Context, state string) error
	Cleanup(ctx context.Context, input models.WorkflowInput) (string, error)
}

// TaskActivities runs the activities implemented in the tasks package.
type TaskActivities struct {
	Refresher *tasks.Refresher
	Cleaner   *tasks.Cleaner
}

func (a TaskActivities) RefreshToken(ctx context.Context, state string) error {
	return a.Refresher.Refresh(ctx, state)
}

func (a TaskActivities) Cleanup(ctx context.Context, input models.WorkflowInput) (string, error) {
	return a.Cleaner.Cleanup(ctx, input)
}

// OrchestratorOpts contains configuration for an [Orchestrator].
type OrchestratorOpts struct {
	Interval time.Duration // Wait between cycles (default: 1h)
	Retry    RetryPolicy   // Cleanup retry policy (default: DefaultRetryPolicy)
	Clock    Clock         // Time source (default: SystemClock)
	Observer Observer      // Transition hooks (default: NoopObserver)
	Logger   *log.Logger
}

// Orchestrator advances a single instance from its persisted checkpoint.
type Orchestrator struct {
	store      Store
	activities Activities
	interval   time.Duration
	retry      RetryPolicy
	clock      Clock
	observer   Observer
	logger     *log.Logger
}

// NewOrchestrator creates an Orchestrator, filling defaults for unset options.
func NewOrchestrator(store Store, activities Activities, opts OrchestratorOpts) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Observer == nil {
		opts.Observer = NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Orchestrator{
		store:      store,
		activities: activities,
		interval:   opts.Interval,
		retry:      opts.Retry,
		clock:      opts.Clock,
		observer:   opts.Observer,
		logger:     opts.Logger,
	}
}

// Run drives instance id until it fails, is terminated, or ctx is done. It returns as soon as a
// step finishes the instance, so a later generation is never picked up by this call.
//
// Each step starts from the stored checkpoint, so Run resumes wherever a previous process stopped.
func (o *Orchestrator) Run(ctx context.Context, id string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cp, err := o.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if cp.Status.Terminal() {
			return nil
		}

		if err := o.step(ctx, cp); err != nil {
			return err
		}
		if cp.Status.Terminal() {
			return nil
		}
	}
}

func (o *Orchestrator) step(ctx context.Context, cp *models.Checkpoint) error {
	o.logger.Debug("step", "instance", cp.InstanceID, "generation", cp.Generation, "phase", cp.Phase, "attempt", cp.Attempt)

	switch cp.Phase {
	case models.PhaseRefreshingToken:
		return o.refresh(ctx, cp)
	case models.PhaseCleaningUp:
		return o.cleanup(ctx, cp)
	case models.PhaseWaiting:
		return o.wait(ctx, cp)
	default:
		return o.fail(ctx, cp, fmt.Errorf("%w: unknown phase %q", shared.ErrInvalidArgument, cp.Phase))
	}
}

func (o *Orchestrator) refresh(ctx context.Context, cp *models.Checkpoint) error {
	if err := o.activities.RefreshToken(ctx, cp.Input.State); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if rerr := o.record(ctx, cp, models.EventActivityFailed, "refresh token: "+err.Error()); rerr != nil {
			return rerr
		}
		return o.fail(ctx, cp, err)
	}

	if err := o.record(ctx, cp, models.EventActivityCompleted, "refresh token"); err != nil {
		return err
	}
	return o.enter(ctx, cp, models.PhaseCleaningUp, 0)
}

func (o *Orchestrator) cleanup(ctx context.Context, cp *models.Checkpoint) error {
	if cp.WakeAt != nil {
		if err := o.clock.SleepUntil(ctx, *cp.WakeAt); err != nil {
			return err
		}
		cp.WakeAt = nil
	}

	cp.Attempt++
	cp.LogicalTime = o.clock.Now()
	if err := o.store.Save(ctx, cp); err != nil {
		return err
	}

	result, err := o.activities.Cleanup(ctx, cp.Input)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := fmt.Sprintf("cleanup attempt %d: %v", cp.Attempt, err)
		if rerr := o.record(ctx, cp, models.EventActivityFailed, detail); rerr != nil {
			return rerr
		}
		if o.retry.Exhausted(cp.Attempt) {
			return o.fail(ctx, cp, fmt.Errorf("cleanup failed after %d attempts: %w", cp.Attempt, err))
		}

		// back-off counts from the failure, not from the start of the attempt
		cp.LogicalTime = o.clock.Now()
		wake := cp.LogicalTime.Add(o.retry.Delay(cp.Attempt))
		cp.WakeAt = &wake
		if err := o.store.Save(ctx, cp); err != nil {
			return err
		}
		return o.record(ctx, cp, models.EventRetryScheduled, wake.Format(time.RFC3339))
	}

	cp.LastResult = result
	cp.Error = ""
	if err := o.record(ctx, cp, models.EventActivityCompleted, result); err != nil {
		return err
	}

	return o.enter(ctx, cp, models.PhaseWaiting, o.interval)
}

func (o *Orchestrator) wait(ctx context.Context, cp *models.Checkpoint) error {
	wake := cp.LogicalTime.Add(o.interval)
	if cp.WakeAt != nil {
		wake = *cp.WakeAt
	}
	if err := o.clock.SleepUntil(ctx, wake); err != nil {
		return err
	}
	return o.continueAsNew(ctx, cp)
}

// continueAsNew replaces cp with the first checkpoint of the next generation, carrying the same input.
func (o *Orchestrator) continueAsNew(ctx context.Context, cp *models.Checkpoint) error {
	next := &models.Checkpoint{
		InstanceID:  cp.InstanceID,
		Generation:  cp.Generation + 1,
		RunID:       shared.GenerateID(),
		Phase:       models.PhaseRefreshingToken,
		Status:      models.StatusRunning,
		Input:       cp.Input.Clone(),
		LogicalTime: o.clock.Now(),
		LastResult:  cp.LastResult,
		CreatedAt:   cp.CreatedAt,
	}
	if err := o.store.Replace(ctx, next); err != nil {
		return err
	}

	detail := fmt.Sprintf("from generation %d (%s)", cp.Generation, cp.RunID)
	if err := o.record(ctx, next, models.EventContinuedAsNew, detail); err != nil {
		return err
	}
	o.observer.OnContinue(cp, next)
	return nil
}

// enter commits cp to phase, resetting the attempt counter. A positive timer schedules the
// wake-up relative to the committed LogicalTime.
func (o *Orchestrator) enter(ctx context.Context, cp *models.Checkpoint, phase models.Phase, timer time.Duration) error {
	cp.Phase = phase
	cp.Attempt = 0
	cp.LogicalTime = o.clock.Now()
	cp.WakeAt = nil
	if timer > 0 {
		wake := cp.LogicalTime.Add(timer)
		cp.WakeAt = &wake
	}
	if err := o.store.Save(ctx, cp); err != nil {
		return err
	}

	if err := o.record(ctx, cp, models.EventPhase, string(phase)); err != nil {
		return err
	}
	if cp.WakeAt != nil {
		if err := o.record(ctx, cp, models.EventTimerScheduled, cp.WakeAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}

	o.observer.OnPhase(cp)
	return nil
}

// fail ends the instance. Only store errors are returned.
func (o *Orchestrator) fail(ctx context.Context, cp *models.Checkpoint, cause error) error {
	cp.Status = models.StatusFailed
	cp.Error = cause.Error()
	cp.WakeAt = nil
	cp.LogicalTime = o.clock.Now()
	if err := o.store.Save(ctx, cp); err != nil {
		return errors.Join(cause, err)
	}

	if err := o.record(ctx, cp, models.EventFailed, cp.Error); err != nil {
		return err
	}
	o.observer.OnFailed(cp, cause)
	return nil
}

func (o *Orchestrator) record(ctx context.Context, cp *models.Checkpoint, kind models.EventKind, detail string) error {
	return o.store.Append(ctx, &models.HistoryEvent{
		InstanceID: cp.InstanceID,
		Generation: cp.Generation,
		RunID:      cp.RunID,
		Kind:       kind,
		Phase:      cp.Phase,
		Detail:     detail,
		CreatedAt:  o.clock.Now(),
	})
}
