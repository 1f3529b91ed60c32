package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Host supervises one goroutine per running instance.
type Host struct {
	store  Store
	orch   *Orchestrator
	clock  Clock
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// NewHost creates a Host running instances with orch.
func NewHost(store Store, orch *Orchestrator, logger *log.Logger) *Host {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		store:  store,
		orch:   orch,
		clock:  orch.clock,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*run),
	}
}

// Start launches the cleanup instance for input.State.
//
// A running instance is returned unchanged. A failed or terminated one is replaced by a fresh
// generation with the new input. Input without contributors is rejected here even though the
// cleanup activity itself accepts it.
func (h *Host) Start(ctx context.Context, input models.WorkflowInput) (*models.Checkpoint, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if len(input.Contributors) == 0 {
		return nil, fmt.Errorf("%w: at least one contributor is required", shared.ErrInvalidInput)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, shared.ErrHostClosed
	}

	id := models.InstanceID(input.State)
	existing, err := h.store.Get(ctx, id)
	switch {
	case err == nil && !existing.Status.Terminal():
		h.launch(id, false)
		return existing, nil
	case err != nil && !errors.Is(err, shared.ErrInstanceNotFound):
		return nil, err
	}

	cp := &models.Checkpoint{
		InstanceID:  id,
		Generation:  1,
		RunID:       shared.GenerateID(),
		Phase:       models.PhaseRefreshingToken,
		Status:      models.StatusRunning,
		Input:       input.Clone(),
		LogicalTime: h.clock.Now(),
	}
	if existing != nil {
		cp.Generation = existing.Generation + 1
	}

	if err := h.store.Replace(ctx, cp); err != nil {
		return nil, err
	}
	if err := h.orch.record(ctx, cp, models.EventStarted, input.PlaylistID); err != nil {
		return nil, err
	}

	h.logger.Info("instance started", "instance", id, "generation", cp.Generation, "playlist", input.PlaylistID)
	h.launch(id, true)
	return cp, nil
}

// Recover resumes every running instance found in the store and returns how many were launched.
func (h *Host) Recover(ctx context.Context) (int, error) {
	checkpoints, err := h.store.List(ctx, models.StatusRunning)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, shared.ErrHostClosed
	}

	n := 0
	for _, cp := range checkpoints {
		if h.launch(cp.InstanceID, false) {
			h.logger.Info("instance recovered", "instance", cp.InstanceID, "generation", cp.Generation, "phase", cp.Phase)
			n++
		}
	}
	return n, nil
}

// launch starts the goroutine for id unless one is registered and replace is false. Callers hold h.mu.
//
// A replaced goroutine is cancelled and the new one waits for it to exit before driving id, so at
// most one goroutine advances an instance at a time.
func (h *Host) launch(id string, replace bool) bool {
	prev, ok := h.runs[id]
	if ok && !replace {
		return false
	}
	if prev != nil {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(h.ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	h.runs[id] = r
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		defer close(r.done)
		defer func() {
			h.mu.Lock()
			if h.runs[id] == r {
				delete(h.runs, id)
			}
			h.mu.Unlock()
			cancel()
		}()

		if prev != nil {
			select {
			case <-prev.done:
			case <-ctx.Done():
				return
			}
		}

		if err := h.orch.Run(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("instance stopped", "instance", id, "error", err)
		}
	}()
	return true
}

// Running reports whether a goroutine is driving id.
func (h *Host) Running(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.runs[id]
	return ok
}

// Terminate stops id and marks it terminated with reason. A finished instance is returned unchanged.
func (h *Host) Terminate(ctx context.Context, id, reason string) (*models.Checkpoint, error) {
	cp, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp.Status.Terminal() {
		return cp, nil
	}

	h.mu.Lock()
	r := h.runs[id]
	h.mu.Unlock()

	if r != nil {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for %s to stop", shared.ErrTimeout, id)
		}
	}

	// the goroutine may have advanced the checkpoint before it stopped
	cp, err = h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp.Status.Terminal() {
		return cp, nil
	}

	if reason == "" {
		reason = "terminated"
	}
	cp.Status = models.StatusTerminated
	cp.Error = reason
	cp.WakeAt = nil
	if err := h.store.Save(ctx, cp); err != nil {
		return nil, err
	}
	if err := h.orch.record(ctx, cp, models.EventTerminated, reason); err != nil {
		return nil, err
	}

	h.logger.Info("instance terminated", "instance", id, "reason", reason)
	return cp, nil
}

// Get returns the checkpoint of id.
func (h *Host) Get(ctx context.Context, id string) (*models.Checkpoint, error) {
	return h.store.Get(ctx, id)
}

// List returns instances with status, or all of them when status is empty.
func (h *Host) List(ctx context.Context, status models.Status) ([]*models.Checkpoint, error) {
	return h.store.List(ctx, status)
}

// History returns the events of id's current generation.
func (h *Host) History(ctx context.Context, id string) ([]models.HistoryEvent, error) {
	if _, err := h.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return h.store.History(ctx, id)
}

// Shutdown stops every instance goroutine and waits for them to return.
//
// Checkpoints stay running in the store so that [Host.Recover] resumes them on the next start.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: instances still running", shared.ErrTimeout)
	}
}
