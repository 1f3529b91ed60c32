// Package counter implements durable integer counters as serialized per-key actors.
//
// Each key is owned by one goroutine draining an unbounded FIFO mailbox, so operations
// on the same key apply strictly one at a time in arrival order while different keys
// proceed in parallel. State is loaded lazily from a [Store] and every mutation is
// persisted before the next operation on that key is processed.
package counter

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

// Op is a counter operation.
type Op string

const (
	OpAdd   Op = "add"
	OpReset Op = "reset"
	OpGet   Op = "get"
)

// ParseOp converts a name to an [Op].
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case OpAdd, OpReset, OpGet:
		return op, nil
	default:
		return "", fmt.Errorf("%w: unknown counter operation %q", shared.ErrInvalidArgument, s)
	}
}

// Store loads and persists counter values.
type Store interface {
	// Load returns the stored value and whether the counter exists.
	Load(ctx context.Context, key string) (int64, bool, error)
	// Save persists the value produced by a mutation.
	Save(ctx context.Context, m models.CounterMutation) error
}

type result struct {
	state models.CounterState
	err   error
}

type request struct {
	op     Op
	amount int64
	// reply is nil for fire-and-forget signals.
	reply chan result
}

// Registry owns the actor of every counter key.
type Registry struct {
	store  Store
	logger *log.Logger
	ctx    context.Context

	mu     sync.Mutex
	actors map[string]*actor
	closed bool
	wg     sync.WaitGroup
}

// NewRegistry creates a Registry persisting through store.
func NewRegistry(store Store, logger *log.Logger) *Registry {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Registry{
		store:  store,
		logger: logger,
		ctx:    context.Background(),
		actors: make(map[string]*actor),
	}
}

// Add increments key by amount and waits until the new value is persisted.
func (r *Registry) Add(ctx context.Context, key string, amount int64) error {
	_, err := r.call(ctx, key, OpAdd, amount)
	return err
}

// Reset sets key to zero, creating the counter if needed.
func (r *Registry) Reset(ctx context.Context, key string) error {
	_, err := r.call(ctx, key, OpReset, 0)
	return err
}

// Get returns the current value of key, observing every operation enqueued before it.
func (r *Registry) Get(ctx context.Context, key string) (int64, error) {
	st, err := r.call(ctx, key, OpGet, 0)
	return st.Value, err
}

// Read is Get that also reports whether the counter has ever been created.
func (r *Registry) Read(ctx context.Context, key string) (models.CounterState, error) {
	return r.call(ctx, key, OpGet, 0)
}

// Signal enqueues op without waiting for it to apply.
//
// A signal accepted before [Registry.Close] is always applied; failures are logged.
func (r *Registry) Signal(key string, op Op, amount int64) error {
	return r.enqueue(key, request{op: op, amount: amount})
}

// call enqueues a request and waits for its result. If ctx ends first the operation still applies.
func (r *Registry) call(ctx context.Context, key string, op Op, amount int64) (models.CounterState, error) {
	reply := make(chan result, 1)
	if err := r.enqueue(key, request{op: op, amount: amount, reply: reply}); err != nil {
		return models.CounterState{Key: key}, err
	}

	select {
	case res := <-reply:
		return res.state, res.err
	case <-ctx.Done():
		return models.CounterState{Key: key}, ctx.Err()
	}
}

func (r *Registry) enqueue(key string, req request) error {
	if key == "" {
		return fmt.Errorf("%w: counter key is required", shared.ErrInvalidArgument)
	}
	if _, err := ParseOp(string(req.op)); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return shared.ErrRegistryClosed
	}

	a, ok := r.actors[key]
	if !ok {
		a = newActor(key)
		r.actors[key] = a
		r.wg.Add(1)
		go a.run(r)
	}
	a.push(req)
	return nil
}

// Close stops accepting operations and waits until every mailbox is drained.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for _, a := range r.actors {
			a.close()
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: draining counters: %v", shared.ErrTimeout, ctx.Err())
	}
}

type actor struct {
	key string

	mu      sync.Mutex
	queue   []request
	closing bool
	notify  chan struct{}

	// owned by the run goroutine
	loaded bool
	value  int64
	exists bool
}

func newActor(key string) *actor {
	return &actor{key: key, notify: make(chan struct{}, 1)}
}

func (a *actor) push(req request) {
	a.mu.Lock()
	a.queue = append(a.queue, req)
	a.mu.Unlock()
	a.wake()
}

func (a *actor) close() {
	a.mu.Lock()
	a.closing = true
	a.mu.Unlock()
	a.wake()
}

func (a *actor) wake() {
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

func (a *actor) take() ([]request, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reqs := a.queue
	a.queue = nil
	return reqs, a.closing
}

func (a *actor) run(r *Registry) {
	defer r.wg.Done()
	logger := shared.WithLogger(r.logger, "key", a.key)

	for {
		reqs, closing := a.take()
		for _, req := range reqs {
			st, err := a.apply(r.ctx, r.store, req)
			if req.reply != nil {
				req.reply <- result{state: st, err: err}
			} else if err != nil {
				logger.Error("counter signal failed", "op", req.op, "amount", req.amount, "error", err)
			}
		}

		if len(reqs) > 0 {
			continue
		}
		if closing {
			return
		}
		<-a.notify
	}
}

func (a *actor) apply(ctx context.Context, store Store, req request) (models.CounterState, error) {
	if !a.loaded {
		v, ok, err := store.Load(ctx, a.key)
		if err != nil {
			return a.state(), fmt.Errorf("failed to load counter %s: %w", a.key, err)
		}
		a.value, a.exists, a.loaded = v, ok, true
	}

	var next int64
	switch req.op {
	case OpGet:
		return a.state(), nil
	case OpAdd:
		next = a.value + req.amount
	case OpReset:
		next = 0
	}

	m := models.CounterMutation{Key: a.key, Op: string(req.op), Amount: req.amount, Value: next}
	if err := store.Save(ctx, m); err != nil {
		return a.state(), fmt.Errorf("failed to persist counter %s: %w", a.key, err)
	}

	a.value, a.exists = next, true
	return a.state(), nil
}

func (a *actor) state() models.CounterState {
	return models.CounterState{Key: a.key, Value: a.value, Exists: a.exists}
}
