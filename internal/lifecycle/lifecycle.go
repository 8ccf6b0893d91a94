package lifecycle

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"tutor/internal/domain"
	"tutor/internal/vectorstore"
)

// State is the collection lifecycle phase.
type State int

const (
	StateUninitialized State = iota
	StatePopulating
	StateReady
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePopulating:
		return "populating"
	case StateReady:
		return "ready"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// ErrNotReady is returned when a query arrives while the collection is being
// populated or reset.
var ErrNotReady = errors.New("collection not ready")

// Ingestor runs a full corpus ingestion and reports the chunk count.
type Ingestor interface {
	Run(ctx context.Context) (int, error)
}

// Controller owns the collection lifecycle: lazy populate-on-empty, force
// reset, and the gate that keeps queries off the store while either is in
// flight. The CollectionState is injected so tests can observe the
// populated flag without a real backend; it is only ever updated together
// with a state transition, under the same lock.
type Controller struct {
	mu       sync.RWMutex
	state    State
	coll     *domain.CollectionState
	store    vectorstore.Storage
	ingestor Ingestor
	log      *zap.Logger
}

func NewController(coll *domain.CollectionState, store vectorstore.Storage, ingestor Ingestor, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		state:    StateUninitialized,
		coll:     coll,
		store:    store,
		ingestor: ingestor,
		log:      log,
	}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Populated reports the memoized populated flag.
func (c *Controller) Populated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coll.Populated
}

// Ensure makes the collection ready, ingesting the corpus if the backend is
// empty. Once ready the check is memoized; a reset invalidates it, forcing
// the next Ensure to re-derive state from the backend. Concurrent queries
// are blocked for the duration of a populate.
func (c *Controller) Ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateReady && c.coll.Populated {
		return nil
	}

	n, err := c.store.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		c.coll.Populated = true
		c.state = StateReady
		c.log.Info("collection already populated",
			zap.String("collection", c.coll.Collection), zap.Int("chunks", n))
		return nil
	}

	c.state = StatePopulating
	c.log.Info("populating collection", zap.String("collection", c.coll.Collection))
	count, err := c.ingestor.Run(ctx)
	if err != nil {
		c.state = StateUninitialized
		c.coll.Populated = false
		c.log.Error("ingest failed", zap.Error(err))
		return err
	}
	c.coll.Populated = count > 0
	c.state = StateReady
	c.log.Info("collection populated",
		zap.String("collection", c.coll.Collection), zap.Int("chunks", count))
	return nil
}

// Reset wipes the collection and invalidates the memoized populated state.
// The next query re-derives state from the backend and re-ingests, which is
// how newly added corpus content gets picked up without a restart.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateResetting
	c.log.Info("force reset requested", zap.String("collection", c.coll.Collection))
	err := c.store.Wipe(ctx)
	c.state = StateUninitialized
	c.coll.Populated = false
	if err != nil {
		c.log.Error("wipe failed", zap.Error(err))
		return err
	}
	return nil
}

// Guard runs fn under the read gate so queries cannot overlap a populate or
// reset. It fails with ErrNotReady if the collection is not in the ready
// state when the gate opens.
func (c *Controller) Guard(ctx context.Context, fn func(context.Context) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	return fn(ctx)
}
