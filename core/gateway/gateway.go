package gateway

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

var (
	promProtected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_gateway_operations_total",
		Help: "number of protected operations by outcome",
	}, []string{"outcome"})

	promReentrancy = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custody_gateway_reentrancy_rejected_total",
		Help: "number of nested entries rejected by the reentrancy lock",
	})

	promTransfers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_gateway_transfers_total",
		Help: "number of outbound transfers by outcome",
	}, []string{"outcome"})
)

func init() {
	custody.PromCollectors = append(custody.PromCollectors, promProtected,
		promReentrancy, promTransfers)
}

// frameKey is the context key marking a call made from inside a protected
// operation of a gateway.
type frameKey struct{}

// Gateway owns the reentrancy lock and the outbound transfers.
type Gateway struct {
	store   store.Store
	sender  Sender
	watcher core.Observable
	sem     chan struct{}
	state   int32

	// interacting is set while the interactions of an operation run. Any
	// entry during that window comes from a receiver.
	interacting int32

	clockMu  sync.Mutex
	height   uint64
	time     uint64
	hasClock bool
}

// NewGateway returns a gateway applying the operations to the store and moving
// value with the sender.
func NewGateway(s store.Store, sender Sender) *Gateway {
	return &Gateway{
		store:   s,
		sender:  sender,
		watcher: core.NewWatcher(),
		sem:     make(chan struct{}, 1),
	}
}

// Watch returns the observable notified of the events of the successful
// operations.
func (g *Gateway) Watch() core.Observable {
	return g.watcher
}

// Store returns the store of the gateway. Reading it never takes the lock, so
// the queries are served even while an operation is running.
func (g *Gateway) Store() store.Readable {
	return g.store
}

// State returns the state of the reentrancy lock.
func (g *Gateway) State() LockState {
	return LockState(atomic.LoadInt32(&g.state))
}

// Nested returns true if the context belongs to a call made from inside a
// protected operation of this gateway.
func (g *Gateway) Nested(ctx context.Context) bool {
	owner, _ := ctx.Value(frameKey{}).(*Gateway)

	return owner == g
}

// Interacting returns true while the interactions of an operation run.
func (g *Gateway) Interacting() bool {
	return atomic.LoadInt32(&g.interacting) == 1
}

// Protect executes a state-mutating operation. The function stages its writes
// and queues its interactions; the writes are committed before any interaction
// runs. A call made from inside a protected operation, or made while its
// interactions run, fails immediately with a reentrancy error. Other callers
// wait for the lock.
func (g *Gateway) Protect(ctx context.Context, op string, t txn.Transaction,
	fn func(tx *Tx) error) (Receipt, error) {

	if g.Nested(ctx) {
		g.rejected(op, t)

		return Receipt{}, xerrors.Errorf("nested call to '%s': %w", op,
			core.ErrReentrancyDetected)
	}

	if g.Interacting() {
		g.rejected(op, t)

		return Receipt{}, xerrors.Errorf("call to '%s' during an interaction: %w", op,
			core.ErrReentrancyDetected)
	}

	receipt, err := g.locked(ctx, op, t, fn)
	if err != nil {
		promProtected.WithLabelValues("rejected").Inc()
		return Receipt{}, err
	}

	promProtected.WithLabelValues("accepted").Inc()

	for _, evt := range receipt.Events {
		g.watcher.Notify(evt)
	}

	return receipt, nil
}

func (g *Gateway) rejected(op string, t txn.Transaction) {
	promReentrancy.Inc()

	custody.Logger.Warn().Str("operation", op).
		Str("caller", t.GetIdentity().String()).
		Msg("reentrant call rejected")
}

// locked runs the operation while holding the lock.
func (g *Gateway) locked(ctx context.Context, op string, t txn.Transaction,
	fn func(tx *Tx) error) (Receipt, error) {

	if ctx.Err() != nil {
		return Receipt{}, xerrors.Errorf("failed to acquire lock: %v", ctx.Err())
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return Receipt{}, xerrors.Errorf("failed to acquire lock: %v", ctx.Err())
	}

	atomic.StoreInt32(&g.state, int32(Locked))

	defer func() {
		atomic.StoreInt32(&g.state, int32(Idle))
		<-g.sem
	}()

	return g.run(context.WithValue(ctx, frameKey{}, g), op, t, fn)
}

func (g *Gateway) run(ctx context.Context, op string, t txn.Transaction,
	fn func(tx *Tx) error) (Receipt, error) {

	err := g.checkClock(t)
	if err != nil {
		return Receipt{}, err
	}

	var tx *Tx

	undo, err := g.store.Stage(func(snap store.Snapshot) error {
		tx = newTx(snap, t)

		err := fn(tx)
		if err != nil {
			return err
		}

		return tx.err
	})
	if err != nil {
		return Receipt{}, xerrors.Errorf("%s: %w", op, err)
	}

	atomic.StoreInt32(&g.interacting, 1)
	defer atomic.StoreInt32(&g.interacting, 0)

	atomics := make([]interaction, 0, len(tx.interactions))
	independents := make([]interaction, 0, len(tx.interactions))

	for _, i := range tx.interactions {
		if i.mode == Atomic {
			atomics = append(atomics, i)
		} else {
			independents = append(independents, i)
		}
	}

	err = g.runAtomic(ctx, atomics)
	if err != nil {
		undoErr := undo()
		if undoErr != nil {
			custody.Logger.Error().Err(undoErr).Str("operation", op).
				Msg("failed to undo the operation")

			return Receipt{}, xerrors.Errorf("%s: %w (undo failed: %v)", op, err, undoErr)
		}

		return Receipt{}, xerrors.Errorf("%s: %w", op, err)
	}

	// The clock only moves for the operations that are not undone.
	g.advanceClock(t)

	receipt := Receipt{Events: tx.events}

	for _, i := range independents {
		ierr := g.interact(ctx, i)
		if ierr != nil {
			receipt.Failures = append(receipt.Failures, ierr)
		}

		if i.settle == nil {
			continue
		}

		var stx *Tx

		_, err := g.store.Stage(func(snap store.Snapshot) error {
			stx = newTx(snap, t)
			stx.sealed = true

			err := i.settle(stx, ierr)
			if err != nil {
				return err
			}

			return stx.err
		})
		if err != nil {
			// The interaction already happened and cannot be taken back, the
			// error is reported for the operators.
			custody.Logger.Error().Err(err).Str("operation", op).
				Str("interaction", i.name).Msg("failed to settle")

			receipt.Failures = append(receipt.Failures,
				xerrors.Errorf("failed to settle '%s': %v", i.name, err))

			continue
		}

		receipt.Events = append(receipt.Events, stx.events...)
	}

	return receipt, nil
}

func (g *Gateway) runAtomic(ctx context.Context, interactions []interaction) error {
	for k, i := range interactions {
		err := g.interact(ctx, i)
		if err == nil {
			continue
		}

		for j := k - 1; j >= 0; j-- {
			if interactions[j].compensate == nil {
				continue
			}

			cerr := interactions[j].compensate(ctx)
			if cerr != nil {
				custody.Logger.Error().Err(cerr).Str("interaction", interactions[j].name).
					Msg("failed to compensate")
			}
		}

		return err
	}

	return nil
}

func (g *Gateway) interact(ctx context.Context, i interaction) error {
	if i.call != nil {
		err := i.call(ctx)
		if err != nil {
			return xerrors.Errorf("%s: %v: %w", i.name, err, core.ErrExternalCallFailed)
		}

		return nil
	}

	return g.transfer(ctx, i.to, i.amount)
}

// transfer sends the amount to the destination. It is only reachable from the
// interactions of a protected operation, after its writes are committed.
func (g *Gateway) transfer(ctx context.Context, to access.Principal, amount uint64) error {
	if !to.Valid() {
		promTransfers.WithLabelValues("failed").Inc()
		return xerrors.Errorf("transfer to invalid destination '%s': %w", to,
			core.ErrExternalCallFailed)
	}

	err := g.sender.Send(ctx, to, amount)
	if err != nil {
		promTransfers.WithLabelValues("failed").Inc()

		custody.Logger.Warn().Err(err).Str("to", to.String()).Uint64("amount", amount).
			Msg("transfer failed")

		return xerrors.Errorf("transfer of %d to '%s': %v: %w", amount, to, err,
			core.ErrExternalCallFailed)
	}

	promTransfers.WithLabelValues("sent").Inc()

	return nil
}

// checkClock rejects a transaction whose logical clock goes backwards.
func (g *Gateway) checkClock(t txn.Transaction) error {
	g.clockMu.Lock()
	defer g.clockMu.Unlock()

	if !g.hasClock {
		return nil
	}

	if t.GetHeight() < g.height {
		return xerrors.Errorf("height %d behind %d: %w", t.GetHeight(), g.height,
			core.ErrInvalidInput)
	}

	if t.GetTime() < g.time {
		return xerrors.Errorf("time %d behind %d: %w", t.GetTime(), g.time,
			core.ErrInvalidInput)
	}

	return nil
}

func (g *Gateway) advanceClock(t txn.Transaction) {
	g.clockMu.Lock()
	g.height = t.GetHeight()
	g.time = t.GetTime()
	g.hasClock = true
	g.clockMu.Unlock()
}
