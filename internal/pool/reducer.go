package pool

import (
	"PoolLedger/internal/event"
	"PoolLedger/internal/metadata"
	"PoolLedger/internal/pricing"
	"PoolLedger/internal/snapshot"
	"PoolLedger/internal/store"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownReference marks an event that references a pool or pool
	// token outside tracked state. The event is skipped without mutation.
	ErrUnknownReference = errors.New("unknown reference")

	// ErrInconsistent marks an event that contradicts established state.
	// The event is rejected without mutation and must be surfaced loudly.
	ErrInconsistent = errors.New("structural inconsistency")
)

// Outcome describes what applying one event did besides mutating state.
type Outcome struct {
	Derived int
	Ignored bool
}

// Reducer translates events into entity mutations inside a unit of work.
// It never commits; the caller commits or drops the unit as a whole.
type Reducer struct {
	md      metadata.Provider
	pricing *pricing.Normalizer
	vault   common.Address
	logger  zerolog.Logger
}

func NewReducer(md metadata.Provider, normalizer *pricing.Normalizer, vault common.Address, logger zerolog.Logger) *Reducer {
	return &Reducer{
		md:      md,
		pricing: normalizer,
		vault:   vault,
		logger:  logger,
	}
}

// applyCtx is the per-event scratch state: derived events waiting to be
// handled and the pools whose snapshots must be refreshed at the end.
type applyCtx struct {
	ctx     context.Context
	u       *store.UnitOfWork
	meta    event.Meta
	derived []*event.ShareTransfer
	refresh []string
	outcome Outcome
}

func (ac *applyCtx) emit(t *event.ShareTransfer) {
	ac.derived = append(ac.derived, t)
}

func (ac *applyCtx) requestRefresh(poolID string) {
	for _, id := range ac.refresh {
		if id == poolID {
			return
		}
	}
	ac.refresh = append(ac.refresh, poolID)
}

// Apply dispatches evt, drains the derived events it produced through the
// same handlers, then refreshes the daily snapshots of affected pools.
func (r *Reducer) Apply(ctx context.Context, u *store.UnitOfWork, evt event.Event) (Outcome, error) {
	ac := &applyCtx{ctx: ctx, u: u, meta: evt.EventMeta()}

	if err := r.dispatch(ac, evt); err != nil {
		return Outcome{}, err
	}

	for len(ac.derived) > 0 {
		next := ac.derived[0]
		ac.derived = ac.derived[1:]
		if err := r.applyShareTransfer(ac, next); err != nil {
			return Outcome{}, fmt.Errorf("derived transfer: %w", err)
		}
		ac.outcome.Derived++
	}

	for _, poolID := range ac.refresh {
		if _, err := snapshot.RefreshPool(u, poolID, ac.meta.Block, ac.meta.Timestamp); err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrInconsistent, err)
		}
	}

	return ac.outcome, nil
}

func (r *Reducer) dispatch(ac *applyCtx, evt event.Event) error {
	switch e := evt.(type) {
	case *event.PoolCreated:
		return r.applyPoolCreated(ac, e)
	case *event.TokensRegistered:
		return r.applyTokensRegistered(ac, e)
	case *event.PoolBalanceChanged:
		return r.applyBalanceChanged(ac, e)
	case *event.PoolBalanceManaged:
		return r.applyBalanceManaged(ac, e)
	case *event.InternalBalanceChanged:
		return r.applyInternalBalanceChanged(ac, e)
	case *event.Swap:
		return r.applySwap(ac, e)
	case *event.ShareTransfer:
		return r.applyShareTransfer(ac, e)
	case *event.TokenRateUpdated:
		return r.applyTokenRateUpdated(ac, e)
	case *event.SwapFeeChanged:
		return r.applySwapFeeChanged(ac, e)
	case *event.PausedStateChanged:
		return r.applyPausedStateChanged(ac, e)
	case *event.GenericSignal:
		return r.applyGenericSignal(ac, e)
	case *event.OracleAnswerUpdated:
		if r.pricing.HandleAnswerUpdated(ac.u, e) == 0 {
			ac.outcome.Ignored = true
		}
		return nil
	case *event.OracleRegistered:
		r.pricing.HandleOracleRegistered(ac.u, e)
		return nil
	default:
		return fmt.Errorf("unhandled event type: %T", evt)
	}
}

func unknownPool(id string) error {
	return fmt.Errorf("%w: pool %s", ErrUnknownReference, id)
}

func unknownPoolAddress(addr common.Address) error {
	return fmt.Errorf("%w: pool address %s", ErrUnknownReference, addr.Hex())
}
