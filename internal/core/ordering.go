package core

import (
	"PoolLedger/internal/event"
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned for an event positioned before the last
// applied event.
var ErrOutOfOrder = errors.New("out-of-order event")

// OrderingGuard tracks the chain position of the last applied event and
// rejects regressions. Gaps are normal: most logs in a block are not ours.
// Not thread-safe; owned by the engine.
type OrderingGuard struct {
	last    event.Meta
	started bool
}

func NewOrderingGuard() *OrderingGuard {
	return &OrderingGuard{}
}

// Check returns ErrOutOfOrder if m sorts before the last applied position.
func (g *OrderingGuard) Check(m event.Meta) error {
	if g.started && m.Before(g.last) {
		return fmt.Errorf("%w: block=%d log_index=%d is before block=%d log_index=%d",
			ErrOutOfOrder, m.Block, m.LogIndex, g.last.Block, g.last.LogIndex)
	}
	return nil
}

// Advance records m as the last applied position.
func (g *OrderingGuard) Advance(m event.Meta) {
	g.last = m
	g.started = true
}

// Position returns the last applied position and whether any event has
// been applied.
func (g *OrderingGuard) Position() (event.Meta, bool) {
	return g.last, g.started
}

// Restore sets the position recovered from a checkpoint.
func (g *OrderingGuard) Restore(m event.Meta) {
	g.Advance(m)
}
