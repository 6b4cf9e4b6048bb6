package ingestion

import (
	"PoolLedger/internal/event"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AdminIngestService provides manual event injection for operators: curated
// pool signals and oracle registrations that have no on-chain log of their
// own. High-throughput chain events arrive over NATS.
type AdminIngestService struct {
	eventChan chan<- event.Event
}

func NewAdminIngestService(eventChan chan<- event.Event) *AdminIngestService {
	return &AdminIngestService{eventChan: eventChan}
}

// InjectSignal queues a GenericSignal for a pool. The chain position must be
// supplied by the operator so the signal orders against chain events.
func (s *AdminIngestService) InjectSignal(
	ctx context.Context,
	meta event.Meta,
	identifier string,
	poolID common.Hash,
	value int64,
) error {
	if identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if meta.TxHash == (common.Hash{}) {
		return fmt.Errorf("tx hash is required")
	}

	return s.send(ctx, &event.GenericSignal{
		Meta:       meta,
		Identifier: identifier,
		PoolID:     poolID,
		Value:      value,
	})
}

// InjectOracleRegistration queues an OracleRegistered event linking an
// aggregator to the tokens it prices.
func (s *AdminIngestService) InjectOracleRegistration(
	ctx context.Context,
	meta event.Meta,
	aggregator common.Address,
	tokens []common.Address,
	decimals *int,
	divisor *big.Int,
) error {
	if len(tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}
	if divisor != nil && divisor.Sign() <= 0 {
		return fmt.Errorf("divisor must be positive")
	}
	if meta.TxHash == (common.Hash{}) {
		return fmt.Errorf("tx hash is required")
	}

	return s.send(ctx, &event.OracleRegistered{
		Meta:       meta,
		Aggregator: aggregator,
		Tokens:     tokens,
		Decimals:   decimals,
		Divisor:    divisor,
	})
}

func (s *AdminIngestService) send(ctx context.Context, evt event.Event) error {
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
