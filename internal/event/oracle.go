package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OracleAnswerUpdated is a price-feed aggregator answer.
type OracleAnswerUpdated struct {
	Meta
	Aggregator common.Address
	Answer     *big.Int
}

func (e *OracleAnswerUpdated) EventType() EventType { return EventTypeOracleAnswerUpdated }

// OracleRegistered links an aggregator to the tokens it prices. Decimals
// and Divisor are optional.
type OracleRegistered struct {
	Meta
	Aggregator common.Address
	Tokens     []common.Address
	Decimals   *int
	Divisor    *big.Int
}

func (e *OracleRegistered) EventType() EventType { return EventTypeOracleRegistered }
