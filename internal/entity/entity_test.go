package entity_test

import (
	"PoolLedger/internal/entity"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const testPoolID = "0x32296969ef14eb0c6d29669c550d4a0449130230000200000000000000000080"

func TestPoolAddressAndSpecialization(t *testing.T) {
	id := common.HexToHash(testPoolID)

	addr := entity.PoolAddress(id)
	if addr != common.HexToAddress("0x32296969ef14eb0c6d29669c550d4a0449130230") {
		t.Errorf("pool address: got %s", addr.Hex())
	}
	if got := entity.PoolSpecialization(id); got != 2 {
		t.Errorf("specialization: got %d, want 2", got)
	}
}

func TestIdentifiersAreLowercase(t *testing.T) {
	token := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	id := entity.PoolTokenID(testPoolID, token)

	want := testPoolID + "-0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	if id != want {
		t.Errorf("pool token id: got %s, want %s", id, want)
	}
}

func TestEventIDUniquePerLog(t *testing.T) {
	tx := common.HexToHash("0x01")
	if entity.EventID(tx, 1) == entity.EventID(tx, 2) {
		t.Error("different log indexes must produce different ids")
	}
}

func TestDayStart(t *testing.T) {
	tests := []struct {
		ts, want int64
	}{
		{0, 0},
		{86399, 0},
		{86400, 86400},
		{1_700_000_123, 1_699_920_000},
	}
	for _, tt := range tests {
		if got := entity.DayStart(tt.ts); got != tt.want {
			t.Errorf("DayStart(%d): got %d, want %d", tt.ts, got, tt.want)
		}
	}
}

func TestCapabilitiesOf(t *testing.T) {
	cs := entity.CapabilitiesOf(entity.PoolTypeComposableStable)
	if !cs.HasVirtualSupply || !cs.IsStableLike || cs.IsVariableWeight || cs.IsLinear {
		t.Errorf("composable stable capabilities: %+v", cs)
	}

	w := entity.CapabilitiesOf(entity.PoolTypeWeighted)
	if w != (entity.Capabilities{}) {
		t.Errorf("weighted pools have no special capabilities: %+v", w)
	}

	lbp := entity.CapabilitiesOf(entity.PoolTypeLiquidityBootstrapping)
	if !lbp.IsVariableWeight {
		t.Error("LBP weights vary over time")
	}

	linear := entity.CapabilitiesOf(entity.PoolTypeAaveLinear)
	if !linear.IsLinear || !linear.HasVirtualSupply {
		t.Errorf("linear capabilities: %+v", linear)
	}
}

func TestPoolTypeAt(t *testing.T) {
	if pt, ok := entity.PoolTypeAt(0); !ok || pt != entity.PoolTypeWeighted {
		t.Errorf("index 0: got %s %v", pt, ok)
	}
	if _, ok := entity.PoolTypeAt(-1); ok {
		t.Error("negative index must be rejected")
	}
	if _, ok := entity.PoolTypeAt(int64(len(entity.KnownPoolTypes))); ok {
		t.Error("out of range index must be rejected")
	}
}

func TestPoolClone_Independent(t *testing.T) {
	p := &entity.Pool{
		ID:         testPoolID,
		TokensList: []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")},
	}

	c := p.Clone().(*entity.Pool)
	c.TokensList[0] = common.HexToAddress("0x03")

	if p.TokensList[0] != common.HexToAddress("0x01") {
		t.Error("mutating the clone changed the original")
	}
}

func TestFXOracleAddTokens_Dedup(t *testing.T) {
	a := common.HexToAddress("0x0a")
	b := common.HexToAddress("0x0b")

	o := &entity.FXOracle{}
	o.AddTokens(a, b)
	o.AddTokens(b, a)

	if len(o.Tokens) != 2 || o.Tokens[0] != a || o.Tokens[1] != b {
		t.Errorf("tokens: got %v", o.Tokens)
	}
}

func TestCodec_PreservesDecimals(t *testing.T) {
	in := &entity.JoinExit{
		ID:      "0xabc-1",
		Type:    entity.JoinExitTypeJoin,
		PoolID:  testPoolID,
		Amounts: []decimal.Decimal{decimal.RequireFromString("1.000001"), decimal.RequireFromString("2")},
	}

	data, err := entity.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := entity.Decode(entity.KindJoinExit, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := out.(*entity.JoinExit)
	if len(got.Amounts) != 2 || !got.Amounts[0].Equal(in.Amounts[0]) || got.Type != entity.JoinExitTypeJoin {
		t.Errorf("decoded join exit: %+v", got)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	if _, err := entity.Decode("nope", []byte("{}")); err == nil {
		t.Error("expected error for unknown kind")
	}
}
