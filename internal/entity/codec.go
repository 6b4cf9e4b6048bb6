package entity

import (
	"fmt"

	"github.com/sugawarayuuta/sonnet"
)

var constructors = map[Kind]func() Entity{
	KindToken:               func() Entity { return &Token{} },
	KindPool:                func() Entity { return &Pool{} },
	KindPoolToken:           func() Entity { return &PoolToken{} },
	KindPoolShare:           func() Entity { return &PoolShare{} },
	KindUser:                func() Entity { return &User{} },
	KindSwap:                func() Entity { return &Swap{} },
	KindJoinExit:            func() Entity { return &JoinExit{} },
	KindUserInternalBalance: func() Entity { return &UserInternalBalance{} },
	KindFXOracle:            func() Entity { return &FXOracle{} },
	KindPoolSnapshot:        func() Entity { return &PoolSnapshot{} },
	KindProtocol:            func() Entity { return &Protocol{} },
	KindPoolContract:        func() Entity { return &PoolContract{} },
	KindLatestPrice:         func() Entity { return &LatestPrice{} },
	KindManagementOperation: func() Entity { return &ManagementOperation{} },
	KindProtocolSnapshot:    func() Entity { return &ProtocolSnapshot{} },
}

// Kinds returns every registered entity kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(constructors))
	for k := range constructors {
		out = append(out, k)
	}
	return out
}

// Encode serializes an entity to its stored JSON form.
func Encode(e Entity) ([]byte, error) {
	data, err := sonnet.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", e.Kind(), e.EntityID(), err)
	}
	return data, nil
}

// Decode restores an entity of the given kind from its stored JSON form.
func Decode(kind Kind, data []byte) (Entity, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind: %s", kind)
	}
	e := ctor()
	if err := sonnet.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return e, nil
}
