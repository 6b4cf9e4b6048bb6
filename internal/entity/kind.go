package entity

import "fmt"

// PoolType is the on-chain pool-type discriminant.
type PoolType string

const (
	PoolTypeUnknown                PoolType = "Unknown"
	PoolTypeWeighted               PoolType = "Weighted"
	PoolTypeStable                 PoolType = "Stable"
	PoolTypeMetaStable             PoolType = "MetaStable"
	PoolTypeStablePhantom          PoolType = "StablePhantom"
	PoolTypeComposableStable       PoolType = "ComposableStable"
	PoolTypeLiquidityBootstrapping PoolType = "LiquidityBootstrapping"
	PoolTypeInvestment             PoolType = "Investment"
	PoolTypeManaged                PoolType = "Managed"
	PoolTypeAaveLinear             PoolType = "AaveLinear"
	PoolTypeERC4626Linear          PoolType = "ERC4626Linear"
	PoolTypeEulerLinear            PoolType = "EulerLinear"
	PoolTypeGyro2                  PoolType = "Gyro2"
	PoolTypeGyro3                  PoolType = "Gyro3"
	PoolTypeGyroE                  PoolType = "GyroE"
	PoolTypeFX                     PoolType = "FX"
	PoolTypeElement                PoolType = "Element"
)

// KnownPoolTypes is the ordered table pool-type reclassification signals
// index into. Append only.
var KnownPoolTypes = []PoolType{
	PoolTypeWeighted,
	PoolTypeStable,
	PoolTypeMetaStable,
	PoolTypeStablePhantom,
	PoolTypeComposableStable,
	PoolTypeLiquidityBootstrapping,
	PoolTypeInvestment,
	PoolTypeManaged,
	PoolTypeAaveLinear,
	PoolTypeERC4626Linear,
	PoolTypeEulerLinear,
	PoolTypeGyro2,
	PoolTypeGyro3,
	PoolTypeGyroE,
	PoolTypeFX,
	PoolTypeElement,
}

// PoolTypeAt returns the known pool type at index i.
func PoolTypeAt(i int64) (PoolType, bool) {
	if i < 0 || i >= int64(len(KnownPoolTypes)) {
		return PoolTypeUnknown, false
	}
	return KnownPoolTypes[i], true
}

// ParsePoolType validates a pool-type name.
func ParsePoolType(s string) (PoolType, error) {
	for _, pt := range KnownPoolTypes {
		if string(pt) == s {
			return pt, nil
		}
	}
	return PoolTypeUnknown, fmt.Errorf("unknown pool type: %q", s)
}

// Capabilities is the behavior set of a pool kind. It is resolved once
// when the pool is created (or reclassified) and read by the reducer
// instead of re-deriving it from the type name on every event.
type Capabilities struct {
	HasVirtualSupply bool `json:"has_virtual_supply"`
	IsStableLike     bool `json:"is_stable_like"`
	IsVariableWeight bool `json:"is_variable_weight"`
	IsLinear         bool `json:"is_linear"`
}

// CapabilitiesOf resolves the capability set for a pool type.
func CapabilitiesOf(pt PoolType) Capabilities {
	switch pt {
	case PoolTypeStable, PoolTypeMetaStable:
		return Capabilities{IsStableLike: true}
	case PoolTypeStablePhantom, PoolTypeComposableStable:
		return Capabilities{HasVirtualSupply: true, IsStableLike: true}
	case PoolTypeLiquidityBootstrapping, PoolTypeInvestment:
		return Capabilities{IsVariableWeight: true}
	case PoolTypeManaged:
		return Capabilities{HasVirtualSupply: true, IsVariableWeight: true}
	case PoolTypeAaveLinear, PoolTypeERC4626Linear, PoolTypeEulerLinear:
		return Capabilities{HasVirtualSupply: true, IsLinear: true}
	default:
		return Capabilities{}
	}
}
