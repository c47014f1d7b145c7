package curve

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
)

// Model selects the pricing formula a pair is created with. The model is
// frozen at pair creation and never changes for the lifetime of the pair.
type Model uint8

const (
	// ConstantRatio swaps 1:1 against explicit reserves. Legacy model kept
	// for compatibility testing.
	ConstantRatio Model = iota
	// LinearDivision prices every unit at a fixed base price.
	LinearDivision
	// BoundedQuadratic prices supply linearly between a floor and a ceiling,
	// settling trades against the integral of that line.
	BoundedQuadratic
)

func (m Model) Valid() bool {
	switch m {
	case ConstantRatio, LinearDivision, BoundedQuadratic:
		return true
	default:
		return false
	}
}

func (m Model) String() string {
	switch m {
	case ConstantRatio:
		return "constant_ratio"
	case LinearDivision:
		return "linear_division"
	case BoundedQuadratic:
		return "bounded_quadratic"
	default:
		return fmt.Sprintf("model(%d)", uint8(m))
	}
}

// Protocol default bounds for the bounded quadratic model. Creators may
// override them at pair creation.
const (
	DefaultPriceFloor   uint64 = 40_000
	DefaultPriceCeiling uint64 = 100_000_000
	DefaultSupplyCap    uint64 = 1_000_000_000_000_000
)

var (
	ErrUnknownModel = errors.New("curve: unknown pricing model")
	ErrBadParams    = errors.New("curve: invalid curve parameters")
	ErrNoLiquidity  = errors.New("curve: empty reserves")
	ErrOverflow     = errors.New("curve: amount overflows 64 bits")
)

// Params are the immutable pricing parameters bound to a pair at creation.
// BasePrice is only meaningful for LinearDivision; the floor/ceiling/cap
// triple only for BoundedQuadratic.
type Params struct {
	Model        Model
	BasePrice    uint64
	PriceFloor   uint64
	PriceCeiling uint64
	SupplyCap    uint64
}

// DefaultParams returns a bounded quadratic parameter set using the protocol
// constants.
func DefaultParams() Params {
	return Params{
		Model:        BoundedQuadratic,
		PriceFloor:   DefaultPriceFloor,
		PriceCeiling: DefaultPriceCeiling,
		SupplyCap:    DefaultSupplyCap,
	}
}

// Validate checks the parameter set for the selected model.
func (p Params) Validate() error {
	if !p.Model.Valid() {
		return ErrUnknownModel
	}
	switch p.Model {
	case ConstantRatio:
		return nil
	case LinearDivision:
		if p.BasePrice == 0 {
			return fmt.Errorf("%w: base price must be positive", ErrBadParams)
		}
	case BoundedQuadratic:
		if p.PriceFloor == 0 || p.PriceCeiling == 0 {
			return fmt.Errorf("%w: price bounds must be positive", ErrBadParams)
		}
		if p.PriceFloor > p.PriceCeiling {
			return fmt.Errorf("%w: price floor above ceiling", ErrBadParams)
		}
		if p.SupplyCap == 0 {
			return fmt.Errorf("%w: supply cap must be positive", ErrBadParams)
		}
	}
	return nil
}

// State is the mutable pricing state a quote is computed against. Supply is
// the cumulative units sold under the curve; the reserve pair is only
// consulted by the ConstantRatio model.
type State struct {
	Supply       uint64
	ReserveBase  uint64
	ReserveToken uint64
}

// floatPrec is the mantissa width used for intermediate arithmetic in the
// quadratic solve. Fixed precision keeps results deterministic across
// platforms; the floor at the end always rounds toward zero.
const floatPrec = 128

func newFloat() *big.Float {
	return new(big.Float).SetPrec(floatPrec)
}

func floatFromUint(v uint64) *big.Float {
	return newFloat().SetUint64(v)
}

// floorUint truncates f toward zero into a uint64. Negative values floor to
// zero; values beyond 64 bits report overflow.
func floorUint(f *big.Float) (uint64, error) {
	if f.Sign() <= 0 {
		return 0, nil
	}
	i, _ := f.Int(nil)
	if !i.IsUint64() {
		return 0, ErrOverflow
	}
	return i.Uint64(), nil
}

// Buy computes how many token units a payment of base asset purchases at the
// supplied state. The result is floored to the integer unit and never rounds
// in the trader's favour.
func Buy(p Params, s State, payment uint64) (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	switch p.Model {
	case ConstantRatio:
		if s.ReserveBase == 0 || s.ReserveToken == 0 {
			return 0, ErrNoLiquidity
		}
		if payment > s.ReserveToken {
			return 0, ErrNoLiquidity
		}
		return payment, nil
	case LinearDivision:
		return payment / p.BasePrice, nil
	case BoundedQuadratic:
		return quadraticBuy(p, s.Supply, payment)
	}
	return 0, ErrUnknownModel
}

// Sell computes the base-asset refund for selling tokens back to the curve at
// the supplied state. For the quadratic model the refund is the price
// integral from supply-tokens to supply, floored.
func Sell(p Params, s State, tokens uint64) (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	switch p.Model {
	case ConstantRatio:
		if s.ReserveBase == 0 || s.ReserveToken == 0 {
			return 0, ErrNoLiquidity
		}
		if tokens > s.ReserveBase {
			return 0, ErrNoLiquidity
		}
		return tokens, nil
	case LinearDivision:
		refund, carry := bits.Mul64(tokens, p.BasePrice)
		if carry != 0 {
			return 0, ErrOverflow
		}
		return refund, nil
	case BoundedQuadratic:
		if tokens > s.Supply {
			return 0, fmt.Errorf("%w: selling beyond issued supply", ErrBadParams)
		}
		return quadraticSell(p, s.Supply, tokens)
	}
	return 0, ErrUnknownModel
}

// quadraticBuy solves a*dS^2 + b*dS - C = 0 for dS, where
// a = (pmax-pmin)/(2*smax) and b = p(s0), via the positive quadratic root.
func quadraticBuy(p Params, supply, payment uint64) (uint64, error) {
	if payment == 0 {
		return 0, nil
	}
	spread := p.PriceCeiling - p.PriceFloor
	if spread == 0 {
		// Flat curve: every unit costs the floor price.
		return payment / p.PriceFloor, nil
	}

	a := newFloat().Quo(floatFromUint(spread), newFloat().Mul(floatFromUint(2), floatFromUint(p.SupplyCap)))
	b := newFloat().Add(
		floatFromUint(p.PriceFloor),
		newFloat().Quo(newFloat().Mul(floatFromUint(spread), floatFromUint(supply)), floatFromUint(p.SupplyCap)),
	)
	c := floatFromUint(payment)

	// discriminant = b^2 + 4*a*C
	disc := newFloat().Add(
		newFloat().Mul(b, b),
		newFloat().Mul(newFloat().Mul(floatFromUint(4), a), c),
	)
	root := newFloat().Sqrt(disc)

	num := newFloat().Sub(root, b)
	den := newFloat().Mul(floatFromUint(2), a)
	return floorUint(newFloat().Quo(num, den))
}

// quadraticSell evaluates pmin*dS + a*(2*s0*dS - dS^2) directly.
func quadraticSell(p Params, supply, tokens uint64) (uint64, error) {
	if tokens == 0 {
		return 0, nil
	}
	spread := p.PriceCeiling - p.PriceFloor
	ds := floatFromUint(tokens)

	base := newFloat().Mul(floatFromUint(p.PriceFloor), ds)
	if spread == 0 {
		return floorUint(base)
	}

	a := newFloat().Quo(floatFromUint(spread), newFloat().Mul(floatFromUint(2), floatFromUint(p.SupplyCap)))
	twoS0dS := newFloat().Mul(newFloat().Mul(floatFromUint(2), floatFromUint(supply)), ds)
	dS2 := newFloat().Mul(ds, ds)
	curveTerm := newFloat().Mul(a, newFloat().Sub(twoS0dS, dS2))

	return floorUint(newFloat().Add(base, curveTerm))
}
