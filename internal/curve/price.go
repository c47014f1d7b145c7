package curve

import (
	"math/big"

	"github.com/shopspring/decimal"
)

func dec(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// SpotPrice returns the marginal price at the current state as a decimal,
// suitable for quote endpoints. It is informational only; settlement always
// goes through Buy/Sell.
func SpotPrice(p Params, s State) decimal.Decimal {
	switch p.Model {
	case ConstantRatio:
		if s.ReserveToken == 0 {
			return decimal.Zero
		}
		return dec(s.ReserveBase).Div(dec(s.ReserveToken))
	case LinearDivision:
		return dec(p.BasePrice)
	case BoundedQuadratic:
		if p.SupplyCap == 0 {
			return dec(p.PriceFloor)
		}
		slope := dec(p.PriceCeiling - p.PriceFloor).Mul(dec(s.Supply)).Div(dec(p.SupplyCap))
		return dec(p.PriceFloor).Add(slope)
	default:
		return decimal.Zero
	}
}

// EffectivePrice is the average price actually paid for a quote: amountIn
// divided by amountOut. Zero when the quote produced nothing.
func EffectivePrice(amountIn, amountOut uint64) decimal.Decimal {
	if amountOut == 0 {
		return decimal.Zero
	}
	return dec(amountIn).Div(dec(amountOut))
}

// PriceImpact reports how far the effective price of a quote deviates from
// the spot price, as a fraction (0.05 = 5%).
func PriceImpact(spot, effective decimal.Decimal) decimal.Decimal {
	if spot.IsZero() {
		return decimal.Zero
	}
	return effective.Sub(spot).Abs().Div(spot)
}
