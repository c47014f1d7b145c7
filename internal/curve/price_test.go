package curve

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSpotPrice(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		state    State
		expected decimal.Decimal
	}{
		{
			name:     "quadratic at zero supply sits on the floor",
			params:   Params{Model: BoundedQuadratic, PriceFloor: 40_000, PriceCeiling: 100_000_000, SupplyCap: 1_000_000},
			state:    State{Supply: 0},
			expected: decimal.NewFromInt(40_000),
		},
		{
			name:     "quadratic at the cap sits on the ceiling",
			params:   Params{Model: BoundedQuadratic, PriceFloor: 40_000, PriceCeiling: 100_000_000, SupplyCap: 1_000_000},
			state:    State{Supply: 1_000_000},
			expected: decimal.NewFromInt(100_000_000),
		},
		{
			name:     "linear division is the base price",
			params:   Params{Model: LinearDivision, BasePrice: 250},
			state:    State{Supply: 42},
			expected: decimal.NewFromInt(250),
		},
		{
			name:     "constant ratio is the reserve ratio",
			params:   Params{Model: ConstantRatio},
			state:    State{ReserveBase: 300, ReserveToken: 100},
			expected: decimal.NewFromInt(3),
		},
		{
			name:     "constant ratio with empty token reserve",
			params:   Params{Model: ConstantRatio},
			state:    State{ReserveBase: 300},
			expected: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SpotPrice(tt.params, tt.state)
			assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestEffectivePriceAndImpact(t *testing.T) {
	spot := decimal.NewFromInt(100)

	eff := EffectivePrice(1_050, 10)
	assert.True(t, decimal.NewFromInt(105).Equal(eff))

	impact := PriceImpact(spot, eff)
	assert.True(t, decimal.NewFromFloat(0.05).Equal(impact), "got %s", impact)

	assert.True(t, EffectivePrice(100, 0).IsZero())
	assert.True(t, PriceImpact(decimal.Zero, eff).IsZero())
}
