package curve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr error
	}{
		{
			name:   "default quadratic params",
			params: DefaultParams(),
		},
		{
			name:   "constant ratio needs nothing",
			params: Params{Model: ConstantRatio},
		},
		{
			name:    "linear division zero base price",
			params:  Params{Model: LinearDivision},
			wantErr: ErrBadParams,
		},
		{
			name:    "quadratic zero floor",
			params:  Params{Model: BoundedQuadratic, PriceCeiling: 10, SupplyCap: 100},
			wantErr: ErrBadParams,
		},
		{
			name:    "quadratic floor above ceiling",
			params:  Params{Model: BoundedQuadratic, PriceFloor: 20, PriceCeiling: 10, SupplyCap: 100},
			wantErr: ErrBadParams,
		},
		{
			name:    "quadratic zero supply cap",
			params:  Params{Model: BoundedQuadratic, PriceFloor: 1, PriceCeiling: 10},
			wantErr: ErrBadParams,
		},
		{
			name:    "unknown model",
			params:  Params{Model: Model(9)},
			wantErr: ErrUnknownModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestQuadraticBuyExact(t *testing.T) {
	// Price p(s) = 1 + s on a curve with floor 1, ceiling 3, cap 2.
	// The integral from 0 to 2 is exactly 4, so paying 4 buys the whole cap.
	p := Params{Model: BoundedQuadratic, PriceFloor: 1, PriceCeiling: 3, SupplyCap: 2}

	out, err := Buy(p, State{Supply: 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), out)

	// Selling those 2 units back at supply 2 refunds exactly the 4 paid.
	refund, err := Sell(p, State{Supply: 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), refund)
}

func TestQuadraticBuyProtocolDefaults(t *testing.T) {
	// With the protocol default bounds the curve is nearly flat at zero
	// supply, so 1_000_000 buys just under payment/floor = 25 units. The
	// floor rounding must land on 24, never 25.
	p := DefaultParams()

	out, err := Buy(p, State{Supply: 0}, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), out)
}

func TestQuadraticBuyDegenerateFlat(t *testing.T) {
	p := Params{Model: BoundedQuadratic, PriceFloor: 500, PriceCeiling: 500, SupplyCap: 1_000_000}

	out, err := Buy(p, State{Supply: 10}, 1_750)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), out)

	refund, err := Sell(p, State{Supply: 13}, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500), refund)
}

func TestQuadraticBuyZeroPayment(t *testing.T) {
	out, err := Buy(DefaultParams(), State{Supply: 123}, 0)
	require.NoError(t, err)
	assert.Zero(t, out)
}

func TestQuadraticBuyMonotonic(t *testing.T) {
	p := DefaultParams()
	s := State{Supply: 5_000_000}

	var prev uint64
	for _, payment := range []uint64{1, 1_000, 50_000, 1_000_000, 250_000_000, 9_000_000_000} {
		out, err := Buy(p, s, payment)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out, prev, "buy output must not shrink as payment grows")
		prev = out
	}
}

func TestQuadraticRoundTripNeverProfitable(t *testing.T) {
	// Buying dS and immediately selling the same dS back must never return
	// more than the original payment.
	p := Params{Model: BoundedQuadratic, PriceFloor: 40_000, PriceCeiling: 100_000_000, SupplyCap: 1_000_000_000}

	payments := []uint64{1, 40_000, 123_456, 1_000_000, 777_777_777, 40_000_000_000}
	supplies := []uint64{0, 1, 999, 1_000_000, 500_000_000}

	for _, s0 := range supplies {
		for _, payment := range payments {
			bought, err := Buy(p, State{Supply: s0}, payment)
			require.NoError(t, err)
			if s0+bought > p.SupplyCap {
				continue
			}
			refund, err := Sell(p, State{Supply: s0 + bought}, bought)
			require.NoError(t, err)
			assert.LessOrEqual(t, refund, payment,
				"round trip at supply %d with payment %d returned %d", s0, payment, refund)
		}
	}
}

func TestQuadraticSellBeyondSupply(t *testing.T) {
	_, err := Sell(DefaultParams(), State{Supply: 10}, 11)
	assert.ErrorIs(t, err, ErrBadParams)
}

func TestLinearDivision(t *testing.T) {
	p := Params{Model: LinearDivision, BasePrice: 250}

	out, err := Buy(p, State{}, 1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), out)

	// Floors toward zero.
	out, err = Buy(p, State{}, 999)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), out)

	refund, err := Sell(p, State{}, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), refund)
}

func TestLinearDivisionSellOverflow(t *testing.T) {
	p := Params{Model: LinearDivision, BasePrice: 1 << 40}
	_, err := Sell(p, State{}, 1<<40)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestConstantRatio(t *testing.T) {
	p := Params{Model: ConstantRatio}

	tests := []struct {
		name    string
		state   State
		amount  uint64
		buy     bool
		want    uint64
		wantErr error
	}{
		{
			name:  "buy against funded reserves",
			state: State{ReserveBase: 500, ReserveToken: 500},
			buy:   true, amount: 100, want: 100,
		},
		{
			name:  "sell against funded reserves",
			state: State{ReserveBase: 500, ReserveToken: 500},
			amount: 100, want: 100,
		},
		{
			name:    "empty base reserve",
			state:   State{ReserveBase: 0, ReserveToken: 500},
			buy:     true,
			amount:  100,
			wantErr: ErrNoLiquidity,
		},
		{
			name:    "empty token reserve",
			state:   State{ReserveBase: 500, ReserveToken: 0},
			buy:     true,
			amount:  100,
			wantErr: ErrNoLiquidity,
		},
		{
			name:    "buy drains more than token reserve",
			state:   State{ReserveBase: 500, ReserveToken: 50},
			buy:     true,
			amount:  100,
			wantErr: ErrNoLiquidity,
		},
		{
			name:    "sell drains more than base reserve",
			state:   State{ReserveBase: 50, ReserveToken: 500},
			amount:  100,
			wantErr: ErrNoLiquidity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got uint64
				err error
			)
			if tt.buy {
				got, err = Buy(p, tt.state, tt.amount)
			} else {
				got, err = Sell(p, tt.state, tt.amount)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
