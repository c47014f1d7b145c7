package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flakefi/flake-backend/internal/bank"
	"github.com/flakefi/flake-backend/internal/curve"
)

const (
	authorityAddr = bank.Address("0x00a1")
	recipientAddr = bank.Address("0x00f1")
	creatorAddr   = bank.Address("0x00c1")
	traderAddr    = bank.Address("0x00t1")
	otherAddr     = bank.Address("0x00t2")
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(NewMemoryState(), bank.New(), []byte("deterministic-test-seed"))
	e.SetNowFunc(func() int64 { return 1_756_500_000 })
	return e
}

func initFactory(t *testing.T, e *Engine, protocolFeeRate uint16) {
	t.Helper()
	_, err := e.Initialize(authorityAddr, recipientAddr, protocolFeeRate)
	require.NoError(t, err)
}

func u16(v uint16) *uint16 { return &v }

func createDefaultPair(t *testing.T, e *Engine, creatorFeeRate uint16) *Pair {
	t.Helper()
	pair, err := e.CreatePair(CreatePairParams{
		Creator:        creatorAddr,
		CreatorFeeRate: u16(creatorFeeRate),
		Metadata:       PairMetadata{Name: "Flake Token", Ticker: "FLK"},
	})
	require.NoError(t, err)
	return pair
}

func TestInitialize(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Initialize(authorityAddr, recipientAddr, 10_001)
	require.ErrorIs(t, err, ErrInvalidProtocolFee)

	factory, err := e.Initialize(authorityAddr, recipientAddr, 500)
	require.NoError(t, err)
	assert.Equal(t, uint16(500), factory.ProtocolFeeRate)
	assert.Equal(t, uint64(0), factory.PairCount)

	_, err = e.Initialize(authorityAddr, recipientAddr, 500)
	require.ErrorIs(t, err, ErrFactoryAlreadyInitialized)
}

func TestCreatePairRequiresFactory(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreatePair(CreatePairParams{Creator: creatorAddr})
	require.ErrorIs(t, err, ErrFactoryNotInitialized)
}

func TestCreatePairValidation(t *testing.T) {
	longStr := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}

	tests := []struct {
		name    string
		params  CreatePairParams
		wantErr error
	}{
		{
			name: "name too long",
			params: CreatePairParams{
				Creator:  creatorAddr,
				Metadata: PairMetadata{Name: longStr(33)},
			},
			wantErr: ErrInvalidStringLength,
		},
		{
			name: "ticker too long",
			params: CreatePairParams{
				Creator:  creatorAddr,
				Metadata: PairMetadata{Ticker: longStr(11)},
			},
			wantErr: ErrInvalidStringLength,
		},
		{
			name: "description too long",
			params: CreatePairParams{
				Creator:  creatorAddr,
				Metadata: PairMetadata{Description: longStr(201)},
			},
			wantErr: ErrInvalidStringLength,
		},
		{
			name: "link too long",
			params: CreatePairParams{
				Creator:  creatorAddr,
				Metadata: PairMetadata{Website: longStr(201)},
			},
			wantErr: ErrInvalidStringLength,
		},
		{
			name: "catalog entry free",
			params: CreatePairParams{
				Creator:        creatorAddr,
				RequestCatalog: []OfferEntry{{Price: 0, Description: "shoutout"}},
			},
			wantErr: ErrInvalidRequestPrice,
		},
		{
			name: "catalog description too long",
			params: CreatePairParams{
				Creator:        creatorAddr,
				RequestCatalog: []OfferEntry{{Price: 10, Description: longStr(201)}},
			},
			wantErr: ErrInvalidStringLength,
		},
		{
			name: "zero base price",
			params: CreatePairParams{
				Creator: creatorAddr,
				Curve:   &curve.Params{Model: curve.LinearDivision, BasePrice: 0},
			},
			wantErr: ErrInvalidBasePrice,
		},
		{
			name: "fee sum above cap",
			params: CreatePairParams{
				Creator:        creatorAddr,
				CreatorFeeRate: u16(9_600),
			},
			wantErr: ErrInvalidCreatorFee,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t)
			initFactory(t, e, 500)

			_, err := e.CreatePair(tc.params)
			require.ErrorIs(t, err, tc.wantErr)

			// Validate-all-then-commit: nothing may exist after a failure.
			factory, ferr := e.Factory()
			require.NoError(t, ferr)
			assert.Equal(t, uint64(0), factory.PairCount)
			pairs, perr := e.Pairs()
			require.NoError(t, perr)
			assert.Empty(t, pairs)
			assert.Equal(t, uint64(0), e.Bank().Supply("flake-token-0"))
		})
	}
}

func TestCreatePairAssignsSequentialNumbers(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)

	first := createDefaultPair(t, e, 0)
	second := createDefaultPair(t, e, 100)
	assert.Equal(t, uint64(0), first.CreationNumber)
	assert.Equal(t, uint64(1), second.CreationNumber)
	assert.NotEqual(t, first.Vault, second.Vault)
	assert.NotEqual(t, first.TokenMint, second.TokenMint)

	factory, err := e.Factory()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), factory.PairCount)

	pairs, err := e.Pairs()
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, uint64(0), pairs[0].CreationNumber)
	assert.Equal(t, uint64(1), pairs[1].CreationNumber)
}

// The deterministic scenario: 5% protocol fee, protocol-default quadratic
// bounds, a buy of 1_000_000 base units at zero supply yields exactly 24
// token units.
func TestBuyEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 0)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 1_000_000))

	res, err := e.Swap(pair.CreationNumber, traderAddr, 1_000_000, 0, true)
	require.NoError(t, err)

	assert.Equal(t, uint64(24), res.AmountOut)
	assert.Equal(t, uint64(24), res.SupplyMarker)
	assert.Equal(t, uint64(50_000), res.ProtocolFee)
	assert.Equal(t, uint64(0), res.CreatorFee)
	assert.Equal(t, uint64(1_000_000), res.VaultBalance)

	assert.Equal(t, uint64(0), e.Bank().BaseBalance(traderAddr))
	assert.Equal(t, uint64(24), e.Bank().BalanceOf(pair.TokenMint, traderAddr))
	assert.Equal(t, uint64(24), e.Bank().Supply(pair.TokenMint))

	stored, err := e.PairByID(pair.CreationNumber)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), stored.SupplyMarker)
	assert.Equal(t, uint64(50_000), stored.UnclaimedFees)
}

func TestBuySlippageLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 0)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 1_000_000))

	_, err := e.Swap(pair.CreationNumber, traderAddr, 1_000_000, 1_000, true)
	require.ErrorIs(t, err, ErrSlippageExceeded)

	stored, err := e.PairByID(pair.CreationNumber)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.SupplyMarker)
	assert.Equal(t, uint64(0), stored.UnclaimedFees)
	assert.Equal(t, uint64(1_000_000), e.Bank().BaseBalance(traderAddr))
	assert.Equal(t, uint64(0), e.Bank().BaseBalance(stored.Vault))
	assert.Equal(t, uint64(0), e.Bank().Supply(pair.TokenMint))
}

func TestBuyRejectsZeroAndUnknownPair(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 0)

	_, err := e.Swap(pair.CreationNumber, traderAddr, 0, 0, true)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = e.Swap(99, traderAddr, 100, 0, true)
	require.ErrorIs(t, err, ErrPairNotFound)
}

func TestBuyInsufficientTraderFunds(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 0)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 10))

	_, err := e.Swap(pair.CreationNumber, traderAddr, 1_000_000, 0, true)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)

	stored, serr := e.PairByID(pair.CreationNumber)
	require.NoError(t, serr)
	assert.Equal(t, uint64(0), stored.SupplyMarker)
	assert.Equal(t, uint64(10), e.Bank().BaseBalance(traderAddr))
}

func TestSupplyCapExhaustion(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 0)
	pair, err := e.CreatePair(CreatePairParams{
		Creator:        creatorAddr,
		CreatorFeeRate: u16(0),
		Curve: &curve.Params{
			Model:        curve.BoundedQuadratic,
			PriceFloor:   1,
			PriceCeiling: 3,
			SupplyCap:    2,
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 100))

	res, err := e.Swap(pair.CreationNumber, traderAddr, 4, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.AmountOut)

	_, err = e.Swap(pair.CreationNumber, traderAddr, 10, 0, true)
	require.ErrorIs(t, err, ErrSupplyExhausted)
}

func TestSellRoundTripNeverProfitable(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 100)
	const funding = 5_000_000
	require.NoError(t, e.Bank().CreditBase(traderAddr, funding))

	buy, err := e.Swap(pair.CreationNumber, traderAddr, 5_000_000, 0, true)
	require.NoError(t, err)
	require.Positive(t, buy.AmountOut)

	sell, err := e.Swap(pair.CreationNumber, traderAddr, buy.AmountOut, 0, false)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), e.Bank().BalanceOf(pair.TokenMint, traderAddr))
	assert.Equal(t, uint64(0), e.Bank().Supply(pair.TokenMint))
	assert.LessOrEqual(t, e.Bank().BaseBalance(traderAddr), uint64(funding))
	assert.Equal(t, sell.AmountOut, e.Bank().BaseBalance(traderAddr))

	stored, err := e.PairByID(pair.CreationNumber)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.SupplyMarker)
}

func TestSellFeesApplySymmetrically(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 100)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 1_000_000))

	buy, err := e.Swap(pair.CreationNumber, traderAddr, 1_000_000, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), buy.CreatorFee)
	assert.Equal(t, uint64(10_000), e.Bank().BaseBalance(creatorAddr))

	stored, err := e.PairByID(pair.CreationNumber)
	require.NoError(t, err)
	gross, err := curve.Sell(stored.Curve, stored.CurveState(), buy.AmountOut)
	require.NoError(t, err)
	wantProtocol := gross * 500 / 10_000
	wantCreator := gross * 100 / 10_000

	sell, err := e.Swap(pair.CreationNumber, traderAddr, buy.AmountOut, 0, false)
	require.NoError(t, err)
	assert.Equal(t, wantProtocol, sell.ProtocolFee)
	assert.Equal(t, wantCreator, sell.CreatorFee)
	assert.Equal(t, gross-wantProtocol-wantCreator, sell.AmountOut)
	assert.Equal(t, uint64(10_000)+wantCreator, e.Bank().BaseBalance(creatorAddr))

	// Fee conservation on both legs.
	assert.LessOrEqual(t, buy.ProtocolFee+buy.CreatorFee, buy.AmountIn)
	assert.LessOrEqual(t, sell.ProtocolFee+sell.CreatorFee, gross)
}

func TestSellBeyondSupply(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 0)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 1_000_000))

	buy, err := e.Swap(pair.CreationNumber, traderAddr, 1_000_000, 0, true)
	require.NoError(t, err)

	_, err = e.Swap(pair.CreationNumber, traderAddr, buy.AmountOut+1, 0, false)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestLinearDivisionPair(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 0)
	pair, err := e.CreatePair(CreatePairParams{
		Creator:        creatorAddr,
		CreatorFeeRate: u16(0),
		Curve:          &curve.Params{Model: curve.LinearDivision, BasePrice: 100},
	})
	require.NoError(t, err)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 1_050))

	buy, err := e.Swap(pair.CreationNumber, traderAddr, 1_050, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), buy.AmountOut)

	sell, err := e.Swap(pair.CreationNumber, traderAddr, 10, 0, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), sell.AmountOut)
	// The 50-unit remainder from the floored buy stays in the vault.
	assert.Equal(t, uint64(50), e.Bank().BaseBalance(pair.Vault))
}

func TestConstantRatioPair(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 0)
	require.NoError(t, e.Bank().CreditBase(creatorAddr, 1_000))
	pair, err := e.CreatePair(CreatePairParams{
		Creator:          creatorAddr,
		CreatorFeeRate:   u16(0),
		Curve:            &curve.Params{Model: curve.ConstantRatio},
		SeedBaseReserve:  1_000,
		SeedTokenReserve: 1_000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), pair.ReserveBase)
	assert.Equal(t, uint64(1_000), pair.ReserveToken)
	assert.Equal(t, uint64(1_000), e.Bank().BalanceOf(pair.TokenMint, pair.Vault))

	require.NoError(t, e.Bank().CreditBase(traderAddr, 100))
	buy, err := e.Swap(pair.CreationNumber, traderAddr, 100, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), buy.AmountOut)
	assert.Equal(t, uint64(100), e.Bank().BalanceOf(pair.TokenMint, traderAddr))

	stored, err := e.PairByID(pair.CreationNumber)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_100), stored.ReserveBase)
	assert.Equal(t, uint64(900), stored.ReserveToken)

	sell, err := e.Swap(pair.CreationNumber, traderAddr, 40, 0, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), sell.AmountOut)

	stored, err = e.PairByID(pair.CreationNumber)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_060), stored.ReserveBase)
	assert.Equal(t, uint64(940), stored.ReserveToken)
}

func TestConstantRatioEmptyReserves(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 0)
	pair, err := e.CreatePair(CreatePairParams{
		Creator:        creatorAddr,
		CreatorFeeRate: u16(0),
		Curve:          &curve.Params{Model: curve.ConstantRatio},
	})
	require.NoError(t, err)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 100))

	_, err = e.Swap(pair.CreationNumber, traderAddr, 100, 0, true)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestClaimFees(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 0)
	require.NoError(t, e.Bank().CreditBase(traderAddr, 1_000_000))
	_, err := e.Swap(pair.CreationNumber, traderAddr, 1_000_000, 0, true)
	require.NoError(t, err)

	_, err = e.ClaimFees(pair.CreationNumber, otherAddr)
	require.ErrorIs(t, err, ErrUnauthorizedCaller)

	claimed, err := e.ClaimFees(pair.CreationNumber, creatorAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), claimed)
	assert.Equal(t, uint64(50_000), e.Bank().BaseBalance(creatorAddr))
	assert.Equal(t, uint64(950_000), e.Bank().BaseBalance(pair.Vault))

	stored, err := e.PairByID(pair.CreationNumber)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.UnclaimedFees)

	_, err = e.ClaimFees(pair.CreationNumber, creatorAddr)
	require.ErrorIs(t, err, ErrNoFeesToClaim)
}

func TestQuoteSwapDoesNotMutate(t *testing.T) {
	e := newTestEngine(t)
	initFactory(t, e, 500)
	pair := createDefaultPair(t, e, 100)

	quote, err := e.QuoteSwap(pair.CreationNumber, 1_000_000, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), quote.AmountOut)
	assert.Equal(t, uint64(50_000), quote.ProtocolFee)
	assert.Equal(t, uint64(10_000), quote.CreatorFee)
	assert.NotEmpty(t, quote.SpotPrice)

	stored, err := e.PairByID(pair.CreationNumber)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stored.SupplyMarker)
	assert.Equal(t, uint64(0), e.Bank().Supply(pair.TokenMint))
}

func TestFeeBps(t *testing.T) {
	tests := []struct {
		amount uint64
		rate   uint16
		want   uint64
	}{
		{0, 500, 0},
		{1_000_000, 500, 50_000},
		{1_000_000, 0, 0},
		{3, 10_000, 3},
		{1, 1, 0},
		{^uint64(0), 10_000, ^uint64(0)},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, feeBps(tc.amount, tc.rate), "feeBps(%d, %d)", tc.amount, tc.rate)
	}
}
