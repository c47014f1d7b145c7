package exchange

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flakefi/flake-backend/internal/bank"
	"github.com/flakefi/flake-backend/internal/curve"
)

// TokenDecimals is the decimal precision every pair token is minted with.
const TokenDecimals uint8 = 9

// DefaultMaxPendingRequests bounds each of a pair's request lists. Appends
// beyond the cap fail with ErrRequestQueueFull.
const DefaultMaxPendingRequests = 10

// Engine orchestrates the factory registry, pair settlement, the request
// lifecycle and fee accrual over a State backend and the bank collaborator.
// Operations on one pair are serialized internally; operations on distinct
// pairs run concurrently.
type Engine struct {
	state  State
	bank   *bank.Bank
	sink   EventSink
	logger *zap.SugaredLogger
	seed   []byte
	nowFn  func() int64

	maxPending int

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewEngine constructs an engine. The seed feeds the deterministic
// derivation of every pair's custody capabilities and must stay stable
// across restarts.
func NewEngine(state State, vault *bank.Bank, seed []byte) *Engine {
	return &Engine{
		state:      state,
		bank:       vault,
		sink:       NoopSink{},
		logger:     zap.NewNop().Sugar(),
		seed:       append([]byte(nil), seed...),
		nowFn:      func() int64 { return time.Now().Unix() },
		maxPending: DefaultMaxPendingRequests,
		locks:      map[uint64]*sync.Mutex{},
	}
}

// SetSink configures the event sink used for live updates.
func (e *Engine) SetSink(sink EventSink) {
	if sink == nil {
		e.sink = NoopSink{}
		return
	}
	e.sink = sink
}

// SetLogger configures the engine logger.
func (e *Engine) SetLogger(logger *zap.SugaredLogger) {
	if logger == nil {
		e.logger = zap.NewNop().Sugar()
		return
	}
	e.logger = logger
}

// SetNowFunc overrides the time source for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetMaxPendingRequests overrides the per-list request capacity.
func (e *Engine) SetMaxPendingRequests(n int) {
	if n > 0 {
		e.maxPending = n
	}
}

// Bank exposes the custody collaborator for read paths (balances, faucet).
func (e *Engine) Bank() *bank.Bank { return e.bank }

func (e *Engine) pairLock(creationNumber uint64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[creationNumber]
	if !ok {
		l = &sync.Mutex{}
		e.locks[creationNumber] = l
	}
	return l
}

func (e *Engine) vaultCapability(p *Pair) bank.Capability {
	return deriveCapability(e.seed, vaultKeyLabel, p.Creator, p.CreationNumber)
}

func (e *Engine) escrowCapability(p *Pair) bank.Capability {
	return deriveCapability(e.seed, escrowKeyLabel, p.Creator, p.CreationNumber)
}

func (e *Engine) emit(evt Event) {
	evt.At = e.nowFn()
	e.sink.Publish(evt)
}

// Initialize creates the factory registry. It may run exactly once.
func (e *Engine) Initialize(authority, feeRecipient bank.Address, protocolFeeRate uint16) (*Factory, error) {
	if protocolFeeRate > MaxFeeRate {
		return nil, ErrInvalidProtocolFee
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok, err := e.state.FactoryGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrFactoryAlreadyInitialized
	}
	factory := &Factory{
		Authority:       authority,
		FeeRecipient:    feeRecipient,
		ProtocolFeeRate: protocolFeeRate,
		PairCount:       0,
	}
	if err := e.state.FactoryPut(factory); err != nil {
		return nil, err
	}
	e.logger.Infow("factory initialized",
		"authority", authority,
		"fee_recipient", feeRecipient,
		"protocol_fee_bps", protocolFeeRate,
	)
	return factory.Clone(), nil
}

// Factory returns the registry, if initialized.
func (e *Engine) Factory() (*Factory, error) {
	f, ok, err := e.state.FactoryGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrFactoryNotInitialized
	}
	return f, nil
}

// CreatePairParams carries everything pair creation validates and freezes.
type CreatePairParams struct {
	Creator             bank.Address
	CreatorTokenAccount bank.Address
	Curve               *curve.Params
	CreatorFeeRate      *uint16
	Metadata            PairMetadata
	RequestCatalog      []OfferEntry

	// ConstantRatio pairs start against seeded reserves: base asset moved
	// from the creator, tokens minted straight into the vault.
	SeedBaseReserve  uint64
	SeedTokenReserve uint64
}

func checkLen(value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%w: %d > %d bytes", ErrInvalidStringLength, len(value), max)
	}
	return nil
}

func validateMetadata(m PairMetadata) error {
	if err := checkLen(m.Name, MaxNameLen); err != nil {
		return err
	}
	if err := checkLen(m.Ticker, MaxTickerLen); err != nil {
		return err
	}
	if err := checkLen(m.Description, MaxDescriptionLen); err != nil {
		return err
	}
	for _, link := range []string{m.Website, m.Twitter, m.Telegram, m.ImageURI} {
		if err := checkLen(link, MaxLinkLen); err != nil {
			return err
		}
	}
	return nil
}

// CreatePair validates every input, then commits the new pair: mint created
// with the pair as exclusive authority, vault and escrow registered under
// the pair's derived capabilities, creation counter advanced. Nothing is
// written if any validation fails.
func (e *Engine) CreatePair(params CreatePairParams) (*Pair, error) {
	if params.Creator == "" {
		return nil, fmt.Errorf("%w: creator address required", bank.ErrInvalidAddress)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	factory, ok, err := e.state.FactoryGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrFactoryNotInitialized
	}
	if factory.PairCount == math.MaxUint64 {
		return nil, ErrPairCounterOverflow
	}

	curveParams := curve.DefaultParams()
	if params.Curve != nil {
		curveParams = *params.Curve
	}
	if err := curveParams.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePrice, err)
	}

	creatorFeeRate := DefaultCreatorFeeRate
	if params.CreatorFeeRate != nil {
		creatorFeeRate = *params.CreatorFeeRate
	}
	if uint32(factory.ProtocolFeeRate)+uint32(creatorFeeRate) > uint32(MaxFeeRate) {
		return nil, ErrInvalidCreatorFee
	}

	if err := validateMetadata(params.Metadata); err != nil {
		return nil, err
	}
	for i, offer := range params.RequestCatalog {
		if offer.Price == 0 {
			return nil, fmt.Errorf("%w: catalog entry %d", ErrInvalidRequestPrice, i)
		}
		if err := checkLen(offer.Description, MaxDescriptionLen); err != nil {
			return nil, err
		}
	}

	creationNumber := factory.PairCount
	vaultCap := deriveCapability(e.seed, vaultKeyLabel, params.Creator, creationNumber)
	escrowCap := deriveCapability(e.seed, escrowKeyLabel, params.Creator, creationNumber)

	creatorTokenAccount := params.CreatorTokenAccount
	if creatorTokenAccount == "" {
		creatorTokenAccount = params.Creator
	}

	mintRef := bank.MintRef("flake-token-" + strconv.FormatUint(creationNumber, 10))
	if err := e.bank.CreateMint(mintRef, TokenDecimals, vaultCap.Holder(), vaultCap.Holder()); err != nil {
		return nil, err
	}
	if err := e.bank.RegisterVault(vaultCap.Holder(), vaultCap.key.PubKey()); err != nil {
		return nil, err
	}
	if err := e.bank.RegisterVault(escrowCap.Holder(), escrowCap.key.PubKey()); err != nil {
		return nil, err
	}

	pair := &Pair{
		Creator:             params.Creator,
		CreationNumber:      creationNumber,
		TokenMint:           mintRef,
		CreatorTokenAccount: creatorTokenAccount,
		Curve:               curveParams,
		SupplyMarker:        0,
		ProtocolFeeRate:     factory.ProtocolFeeRate,
		CreatorFeeRate:      creatorFeeRate,
		Vault:               vaultCap.Holder(),
		Escrow:              escrowCap.Holder(),
		Metadata:            params.Metadata,
		RequestCatalog:      append([]OfferEntry(nil), params.RequestCatalog...),
		PendingRequests:     []Request{},
		AdRequests:          []Request{},
		CreatedAt:           e.nowFn(),
	}

	if curveParams.Model == curve.ConstantRatio && (params.SeedBaseReserve > 0 || params.SeedTokenReserve > 0) {
		err := e.bank.Atomic(func(tx *bank.Tx) error {
			if params.SeedBaseReserve > 0 {
				if err := tx.MoveBaseAsset(params.SeedBaseReserve, params.Creator, pair.Vault, nil); err != nil {
					return err
				}
			}
			if params.SeedTokenReserve > 0 {
				if err := tx.Mint(mintRef, params.SeedTokenReserve, pair.Vault, vaultCap); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		pair.ReserveBase = params.SeedBaseReserve
		pair.ReserveToken = params.SeedTokenReserve
	}

	if err := e.state.PairPut(pair); err != nil {
		return nil, err
	}
	factory.PairCount++
	if err := e.state.FactoryPut(factory); err != nil {
		return nil, err
	}

	e.logger.Infow("pair created",
		"pair", creationNumber,
		"creator", params.Creator,
		"model", curveParams.Model.String(),
		"ticker", params.Metadata.Ticker,
	)
	e.emit(Event{Type: EventPairCreated, Pair: creationNumber, Actor: params.Creator, Payload: map[string]any{
		"ticker": params.Metadata.Ticker,
		"model":  curveParams.Model.String(),
	}})
	return pair.Clone(), nil
}

// PairByID returns a copy of the pair record.
func (e *Engine) PairByID(creationNumber uint64) (*Pair, error) {
	p, ok, err := e.state.PairGet(creationNumber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPairNotFound
	}
	return p, nil
}

// Pairs lists every pair ordered by creation number.
func (e *Engine) Pairs() ([]*Pair, error) {
	return e.state.PairList()
}

// feeBps computes amount*rate/10000 with 128-bit intermediate precision.
// The result never exceeds amount because rates are capped at 10000.
func feeBps(amount uint64, rate uint16) uint64 {
	hi, lo := bits.Mul64(amount, uint64(rate))
	q, _ := bits.Div64(hi, lo, 10_000)
	return q
}

func checkedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

func mapCurveErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, curve.ErrNoLiquidity):
		return ErrInsufficientLiquidity
	case errors.Is(err, curve.ErrOverflow):
		return ErrAmountOverflow
	default:
		return fmt.Errorf("%w: %v", ErrInvalidBasePrice, err)
	}
}

// Swap settles one trade against the pair's curve: quote, slippage gate,
// fee split, fund movement and supply adjustment applied as one unit.
func (e *Engine) Swap(creationNumber uint64, trader bank.Address, amountIn, minAmountOut uint64, isBuy bool) (*SwapResult, error) {
	if amountIn == 0 {
		return nil, ErrInvalidAmount
	}
	if trader == "" {
		return nil, bank.ErrInvalidAddress
	}

	lock := e.pairLock(creationNumber)
	lock.Lock()
	defer lock.Unlock()

	pair, ok, err := e.state.PairGet(creationNumber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPairNotFound
	}

	var result *SwapResult
	if isBuy {
		result, err = e.settleBuy(pair, trader, amountIn, minAmountOut)
	} else {
		result, err = e.settleSell(pair, trader, amountIn, minAmountOut)
	}
	if err != nil {
		return nil, err
	}

	if err := e.state.PairPut(pair); err != nil {
		return nil, err
	}
	result.VaultBalance = e.bank.BaseBalance(pair.Vault)

	e.logger.Infow("swap settled",
		"pair", creationNumber,
		"trader", trader,
		"buy", isBuy,
		"amount_in", result.AmountIn,
		"amount_out", result.AmountOut,
		"protocol_fee", result.ProtocolFee,
		"creator_fee", result.CreatorFee,
	)
	e.emit(Event{Type: EventSwapExecuted, Pair: creationNumber, Actor: trader, Payload: map[string]any{
		"buy":        isBuy,
		"amount_in":  result.AmountIn,
		"amount_out": result.AmountOut,
	}})
	return result, nil
}

// settleBuy mutates the pair clone in place; the caller commits it only
// after the funding unit succeeded.
func (e *Engine) settleBuy(pair *Pair, trader bank.Address, amountIn, minAmountOut uint64) (*SwapResult, error) {
	amountOut, err := curve.Buy(pair.Curve, pair.CurveState(), amountIn)
	if err != nil {
		return nil, mapCurveErr(err)
	}
	if amountOut < minAmountOut {
		return nil, ErrSlippageExceeded
	}

	protocolFee := feeBps(amountIn, pair.ProtocolFeeRate)
	creatorFee := feeBps(amountIn, pair.CreatorFeeRate)

	newSupply := pair.SupplyMarker
	if pair.Curve.Model != curve.ConstantRatio {
		newSupply, err = checkedAdd(pair.SupplyMarker, amountOut)
		if err != nil {
			return nil, err
		}
		if pair.Curve.Model == curve.BoundedQuadratic && newSupply > pair.Curve.SupplyCap {
			return nil, ErrSupplyExhausted
		}
	}
	newUnclaimed, err := checkedAdd(pair.UnclaimedFees, protocolFee)
	if err != nil {
		return nil, err
	}

	vaultCap := e.vaultCapability(pair)
	err = e.bank.Atomic(func(tx *bank.Tx) error {
		if err := tx.MoveBaseAsset(amountIn, trader, pair.Vault, nil); err != nil {
			return err
		}
		if creatorFee > 0 {
			if err := tx.MoveBaseAsset(creatorFee, pair.Vault, pair.Creator, vaultCap); err != nil {
				return err
			}
		}
		if pair.Curve.Model == curve.ConstantRatio {
			return tx.Transfer(pair.TokenMint, amountOut, pair.Vault, trader, vaultCap)
		}
		return tx.Mint(pair.TokenMint, amountOut, trader, vaultCap)
	})
	if err != nil {
		return nil, err
	}

	pair.SupplyMarker = newSupply
	pair.UnclaimedFees = newUnclaimed
	if pair.Curve.Model == curve.ConstantRatio {
		pair.ReserveBase += amountIn - creatorFee - protocolFee
		pair.ReserveToken -= amountOut
	}

	return &SwapResult{
		Pair:         pair.CreationNumber,
		IsBuy:        true,
		Trader:       trader,
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		ProtocolFee:  protocolFee,
		CreatorFee:   creatorFee,
		SupplyMarker: pair.SupplyMarker,
	}, nil
}

func (e *Engine) settleSell(pair *Pair, trader bank.Address, amountIn, minAmountOut uint64) (*SwapResult, error) {
	if pair.Curve.Model != curve.ConstantRatio && amountIn > pair.SupplyMarker {
		return nil, ErrInsufficientLiquidity
	}

	gross, err := curve.Sell(pair.Curve, pair.CurveState(), amountIn)
	if err != nil {
		return nil, mapCurveErr(err)
	}

	protocolFee := feeBps(gross, pair.ProtocolFeeRate)
	creatorFee := feeBps(gross, pair.CreatorFeeRate)
	net := gross - protocolFee - creatorFee
	if net < minAmountOut {
		return nil, ErrSlippageExceeded
	}
	if e.bank.BaseBalance(pair.Vault) < gross {
		return nil, ErrInsufficientLiquidity
	}
	newUnclaimed, err := checkedAdd(pair.UnclaimedFees, protocolFee)
	if err != nil {
		return nil, err
	}

	vaultCap := e.vaultCapability(pair)
	err = e.bank.Atomic(func(tx *bank.Tx) error {
		if pair.Curve.Model == curve.ConstantRatio {
			if err := tx.Transfer(pair.TokenMint, amountIn, trader, pair.Vault, nil); err != nil {
				return err
			}
		} else {
			if err := tx.Burn(pair.TokenMint, amountIn, trader, nil); err != nil {
				return err
			}
		}
		if err := tx.MoveBaseAsset(net, pair.Vault, trader, vaultCap); err != nil {
			return err
		}
		if creatorFee > 0 {
			return tx.MoveBaseAsset(creatorFee, pair.Vault, pair.Creator, vaultCap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pair.Curve.Model == curve.ConstantRatio {
		pair.ReserveBase -= gross
		pair.ReserveToken += amountIn
	} else {
		pair.SupplyMarker -= amountIn
	}
	pair.UnclaimedFees = newUnclaimed

	return &SwapResult{
		Pair:         pair.CreationNumber,
		IsBuy:        false,
		Trader:       trader,
		AmountIn:     amountIn,
		AmountOut:    net,
		ProtocolFee:  protocolFee,
		CreatorFee:   creatorFee,
		SupplyMarker: pair.SupplyMarker,
	}, nil
}

// QuoteSwap previews a swap without touching state.
func (e *Engine) QuoteSwap(creationNumber uint64, amountIn uint64, isBuy bool) (*Quote, error) {
	if amountIn == 0 {
		return nil, ErrInvalidAmount
	}
	pair, err := e.PairByID(creationNumber)
	if err != nil {
		return nil, err
	}

	var (
		amountOut   uint64
		protocolFee uint64
		creatorFee  uint64
	)
	if isBuy {
		amountOut, err = curve.Buy(pair.Curve, pair.CurveState(), amountIn)
		if err != nil {
			return nil, mapCurveErr(err)
		}
		protocolFee = feeBps(amountIn, pair.ProtocolFeeRate)
		creatorFee = feeBps(amountIn, pair.CreatorFeeRate)
	} else {
		if pair.Curve.Model != curve.ConstantRatio && amountIn > pair.SupplyMarker {
			return nil, ErrInsufficientLiquidity
		}
		gross, serr := curve.Sell(pair.Curve, pair.CurveState(), amountIn)
		if serr != nil {
			return nil, mapCurveErr(serr)
		}
		protocolFee = feeBps(gross, pair.ProtocolFeeRate)
		creatorFee = feeBps(gross, pair.CreatorFeeRate)
		amountOut = gross - protocolFee - creatorFee
	}

	spot := curve.SpotPrice(pair.Curve, pair.CurveState())
	var effective = curve.EffectivePrice(amountIn, amountOut)
	if !isBuy {
		effective = curve.EffectivePrice(amountOut, amountIn)
	}
	return &Quote{
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		ProtocolFee:    protocolFee,
		CreatorFee:     creatorFee,
		SpotPrice:      spot.String(),
		EffectivePrice: effective.String(),
		PriceImpact:    curve.PriceImpact(spot, effective).String(),
	}, nil
}

// ClaimFees releases the pair's full accrued fee balance from the vault to
// the creator and resets the accrual, atomically.
func (e *Engine) ClaimFees(creationNumber uint64, caller bank.Address) (uint64, error) {
	lock := e.pairLock(creationNumber)
	lock.Lock()
	defer lock.Unlock()

	pair, ok, err := e.state.PairGet(creationNumber)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrPairNotFound
	}
	if caller != pair.Creator {
		return 0, ErrUnauthorizedCaller
	}
	if pair.UnclaimedFees == 0 {
		return 0, ErrNoFeesToClaim
	}

	claimed := pair.UnclaimedFees
	vaultCap := e.vaultCapability(pair)
	err = e.bank.Atomic(func(tx *bank.Tx) error {
		return tx.MoveBaseAsset(claimed, pair.Vault, pair.Creator, vaultCap)
	})
	if err != nil {
		return 0, err
	}
	pair.UnclaimedFees = 0
	if err := e.state.PairPut(pair); err != nil {
		return 0, err
	}

	e.logger.Infow("fees claimed", "pair", creationNumber, "creator", caller, "amount", claimed)
	e.emit(Event{Type: EventFeesClaimed, Pair: creationNumber, Actor: caller, Payload: map[string]any{
		"amount": claimed,
	}})
	return claimed, nil
}
