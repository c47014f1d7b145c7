package exchange

import "errors"

// Configuration errors: rejected at initialize/creation time before any
// state is written.
var (
	ErrFactoryNotInitialized     = errors.New("exchange: factory not initialized")
	ErrFactoryAlreadyInitialized = errors.New("exchange: factory already initialized")
	ErrInvalidProtocolFee        = errors.New("exchange: protocol fee rate above 10000 bps")
	ErrInvalidCreatorFee         = errors.New("exchange: combined fee rates above 10000 bps")
	ErrInvalidBasePrice          = errors.New("exchange: curve prices must be positive")
	ErrInvalidStringLength       = errors.New("exchange: string field exceeds its length bound")
	ErrInvalidRequestPrice       = errors.New("exchange: catalog entry price must be positive")
)

// Market errors: rejected at swap time before any fund movement.
var (
	ErrInvalidAmount         = errors.New("exchange: amount must be positive")
	ErrSlippageExceeded      = errors.New("exchange: slippage tolerance exceeded")
	ErrInsufficientLiquidity = errors.New("exchange: insufficient liquidity")
	ErrSupplyExhausted       = errors.New("exchange: buy would exceed the supply cap")
)

// Authorization and lifecycle errors.
var (
	ErrPairNotFound            = errors.New("exchange: pair not found")
	ErrUnauthorizedCaller      = errors.New("exchange: caller is not the pair creator")
	ErrRequestNotFound         = errors.New("exchange: request not found")
	ErrRequestAlreadyProcessed = errors.New("exchange: request already processed")
	ErrInvalidRequestIndex     = errors.New("exchange: catalog index out of range")
	ErrRequestQueueFull        = errors.New("exchange: request queue at capacity")
	ErrNoFeesToClaim           = errors.New("exchange: no accrued fees to claim")
)

// Arithmetic errors: any overflow is fatal to the operation, never wrapped.
var (
	ErrAmountOverflow      = errors.New("exchange: amount arithmetic overflow")
	ErrPairCounterOverflow = errors.New("exchange: pair counter overflow")
)
