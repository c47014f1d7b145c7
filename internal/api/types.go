package api

import (
	"encoding/json"
)

type FactoryDTO struct {
	Authority      string `json:"authority"`
	FeeRecipient   string `json:"feeRecipient"`
	ProtocolFeeBps uint16 `json:"protocolFeeBps"`
	PairCount      uint64 `json:"pairCount"`
}

type CurveDTO struct {
	Model        string `json:"model"`
	BasePrice    uint64 `json:"basePrice,omitempty"`
	PriceFloor   uint64 `json:"priceFloor,omitempty"`
	PriceCeiling uint64 `json:"priceCeiling,omitempty"`
	SupplyCap    uint64 `json:"supplyCap,omitempty"`
}

type MetadataDTO struct {
	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	Telegram    string `json:"telegram,omitempty"`
	ImageURI    string `json:"imageUri,omitempty"`
}

type OfferEntryDTO struct {
	Price       uint64 `json:"price"`
	Description string `json:"description"`
}

type RequestDTO struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Index        int    `json:"index"`
	Requester    string `json:"requester"`
	CatalogIndex uint32 `json:"catalogIndex"`
	Amount       uint64 `json:"amount"`
	Text         string `json:"text,omitempty"`
	SubmittedAt  int64  `json:"submittedAt"`
	Status       string `json:"status"`
}

type PairDTO struct {
	CreationNumber uint64      `json:"creationNumber"`
	Creator        string      `json:"creator"`
	TokenMint      string      `json:"tokenMint"`
	Metadata       MetadataDTO `json:"metadata"`
	Curve          CurveDTO    `json:"curve"`

	SupplyMarker uint64 `json:"supplyMarker"`
	ReserveBase  uint64 `json:"reserveBase"`
	ReserveToken uint64 `json:"reserveToken"`

	ProtocolFeeBps uint16 `json:"protocolFeeBps"`
	CreatorFeeBps  uint16 `json:"creatorFeeBps"`
	UnclaimedFees  uint64 `json:"unclaimedFees"`

	Vault  string `json:"vault"`
	Escrow string `json:"escrow"`

	RequestCatalog []OfferEntryDTO `json:"requestCatalog,omitempty"`
	Requests       []RequestDTO    `json:"requests,omitempty"`

	CreatedAt int64 `json:"createdAt"`
}

type PairListDTO struct {
	Pairs []PairDTO `json:"pairs"`
	Count int       `json:"count"`
}

type QuoteDTO struct {
	AmountIn       uint64 `json:"amountIn"`
	AmountOut      uint64 `json:"amountOut"`
	ProtocolFee    uint64 `json:"protocolFee"`
	CreatorFee     uint64 `json:"creatorFee"`
	SpotPrice      string `json:"spotPrice"`
	EffectivePrice string `json:"effectivePrice"`
	PriceImpact    string `json:"priceImpact"`
}

type SwapResultDTO struct {
	Pair         uint64 `json:"pair"`
	Side         string `json:"side"`
	Trader       string `json:"trader"`
	AmountIn     uint64 `json:"amountIn"`
	AmountOut    uint64 `json:"amountOut"`
	ProtocolFee  uint64 `json:"protocolFee"`
	CreatorFee   uint64 `json:"creatorFee"`
	SupplyMarker uint64 `json:"supplyMarker"`
	VaultBalance uint64 `json:"vaultBalance"`
}

type ClaimFeesDTO struct {
	Pair    uint64 `json:"pair"`
	Claimed uint64 `json:"claimed"`
}

type SettleResultDTO struct {
	Request RequestDTO `json:"request"`
	Payout  uint64     `json:"payout"`
}

type BalancesDTO struct {
	Address  string            `json:"address"`
	Balances map[string]uint64 `json:"balances"`
}

type HealthDTO struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Request bodies

type CreatePairRequest struct {
	Creator             string          `json:"creator" validate:"required"`
	CreatorTokenAccount string          `json:"creatorTokenAccount"`
	Metadata            MetadataDTO     `json:"metadata"`
	Curve               *CurveDTO       `json:"curve,omitempty"`
	CreatorFeeBps       *uint16         `json:"creatorFeeBps,omitempty"`
	RequestCatalog      []OfferEntryDTO `json:"requestCatalog,omitempty"`
	SeedBaseReserve     uint64          `json:"seedBaseReserve,omitempty"`
	SeedTokenReserve    uint64          `json:"seedTokenReserve,omitempty"`
}

type SwapRequest struct {
	Trader       string `json:"trader" validate:"required"`
	Side         string `json:"side" validate:"required,oneof=buy sell"`
	AmountIn     uint64 `json:"amountIn" validate:"required"`
	MinAmountOut uint64 `json:"minAmountOut"`
}

type SubmitRequestRequest struct {
	Requester    string `json:"requester" validate:"required"`
	CatalogIndex uint32 `json:"catalogIndex"`
	Text         string `json:"text"`
}

type SubmitAdRequestRequest struct {
	Requester string `json:"requester" validate:"required"`
	Amount    uint64 `json:"amount" validate:"required"`
	Text      string `json:"text"`
}

type ResolveRequestRequest struct {
	Caller string `json:"caller" validate:"required"`
}

type ClaimFeesRequest struct {
	Caller string `json:"caller" validate:"required"`
}

type FaucetRequest struct {
	Address string `json:"address" validate:"required"`
	Amount  uint64 `json:"amount"`
}

// Stream/WebSocket message types
type StreamMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}
