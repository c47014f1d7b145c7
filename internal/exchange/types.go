package exchange

import (
	"fmt"

	"github.com/flakefi/flake-backend/internal/bank"
	"github.com/flakefi/flake-backend/internal/curve"
)

// Metadata length bounds, in bytes.
const (
	MaxNameLen        = 32
	MaxTickerLen      = 10
	MaxDescriptionLen = 200
	MaxLinkLen        = 200
	MaxRequestTextLen = 280
)

// DefaultCreatorFeeRate is the creator fee applied when pair creation does
// not override it.
const DefaultCreatorFeeRate uint16 = 100 // 1%

// MaxFeeRate is the basis-point ceiling for any fee rate.
const MaxFeeRate uint16 = 10_000

// Factory is the process-wide pair registry.
type Factory struct {
	Authority       bank.Address
	FeeRecipient    bank.Address
	ProtocolFeeRate uint16
	PairCount       uint64
}

func (f *Factory) Clone() *Factory {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

// RequestStatus tracks a request through its lifecycle. A request leaves
// Pending exactly once; Rejected, Completed and Refunded are terminal, and
// Accepted only ever advances to Completed.
type RequestStatus uint8

const (
	RequestPending RequestStatus = iota
	RequestAccepted
	RequestRejected
	RequestCompleted
	RequestRefunded
)

func (s RequestStatus) Valid() bool {
	return s <= RequestRefunded
}

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestAccepted:
		return "accepted"
	case RequestRejected:
		return "rejected"
	case RequestCompleted:
		return "completed"
	case RequestRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// RequestKind distinguishes the two request lists a pair carries.
type RequestKind uint8

const (
	// KindCatalog requests reference a fixed catalog entry by index.
	KindCatalog RequestKind = iota
	// KindAd requests name their own escrow amount.
	KindAd
)

func (k RequestKind) Valid() bool { return k == KindCatalog || k == KindAd }

func (k RequestKind) String() string {
	if k == KindAd {
		return "ad"
	}
	return "catalog"
}

// OfferEntry is one fixed-price offer in a pair's request catalog.
type OfferEntry struct {
	Price       uint64
	Description string
}

// Request is a paid action submitted against a pair, escrowed in the pair's
// token until the creator resolves it.
type Request struct {
	ID           string
	Requester    bank.Address
	CatalogIndex uint32
	Amount       uint64
	Text         string
	SubmittedAt  int64
	Status       RequestStatus
}

// PairMetadata is the immutable descriptive block validated at creation.
type PairMetadata struct {
	Name        string
	Ticker      string
	Description string
	Website     string
	Twitter     string
	Telegram    string
	ImageURI    string
}

// Pair is one bonding-curve market: a mintable token backed by base-asset
// reserves in a dedicated vault.
type Pair struct {
	Creator             bank.Address
	CreationNumber      uint64
	TokenMint           bank.MintRef
	CreatorTokenAccount bank.Address

	Curve        curve.Params
	SupplyMarker uint64
	ReserveBase  uint64
	ReserveToken uint64

	ProtocolFeeRate uint16
	CreatorFeeRate  uint16
	UnclaimedFees   uint64

	Vault  bank.Address
	Escrow bank.Address

	Metadata       PairMetadata
	RequestCatalog []OfferEntry

	PendingRequests []Request
	AdRequests      []Request

	CreatedAt int64
}

// Clone deep-copies the pair so callers can mutate the result without
// touching the stored instance.
func (p *Pair) Clone() *Pair {
	if p == nil {
		return nil
	}
	clone := *p
	clone.RequestCatalog = append([]OfferEntry(nil), p.RequestCatalog...)
	clone.PendingRequests = append([]Request(nil), p.PendingRequests...)
	clone.AdRequests = append([]Request(nil), p.AdRequests...)
	return &clone
}

// CurveState assembles the pricing state the curve engine quotes against.
func (p *Pair) CurveState() curve.State {
	return curve.State{
		Supply:       p.SupplyMarker,
		ReserveBase:  p.ReserveBase,
		ReserveToken: p.ReserveToken,
	}
}

// requests returns the list addressed by kind. The returned slice aliases
// the pair; callers mutate through it deliberately.
func (p *Pair) requests(kind RequestKind) []Request {
	if kind == KindAd {
		return p.AdRequests
	}
	return p.PendingRequests
}

// SwapResult reports the applied effects of one settled swap.
type SwapResult struct {
	Pair         uint64
	IsBuy        bool
	Trader       bank.Address
	AmountIn     uint64
	AmountOut    uint64
	ProtocolFee  uint64
	CreatorFee   uint64
	SupplyMarker uint64
	VaultBalance uint64
}

// Quote is a read-only swap preview.
type Quote struct {
	AmountIn       uint64
	AmountOut      uint64
	ProtocolFee    uint64
	CreatorFee     uint64
	SpotPrice      string
	EffectivePrice string
	PriceImpact    string
}
