package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/flakefi/flake-backend/internal/bank"
	"github.com/flakefi/flake-backend/internal/config"
	"github.com/flakefi/flake-backend/internal/curve"
	"github.com/flakefi/flake-backend/internal/exchange"
	"github.com/flakefi/flake-backend/internal/history"
	"github.com/flakefi/flake-backend/internal/store"
	"github.com/flakefi/flake-backend/internal/ws"
)

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
	RecordSwap(ctx context.Context, pair uint64, isBuy bool, amountIn uint64)
	RecordRequestSubmitted(ctx context.Context, pair uint64, kind string)
}

type Handler struct {
	engine      *exchange.Engine
	historyRepo *history.Repository
	wsHub       *ws.Hub
	sseHandler  *ws.SSEHandler
	cache       *store.Cache
	config      *config.Config
	logger      *zap.SugaredLogger
	metrics     MetricsInterface
}

func NewHandler(
	engine *exchange.Engine,
	historyRepo *history.Repository,
	wsHub *ws.Hub,
	sseHandler *ws.SSEHandler,
	cache *store.Cache,
	config *config.Config,
	logger *zap.SugaredLogger,
	metrics MetricsInterface,
) *Handler {
	return &Handler{
		engine:      engine,
		historyRepo: historyRepo,
		wsHub:       wsHub,
		sseHandler:  sseHandler,
		cache:       cache,
		config:      config,
		logger:      logger,
		metrics:     metrics,
	}
}

// Factory endpoints

func (h *Handler) GetFactory(w http.ResponseWriter, r *http.Request) {
	var cached FactoryDTO
	if err := h.cache.GetFactory(r.Context(), &cached); err == nil {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	factory, err := h.engine.Factory()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dto := FactoryDTO{
		Authority:      string(factory.Authority),
		FeeRecipient:   string(factory.FeeRecipient),
		ProtocolFeeBps: factory.ProtocolFeeRate,
		PairCount:      factory.PairCount,
	}

	if err := h.cache.SetFactory(r.Context(), dto); err != nil {
		h.logger.Warnw("Failed to cache factory state", "error", err)
	}

	h.writeJSON(w, http.StatusOK, dto)
}

// Pair endpoints

func (h *Handler) ListPairs(w http.ResponseWriter, r *http.Request) {
	var cached PairListDTO
	if err := h.cache.GetPairList(r.Context(), &cached); err == nil {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	pairs, err := h.engine.Pairs()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dto := PairListDTO{Pairs: make([]PairDTO, 0, len(pairs)), Count: len(pairs)}
	for _, p := range pairs {
		dto.Pairs = append(dto.Pairs, pairDTO(p, false))
	}

	if err := h.cache.SetPairList(r.Context(), dto); err != nil {
		h.logger.Warnw("Failed to cache pair list", "error", err)
	}

	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetPair(w http.ResponseWriter, r *http.Request) {
	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return
	}

	var cached PairDTO
	if err := h.cache.GetPair(r.Context(), id, &cached); err == nil {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	pair, err := h.engine.PairByID(id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dto := pairDTO(pair, true)
	if err := h.cache.SetPair(r.Context(), id, dto); err != nil {
		h.logger.Warnw("Failed to cache pair", "pair", id, "error", err)
	}

	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) CreatePair(w http.ResponseWriter, r *http.Request) {
	var req CreatePairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Creator == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "creator is required")
		return
	}

	params := exchange.CreatePairParams{
		Creator:             bank.Address(req.Creator),
		CreatorTokenAccount: bank.Address(req.CreatorTokenAccount),
		CreatorFeeRate:      req.CreatorFeeBps,
		Metadata: exchange.PairMetadata{
			Name:        req.Metadata.Name,
			Ticker:      req.Metadata.Ticker,
			Description: req.Metadata.Description,
			Website:     req.Metadata.Website,
			Twitter:     req.Metadata.Twitter,
			Telegram:    req.Metadata.Telegram,
			ImageURI:    req.Metadata.ImageURI,
		},
		SeedBaseReserve:  req.SeedBaseReserve,
		SeedTokenReserve: req.SeedTokenReserve,
	}
	if params.CreatorTokenAccount == "" {
		params.CreatorTokenAccount = params.Creator
	}
	for _, entry := range req.RequestCatalog {
		params.RequestCatalog = append(params.RequestCatalog, exchange.OfferEntry{
			Price:       entry.Price,
			Description: entry.Description,
		})
	}
	if req.Curve != nil {
		cp, err := curveParams(*req.Curve)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_CURVE", err.Error())
			return
		}
		params.Curve = &cp
	}

	pair, err := h.engine.CreatePair(params)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.invalidatePair(r.Context(), pair.CreationNumber)

	h.writeJSON(w, http.StatusCreated, pairDTO(pair, true))
}

// Swap endpoints

func (h *Handler) Swap(w http.ResponseWriter, r *http.Request) {
	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return
	}

	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Trader == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "trader is required")
		return
	}
	isBuy, err := parseSide(req.Side)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_SIDE", err.Error())
		return
	}

	result, err := h.engine.Swap(id, bank.Address(req.Trader), req.AmountIn, req.MinAmountOut, isBuy)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.metrics.RecordSwap(r.Context(), id, isBuy, req.AmountIn)
	h.invalidatePair(r.Context(), id)
	h.recordSwap(result)

	h.writeJSON(w, http.StatusOK, swapResultDTO(result))
}

func (h *Handler) GetSwapQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return
	}

	side := r.URL.Query().Get("side")
	isBuy, err := parseSide(side)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_SIDE", err.Error())
		return
	}

	amountStr := r.URL.Query().Get("amountIn")
	if amountStr == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "amountIn is required")
		return
	}
	amountIn, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "invalid amountIn format")
		return
	}

	var cached QuoteDTO
	if err := h.cache.GetQuote(r.Context(), id, side, amountIn, &cached); err == nil {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	quote, err := h.engine.QuoteSwap(id, amountIn, isBuy)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dto := QuoteDTO{
		AmountIn:       quote.AmountIn,
		AmountOut:      quote.AmountOut,
		ProtocolFee:    quote.ProtocolFee,
		CreatorFee:     quote.CreatorFee,
		SpotPrice:      quote.SpotPrice,
		EffectivePrice: quote.EffectivePrice,
		PriceImpact:    quote.PriceImpact,
	}

	if err := h.cache.SetQuote(r.Context(), id, side, amountIn, dto); err != nil {
		h.logger.Warnw("Failed to cache quote", "pair", id, "error", err)
	}

	h.writeJSON(w, http.StatusOK, dto)
}

// Request endpoints

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return
	}

	var req SubmitRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Requester == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "requester is required")
		return
	}

	request, err := h.engine.SubmitRequest(id, bank.Address(req.Requester), req.CatalogIndex, req.Text)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.metrics.RecordRequestSubmitted(r.Context(), id, exchange.KindCatalog.String())
	h.invalidatePair(r.Context(), id)
	h.recordRequest(id, exchange.KindCatalog, request, 0)

	h.writeJSON(w, http.StatusCreated, requestDTO(request, exchange.KindCatalog, -1))
}

func (h *Handler) SubmitAdRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return
	}

	var req SubmitAdRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Requester == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "requester is required")
		return
	}

	request, err := h.engine.SubmitAdRequest(id, bank.Address(req.Requester), req.Amount, req.Text)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.metrics.RecordRequestSubmitted(r.Context(), id, exchange.KindAd.String())
	h.invalidatePair(r.Context(), id)
	h.recordRequest(id, exchange.KindAd, request, 0)

	h.writeJSON(w, http.StatusCreated, requestDTO(request, exchange.KindAd, -1))
}

func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	id, kind, index, caller, ok := h.resolveRequestCall(w, r)
	if !ok {
		return
	}

	request, err := h.engine.AcceptRequest(id, caller, kind, index)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.invalidatePair(r.Context(), id)
	h.recordRequest(id, kind, request, 0)

	h.writeJSON(w, http.StatusOK, requestDTO(request, kind, index))
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id, kind, index, caller, ok := h.resolveRequestCall(w, r)
	if !ok {
		return
	}

	request, err := h.engine.RejectRequest(id, caller, kind, index)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.invalidatePair(r.Context(), id)
	h.recordRequest(id, kind, request, 0)

	h.writeJSON(w, http.StatusOK, requestDTO(request, kind, index))
}

func (h *Handler) SettleRequest(w http.ResponseWriter, r *http.Request) {
	id, kind, index, caller, ok := h.resolveRequestCall(w, r)
	if !ok {
		return
	}

	request, payout, err := h.engine.AcceptAndSettleRequest(id, caller, kind, index)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.invalidatePair(r.Context(), id)
	h.recordRequest(id, kind, request, payout)

	h.writeJSON(w, http.StatusOK, SettleResultDTO{
		Request: requestDTO(request, kind, index),
		Payout:  payout,
	})
}

// resolveRequestCall parses the shared {kind}/{index} path segments and the
// caller body every request resolution endpoint takes.
func (h *Handler) resolveRequestCall(w http.ResponseWriter, r *http.Request) (uint64, exchange.RequestKind, int, bank.Address, bool) {
	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return 0, 0, 0, "", false
	}

	kind, err := parseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_KIND", err.Error())
		return 0, 0, 0, "", false
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_INDEX", "index must be a non-negative integer")
		return 0, 0, 0, "", false
	}

	var req ResolveRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return 0, 0, 0, "", false
	}
	if req.Caller == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "caller is required")
		return 0, 0, 0, "", false
	}

	return id, kind, index, bank.Address(req.Caller), true
}

// Fee endpoints

func (h *Handler) ClaimFees(w http.ResponseWriter, r *http.Request) {
	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return
	}

	var req ClaimFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Caller == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "caller is required")
		return
	}

	claimed, err := h.engine.ClaimFees(id, bank.Address(req.Caller))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.invalidatePair(r.Context(), id)

	h.writeJSON(w, http.StatusOK, ClaimFeesDTO{Pair: id, Claimed: claimed})
}

// History endpoints

func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	if h.historyRepo == nil {
		h.writeError(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "trade history requires a database")
		return
	}

	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return
	}

	trades, err := h.historyRepo.Trades(r.Context(), id, parseLimit(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "HISTORY_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, trades)
}

func (h *Handler) GetRequestHistory(w http.ResponseWriter, r *http.Request) {
	if h.historyRepo == nil {
		h.writeError(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "request history requires a database")
		return
	}

	id, err := pairID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_PAIR_ID", err.Error())
		return
	}

	events, err := h.historyRepo.RequestHistory(r.Context(), id, parseLimit(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "HISTORY_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, events)
}

// Dev endpoints

func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request) {
	if h.config.IsProd() {
		h.writeError(w, http.StatusForbidden, "FAUCET_DISABLED", "faucet is not available in prod")
		return
	}

	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Address == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "address is required")
		return
	}

	amount := req.Amount
	if amount == 0 {
		amount = h.config.Exchange.FaucetAmount
	}

	if err := h.engine.Bank().CreditBase(bank.Address(req.Address), amount); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, BalancesDTO{
		Address:  req.Address,
		Balances: balancesMap(h.engine.Bank(), bank.Address(req.Address)),
	})
}

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	if addr == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "address is required")
		return
	}

	h.writeJSON(w, http.StatusOK, BalancesDTO{
		Address:  addr,
		Balances: balancesMap(h.engine.Bank(), bank.Address(addr)),
	})
}

// Health endpoints

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	reasons := []string{}
	if err := h.cache.Ping(r.Context()); err != nil {
		reasons = append(reasons, "CACHE_UNAVAILABLE")
	}
	if h.historyRepo != nil {
		if err := h.historyRepo.Ping(r.Context()); err != nil {
			reasons = append(reasons, "DATABASE_UNAVAILABLE")
		}
	}

	status := "ok"
	code := http.StatusOK
	if len(reasons) > 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	h.writeJSON(w, code, HealthDTO{Status: status, Reasons: reasons})
}

// WebSocket endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleWebSocket(w, r)
}

// SSE endpoint
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseHandler.HandleSSE(w, r)
}

// Utility methods

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// writeEngineError maps engine and ledger sentinel errors onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"

	switch {
	case errors.Is(err, exchange.ErrPairNotFound):
		status, code = http.StatusNotFound, "PAIR_NOT_FOUND"
	case errors.Is(err, exchange.ErrRequestNotFound):
		status, code = http.StatusNotFound, "REQUEST_NOT_FOUND"
	case errors.Is(err, exchange.ErrUnauthorizedCaller):
		status, code = http.StatusForbidden, "UNAUTHORIZED_CALLER"
	case errors.Is(err, exchange.ErrFactoryNotInitialized):
		status, code = http.StatusConflict, "FACTORY_NOT_INITIALIZED"
	case errors.Is(err, exchange.ErrFactoryAlreadyInitialized):
		status, code = http.StatusConflict, "FACTORY_ALREADY_INITIALIZED"
	case errors.Is(err, exchange.ErrSlippageExceeded):
		status, code = http.StatusConflict, "SLIPPAGE_EXCEEDED"
	case errors.Is(err, exchange.ErrSupplyExhausted):
		status, code = http.StatusConflict, "SUPPLY_EXHAUSTED"
	case errors.Is(err, exchange.ErrInsufficientLiquidity):
		status, code = http.StatusConflict, "INSUFFICIENT_LIQUIDITY"
	case errors.Is(err, exchange.ErrRequestAlreadyProcessed):
		status, code = http.StatusConflict, "REQUEST_ALREADY_PROCESSED"
	case errors.Is(err, exchange.ErrRequestQueueFull):
		status, code = http.StatusConflict, "REQUEST_QUEUE_FULL"
	case errors.Is(err, exchange.ErrNoFeesToClaim):
		status, code = http.StatusConflict, "NO_FEES_TO_CLAIM"
	case errors.Is(err, bank.ErrInsufficientFunds):
		status, code = http.StatusConflict, "INSUFFICIENT_FUNDS"
	case errors.Is(err, exchange.ErrInvalidAmount),
		errors.Is(err, exchange.ErrInvalidRequestIndex),
		errors.Is(err, exchange.ErrInvalidStringLength),
		errors.Is(err, exchange.ErrInvalidRequestPrice),
		errors.Is(err, exchange.ErrInvalidBasePrice),
		errors.Is(err, exchange.ErrInvalidCreatorFee),
		errors.Is(err, exchange.ErrInvalidProtocolFee),
		errors.Is(err, exchange.ErrAmountOverflow),
		errors.Is(err, curve.ErrBadParams),
		errors.Is(err, curve.ErrUnknownModel):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	}

	h.writeError(w, status, code, err.Error())
}

// invalidatePair drops the cached pair detail, listing and factory state
// after a mutation.
func (h *Handler) invalidatePair(ctx context.Context, id uint64) {
	if err := h.cache.InvalidatePair(ctx, id); err != nil {
		h.logger.Warnw("Failed to invalidate pair cache", "pair", id, "error", err)
	}
	if err := h.cache.Delete(ctx, store.KeyFactory); err != nil {
		h.logger.Warnw("Failed to invalidate factory cache", "error", err)
	}
}

// recordSwap persists the swap row when a database is configured. Persistence
// is best-effort; settlement already happened in the ledger.
func (h *Handler) recordSwap(res *exchange.SwapResult) {
	if h.historyRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.historyRepo.StoreSwap(ctx, res, time.Now().Unix()); err != nil {
		h.logger.Warnw("Failed to persist swap", "pair", res.Pair, "error", err)
	}
}

func (h *Handler) recordRequest(pair uint64, kind exchange.RequestKind, req *exchange.Request, payout uint64) {
	if h.historyRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := h.historyRepo.StoreRequestTransition(ctx, history.RequestTransition{
		Pair:       pair,
		RequestID:  req.ID,
		Kind:       kind.String(),
		Status:     req.Status.String(),
		Requester:  string(req.Requester),
		Amount:     req.Amount,
		Payout:     payout,
		OccurredAt: time.Now().Unix(),
	})
	if err != nil {
		h.logger.Warnw("Failed to persist request transition", "pair", pair, "request", req.ID, "error", err)
	}
}

// DTO mapping

func pairDTO(p *exchange.Pair, includeRequests bool) PairDTO {
	dto := PairDTO{
		CreationNumber: p.CreationNumber,
		Creator:        string(p.Creator),
		TokenMint:      string(p.TokenMint),
		Metadata: MetadataDTO{
			Name:        p.Metadata.Name,
			Ticker:      p.Metadata.Ticker,
			Description: p.Metadata.Description,
			Website:     p.Metadata.Website,
			Twitter:     p.Metadata.Twitter,
			Telegram:    p.Metadata.Telegram,
			ImageURI:    p.Metadata.ImageURI,
		},
		Curve: CurveDTO{
			Model:        p.Curve.Model.String(),
			BasePrice:    p.Curve.BasePrice,
			PriceFloor:   p.Curve.PriceFloor,
			PriceCeiling: p.Curve.PriceCeiling,
			SupplyCap:    p.Curve.SupplyCap,
		},
		SupplyMarker:   p.SupplyMarker,
		ReserveBase:    p.ReserveBase,
		ReserveToken:   p.ReserveToken,
		ProtocolFeeBps: p.ProtocolFeeRate,
		CreatorFeeBps:  p.CreatorFeeRate,
		UnclaimedFees:  p.UnclaimedFees,
		Vault:          string(p.Vault),
		Escrow:         string(p.Escrow),
		CreatedAt:      p.CreatedAt,
	}

	for _, entry := range p.RequestCatalog {
		dto.RequestCatalog = append(dto.RequestCatalog, OfferEntryDTO{
			Price:       entry.Price,
			Description: entry.Description,
		})
	}

	if includeRequests {
		for i := range p.PendingRequests {
			dto.Requests = append(dto.Requests, requestDTO(&p.PendingRequests[i], exchange.KindCatalog, i))
		}
		for i := range p.AdRequests {
			dto.Requests = append(dto.Requests, requestDTO(&p.AdRequests[i], exchange.KindAd, i))
		}
	}

	return dto
}

func requestDTO(req *exchange.Request, kind exchange.RequestKind, index int) RequestDTO {
	return RequestDTO{
		ID:           req.ID,
		Kind:         kind.String(),
		Index:        index,
		Requester:    string(req.Requester),
		CatalogIndex: req.CatalogIndex,
		Amount:       req.Amount,
		Text:         req.Text,
		SubmittedAt:  req.SubmittedAt,
		Status:       req.Status.String(),
	}
}

func swapResultDTO(res *exchange.SwapResult) SwapResultDTO {
	side := "sell"
	if res.IsBuy {
		side = "buy"
	}
	return SwapResultDTO{
		Pair:         res.Pair,
		Side:         side,
		Trader:       string(res.Trader),
		AmountIn:     res.AmountIn,
		AmountOut:    res.AmountOut,
		ProtocolFee:  res.ProtocolFee,
		CreatorFee:   res.CreatorFee,
		SupplyMarker: res.SupplyMarker,
		VaultBalance: res.VaultBalance,
	}
}

func balancesMap(b *bank.Bank, addr bank.Address) map[string]uint64 {
	out := make(map[string]uint64)
	for _, bal := range b.Balances(addr) {
		out[bal.Asset] = bal.Balance
	}
	return out
}

// Parsing helpers

func pairID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("pair id must be an unsigned integer")
	}
	return id, nil
}

func parseSide(side string) (bool, error) {
	switch strings.ToLower(side) {
	case "buy":
		return true, nil
	case "sell":
		return false, nil
	default:
		return false, errors.New("side must be buy or sell")
	}
}

func parseKind(raw string) (exchange.RequestKind, error) {
	switch strings.ToLower(raw) {
	case "catalog":
		return exchange.KindCatalog, nil
	case "ad":
		return exchange.KindAd, nil
	default:
		return 0, errors.New("kind must be catalog or ad")
	}
}

func curveParams(dto CurveDTO) (curve.Params, error) {
	p := curve.Params{
		BasePrice:    dto.BasePrice,
		PriceFloor:   dto.PriceFloor,
		PriceCeiling: dto.PriceCeiling,
		SupplyCap:    dto.SupplyCap,
	}
	switch strings.ToLower(dto.Model) {
	case "constant_ratio":
		p.Model = curve.ConstantRatio
	case "linear_division":
		p.Model = curve.LinearDivision
	case "bounded_quadratic", "":
		p.Model = curve.BoundedQuadratic
		if p.PriceFloor == 0 && p.PriceCeiling == 0 && p.SupplyCap == 0 {
			def := curve.DefaultParams()
			p.PriceFloor = def.PriceFloor
			p.PriceCeiling = def.PriceCeiling
			p.SupplyCap = def.SupplyCap
		}
	default:
		return curve.Params{}, errors.New("unknown curve model " + dto.Model)
	}
	return p, nil
}

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
