package exchange

import (
	"github.com/google/uuid"

	"github.com/flakefi/flake-backend/internal/bank"
	"github.com/flakefi/flake-backend/internal/curve"
)

// SubmitRequest escrows the catalog price in pair tokens from the requester
// and appends a pending request. The escrow is a transfer, not a burn; a
// rejection hands the tokens straight back.
func (e *Engine) SubmitRequest(creationNumber uint64, requester bank.Address, catalogIndex uint32, text string) (*Request, error) {
	return e.submit(creationNumber, requester, KindCatalog, catalogIndex, 0, text)
}

// SubmitAdRequest escrows a requester-chosen token amount with no catalog
// backing.
func (e *Engine) SubmitAdRequest(creationNumber uint64, requester bank.Address, amount uint64, text string) (*Request, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	return e.submit(creationNumber, requester, KindAd, 0, amount, text)
}

func (e *Engine) submit(creationNumber uint64, requester bank.Address, kind RequestKind, catalogIndex uint32, amount uint64, text string) (*Request, error) {
	if requester == "" {
		return nil, bank.ErrInvalidAddress
	}
	if err := checkLen(text, MaxRequestTextLen); err != nil {
		return nil, err
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

	if kind == KindCatalog {
		if int(catalogIndex) >= len(pair.RequestCatalog) {
			return nil, ErrInvalidRequestIndex
		}
		amount = pair.RequestCatalog[catalogIndex].Price
	}
	if len(pair.requests(kind)) >= e.maxPending {
		return nil, ErrRequestQueueFull
	}

	err = e.bank.Atomic(func(tx *bank.Tx) error {
		return tx.Transfer(pair.TokenMint, amount, requester, pair.Escrow, nil)
	})
	if err != nil {
		return nil, err
	}

	req := Request{
		ID:           uuid.NewString(),
		Requester:    requester,
		CatalogIndex: catalogIndex,
		Amount:       amount,
		Text:         text,
		SubmittedAt:  e.nowFn(),
		Status:       RequestPending,
	}
	if kind == KindAd {
		pair.AdRequests = append(pair.AdRequests, req)
	} else {
		pair.PendingRequests = append(pair.PendingRequests, req)
	}
	if err := e.state.PairPut(pair); err != nil {
		return nil, err
	}

	e.logger.Infow("request submitted",
		"pair", creationNumber,
		"kind", kind.String(),
		"requester", requester,
		"amount", amount,
	)
	e.emit(Event{Type: EventRequestSubmitted, Pair: creationNumber, Actor: requester, Payload: map[string]any{
		"request_id": req.ID,
		"kind":       kind.String(),
		"amount":     amount,
	}})
	out := req
	return &out, nil
}

func (e *Engine) requestAt(pair *Pair, kind RequestKind, index int) (*Request, error) {
	list := pair.requests(kind)
	if index < 0 || index >= len(list) {
		return nil, ErrRequestNotFound
	}
	return &list[index], nil
}

// AcceptRequest marks a pending request accepted. No funds move; the escrow
// stays parked until settlement or rejection.
func (e *Engine) AcceptRequest(creationNumber uint64, caller bank.Address, kind RequestKind, index int) (*Request, error) {
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
	if caller != pair.Creator {
		return nil, ErrUnauthorizedCaller
	}
	req, err := e.requestAt(pair, kind, index)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, ErrRequestAlreadyProcessed
	}

	req.Status = RequestAccepted
	if err := e.state.PairPut(pair); err != nil {
		return nil, err
	}

	e.logger.Infow("request accepted", "pair", creationNumber, "request_id", req.ID)
	e.emit(Event{Type: EventRequestAccepted, Pair: creationNumber, Actor: caller, Payload: map[string]any{
		"request_id": req.ID,
	}})
	out := *req
	return &out, nil
}

// AcceptAndSettleRequest burns the escrowed tokens and pays the creator
// their sell-side value out of the vault. Accepts straight from Pending or
// from an earlier Accepted mark; either way the transition to Completed is
// single-shot.
func (e *Engine) AcceptAndSettleRequest(creationNumber uint64, caller bank.Address, kind RequestKind, index int) (*Request, uint64, error) {
	lock := e.pairLock(creationNumber)
	lock.Lock()
	defer lock.Unlock()

	pair, ok, err := e.state.PairGet(creationNumber)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrPairNotFound
	}
	if caller != pair.Creator {
		return nil, 0, ErrUnauthorizedCaller
	}
	req, err := e.requestAt(pair, kind, index)
	if err != nil {
		return nil, 0, err
	}
	if req.Status != RequestPending && req.Status != RequestAccepted {
		return nil, 0, ErrRequestAlreadyProcessed
	}

	if pair.Curve.Model != curve.ConstantRatio && req.Amount > pair.SupplyMarker {
		return nil, 0, ErrInsufficientLiquidity
	}
	payout, err := curve.Sell(pair.Curve, pair.CurveState(), req.Amount)
	if err != nil {
		return nil, 0, mapCurveErr(err)
	}
	if e.bank.BaseBalance(pair.Vault) < payout {
		return nil, 0, ErrInsufficientLiquidity
	}

	vaultCap := e.vaultCapability(pair)
	err = e.bank.Atomic(func(tx *bank.Tx) error {
		if err := tx.Burn(pair.TokenMint, req.Amount, pair.Escrow, vaultCap); err != nil {
			return err
		}
		if payout > 0 {
			return tx.MoveBaseAsset(payout, pair.Vault, pair.Creator, vaultCap)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if pair.Curve.Model == curve.ConstantRatio {
		pair.ReserveBase -= payout
	} else {
		pair.SupplyMarker -= req.Amount
	}
	req.Status = RequestCompleted
	if err := e.state.PairPut(pair); err != nil {
		return nil, 0, err
	}

	e.logger.Infow("request settled",
		"pair", creationNumber,
		"request_id", req.ID,
		"burned", req.Amount,
		"payout", payout,
	)
	e.emit(Event{Type: EventRequestCompleted, Pair: creationNumber, Actor: caller, Payload: map[string]any{
		"request_id": req.ID,
		"payout":     payout,
	}})
	out := *req
	return &out, payout, nil
}

// RejectRequest returns the escrowed tokens to the requester and marks the
// record rejected.
func (e *Engine) RejectRequest(creationNumber uint64, caller bank.Address, kind RequestKind, index int) (*Request, error) {
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
	if caller != pair.Creator {
		return nil, ErrUnauthorizedCaller
	}
	req, err := e.requestAt(pair, kind, index)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, ErrRequestAlreadyProcessed
	}

	escrowCap := e.escrowCapability(pair)
	err = e.bank.Atomic(func(tx *bank.Tx) error {
		return tx.Transfer(pair.TokenMint, req.Amount, pair.Escrow, req.Requester, escrowCap)
	})
	if err != nil {
		return nil, err
	}

	req.Status = RequestRejected
	if err := e.state.PairPut(pair); err != nil {
		return nil, err
	}

	e.logger.Infow("request rejected", "pair", creationNumber, "request_id", req.ID)
	e.emit(Event{Type: EventRequestRejected, Pair: creationNumber, Actor: caller, Payload: map[string]any{
		"request_id": req.ID,
	}})
	out := *req
	return &out, nil
}
