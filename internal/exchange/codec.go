package exchange

import (
	"fmt"
	"strconv"

	"github.com/fardream/go-bcs/bcs"

	"github.com/flakefi/flake-backend/internal/bank"
)

// Snapshot is the persisted registry state: the factory record plus every
// pair with its full field set. BCS gives length-prefixed strings and
// fixed-width little-endian integers, so encodings are canonical and
// round-trip byte-exact.
type Snapshot struct {
	Factory Factory
	Pairs   []Pair
}

// EncodeSnapshot serializes the registry.
func EncodeSnapshot(factory *Factory, pairs []*Pair) ([]byte, error) {
	snap := Snapshot{Factory: *factory.Clone()}
	snap.Pairs = make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		snap.Pairs = append(snap.Pairs, *p.Clone())
	}
	return bcs.Marshal(&snap)
}

// DecodeSnapshot parses a registry snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if _, err := bcs.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Snapshot encodes the engine's current registry state.
func (e *Engine) Snapshot() ([]byte, error) {
	factory, err := e.Factory()
	if err != nil {
		return nil, err
	}
	pairs, err := e.Pairs()
	if err != nil {
		return nil, err
	}
	return EncodeSnapshot(factory, pairs)
}

// Restore loads a snapshot into an empty engine: registry records are
// written back and each pair's mint and custody accounts are re-established
// in the bank, since capabilities re-derive from the same seed. Account
// balances are not part of the snapshot; they replay from the history
// journal where one is configured.
func (e *Engine) Restore(data []byte) error {
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok, err := e.state.FactoryGet(); err != nil {
		return err
	} else if ok {
		return ErrFactoryAlreadyInitialized
	}

	for i := range snap.Pairs {
		p := &snap.Pairs[i]
		vaultCap := deriveCapability(e.seed, vaultKeyLabel, p.Creator, p.CreationNumber)
		escrowCap := deriveCapability(e.seed, escrowKeyLabel, p.Creator, p.CreationNumber)
		if vaultCap.Holder() != p.Vault || escrowCap.Holder() != p.Escrow {
			return fmt.Errorf("snapshot pair %d: custody addresses do not derive from this seed", p.CreationNumber)
		}
		mintRef := bank.MintRef("flake-token-" + strconv.FormatUint(p.CreationNumber, 10))
		if p.TokenMint != mintRef {
			return fmt.Errorf("snapshot pair %d: unexpected mint ref %q", p.CreationNumber, p.TokenMint)
		}
		if err := e.bank.CreateMint(p.TokenMint, TokenDecimals, p.Vault, p.Vault); err != nil {
			return err
		}
		if err := e.bank.RegisterVault(p.Vault, vaultCap.key.PubKey()); err != nil {
			return err
		}
		if err := e.bank.RegisterVault(p.Escrow, escrowCap.key.PubKey()); err != nil {
			return err
		}
		if err := e.state.PairPut(p); err != nil {
			return err
		}
	}
	if err := e.state.FactoryPut(&snap.Factory); err != nil {
		return err
	}

	e.logger.Infow("registry restored", "pairs", len(snap.Pairs))
	return nil
}
