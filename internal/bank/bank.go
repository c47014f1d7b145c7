package bank

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
)

// Address identifies an account on the ledger. Addresses are lowercase
// 0x-prefixed hex strings; vault addresses are derived from the vault's
// public key, everything else is caller-supplied.
type Address string

// MintRef identifies a mintable token managed by the ledger.
type MintRef string

// BaseAsset is the reserved asset key for the base (deposit) asset.
const BaseAsset = "base"

var (
	ErrInsufficientFunds = errors.New("bank: insufficient balance")
	ErrUnknownMint       = errors.New("bank: unknown mint")
	ErrMintExists        = errors.New("bank: mint already exists")
	ErrUnauthorized      = errors.New("bank: movement not authorized")
	ErrBadSignature      = errors.New("bank: capability signature rejected")
	ErrVaultExists       = errors.New("bank: vault already registered")
	ErrBalanceOverflow   = errors.New("bank: balance overflow")
	ErrInvalidAddress    = errors.New("bank: invalid address")
)

// Capability is a signing capability presented when moving funds out of a
// protected account. The bank never trusts the holder claim alone: outgoing
// vault movements must verify against the vault's registered public key.
type Capability interface {
	Holder() Address
	Sign(digest []byte) ([]byte, error)
}

// AddressFromPublicKey derives the ledger address bound to a public key.
func AddressFromPublicKey(pub *secp256k1.PublicKey) Address {
	sum := blake2b.Sum256(pub.SerializeCompressed())
	return Address("0x" + hex.EncodeToString(sum[12:]))
}

// MovementDigest is the message a capability signs to authorize one transfer.
func MovementDigest(asset string, amount uint64, from, to Address) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("flake.movement.v1"))
	h.Write([]byte(asset))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(amount >> (8 * i))
	}
	h.Write(buf[:])
	h.Write([]byte(from))
	h.Write([]byte(to))
	return h.Sum(nil)
}

type mintInfo struct {
	Decimals        uint8
	MintAuthority   Address
	FreezeAuthority Address
	Supply          uint64
}

// Bank is an in-memory token ledger and base-asset custody service. Every
// public operation either fully applies or leaves no trace; multi-step units
// run through Atomic, which journals mutations and rolls them back when the
// unit fails.
type Bank struct {
	mu       sync.RWMutex
	balances map[string]map[Address]uint64
	mints    map[MintRef]*mintInfo
	vaults   map[Address]*secp256k1.PublicKey
}

func New() *Bank {
	return &Bank{
		balances: map[string]map[Address]uint64{BaseAsset: {}},
		mints:    map[MintRef]*mintInfo{},
		vaults:   map[Address]*secp256k1.PublicKey{},
	}
}

// Tx is a handle into one atomic unit. All movements inside the unit are
// journaled; if the unit returns an error every mutation is undone.
type Tx struct {
	b    *Bank
	undo []func()
}

// Atomic runs fn as a single all-or-nothing unit under the bank lock.
func (b *Bank) Atomic(fn func(tx *Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx := &Tx{b: b}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// CreateMint registers a new mintable token with the given authorities.
func (b *Bank) CreateMint(ref MintRef, decimals uint8, mintAuthority, freezeAuthority Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mints[ref]; ok {
		return ErrMintExists
	}
	b.mints[ref] = &mintInfo{
		Decimals:        decimals,
		MintAuthority:   mintAuthority,
		FreezeAuthority: freezeAuthority,
	}
	b.balances[string(ref)] = map[Address]uint64{}
	return nil
}

// RegisterVault marks addr as a protected custody account. Any movement out
// of it must carry a capability signature verifying under pub.
func (b *Bank) RegisterVault(addr Address, pub *secp256k1.PublicKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.vaults[addr]; ok {
		return ErrVaultExists
	}
	b.vaults[addr] = pub
	return nil
}

// CreditBase deposits base asset into an account. This stands in for the
// external on-ramp; in dev mode the faucet endpoint calls it.
func (b *Bank) CreditBase(addr Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.credit(BaseAsset, addr, amount)
	return err
}

// BaseBalance returns the base-asset balance of addr.
func (b *Bank) BaseBalance(addr Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[BaseAsset][addr]
}

// BalanceOf returns the token balance of addr under the given mint.
func (b *Bank) BalanceOf(ref MintRef, addr Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[string(ref)][addr]
}

// Supply returns the circulating supply of the given mint.
func (b *Bank) Supply(ref MintRef) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if m, ok := b.mints[ref]; ok {
		return m.Supply
	}
	return 0
}

// Mint issues amount new token units to the recipient. Only the recorded
// mint authority's capability may mint.
func (tx *Tx) Mint(ref MintRef, amount uint64, to Address, authority Capability) error {
	m, ok := tx.b.mints[ref]
	if !ok {
		return ErrUnknownMint
	}
	if authority == nil || authority.Holder() != m.MintAuthority {
		return fmt.Errorf("%w: caller is not the mint authority", ErrUnauthorized)
	}
	if err := tx.b.verifyCapability(authority, MovementDigest(string(ref), amount, "", to)); err != nil {
		return err
	}
	if m.Supply > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	prev := m.Supply
	m.Supply += amount
	tx.undo = append(tx.undo, func() { m.Supply = prev })

	restore, err := tx.b.credit(string(ref), to, amount)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, restore)
	return nil
}

// Burn destroys amount token units held by from. The owner relinquishing
// their own holdings needs no capability; burning out of an escrow or vault
// account requires the mint authority's capability.
func (tx *Tx) Burn(ref MintRef, amount uint64, from Address, authority Capability) error {
	m, ok := tx.b.mints[ref]
	if !ok {
		return ErrUnknownMint
	}
	if _, protected := tx.b.vaults[from]; protected {
		if authority == nil || authority.Holder() != m.MintAuthority {
			return fmt.Errorf("%w: burning from custody requires the mint authority", ErrUnauthorized)
		}
		if err := tx.b.verifyCapability(authority, MovementDigest(string(ref), amount, from, "")); err != nil {
			return err
		}
	}
	restore, err := tx.b.debit(string(ref), from, amount)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, restore)

	prev := m.Supply
	m.Supply -= amount
	tx.undo = append(tx.undo, func() { m.Supply = prev })
	return nil
}

// Transfer moves token units between accounts. Movements out of a protected
// account must carry that account's capability.
func (tx *Tx) Transfer(ref MintRef, amount uint64, from, to Address, authority Capability) error {
	if _, ok := tx.b.mints[ref]; !ok {
		return ErrUnknownMint
	}
	if err := tx.b.authorizeOutflow(string(ref), amount, from, to, authority); err != nil {
		return err
	}
	return tx.move(string(ref), amount, from, to)
}

// MoveBaseAsset moves base asset between accounts under the same custody
// rules as Transfer.
func (tx *Tx) MoveBaseAsset(amount uint64, from, to Address, authority Capability) error {
	if err := tx.b.authorizeOutflow(BaseAsset, amount, from, to, authority); err != nil {
		return err
	}
	return tx.move(BaseAsset, amount, from, to)
}

func (tx *Tx) move(asset string, amount uint64, from, to Address) error {
	restoreDebit, err := tx.b.debit(asset, from, amount)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, restoreDebit)

	restoreCredit, err := tx.b.credit(asset, to, amount)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, restoreCredit)
	return nil
}

// authorizeOutflow enforces the custody rule: funds leave a registered vault
// only under a verified capability signature; everything else is covered by
// the caller-level authorization performed upstream.
func (b *Bank) authorizeOutflow(asset string, amount uint64, from, to Address, authority Capability) error {
	if _, protected := b.vaults[from]; !protected {
		return nil
	}
	if authority == nil || authority.Holder() != from {
		return fmt.Errorf("%w: vault %s requires its own capability", ErrUnauthorized, from)
	}
	return b.verifyCapability(authority, MovementDigest(asset, amount, from, to))
}

func (b *Bank) verifyCapability(authority Capability, digest []byte) error {
	pub, ok := b.vaults[authority.Holder()]
	if !ok {
		// Mint authorities that are not custody accounts have no registered
		// key; the holder check upstream is the whole test.
		return nil
	}
	sigBytes, err := authority.Sign(digest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	sig, err := secpecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !sig.Verify(digest, pub) {
		return ErrBadSignature
	}
	return nil
}

// credit adds to a balance and returns the closure undoing it.
func (b *Bank) credit(asset string, addr Address, amount uint64) (func(), error) {
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	book, ok := b.balances[asset]
	if !ok {
		return nil, ErrUnknownMint
	}
	prev := book[addr]
	if prev > math.MaxUint64-amount {
		return nil, ErrBalanceOverflow
	}
	book[addr] = prev + amount
	return func() { book[addr] = prev }, nil
}

// debit subtracts from a balance and returns the closure undoing it.
func (b *Bank) debit(asset string, addr Address, amount uint64) (func(), error) {
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	book, ok := b.balances[asset]
	if !ok {
		return nil, ErrUnknownMint
	}
	prev := book[addr]
	if prev < amount {
		return nil, fmt.Errorf("%w: %s holds %d of %s, need %d", ErrInsufficientFunds, addr, prev, asset, amount)
	}
	book[addr] = prev - amount
	return func() { book[addr] = prev }, nil
}

// AccountBalance is one row of a balance listing.
type AccountBalance struct {
	Asset   string `json:"asset"`
	Balance uint64 `json:"balance"`
}

// Balances lists every non-zero holding of addr, base asset first, then
// mints in lexical order.
func (b *Bank) Balances(addr Address) []AccountBalance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []AccountBalance{}
	if v := b.balances[BaseAsset][addr]; v > 0 {
		out = append(out, AccountBalance{Asset: BaseAsset, Balance: v})
	}
	assets := make([]string, 0, len(b.balances))
	for asset := range b.balances {
		if asset == BaseAsset {
			continue
		}
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		if v := b.balances[asset][addr]; v > 0 {
			out = append(out, AccountBalance{Asset: asset, Balance: v})
		}
	}
	return out
}
