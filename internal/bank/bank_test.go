package bank

import (
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyCap struct {
	holder Address
	key    *secp256k1.PrivateKey
}

func (c keyCap) Holder() Address { return c.holder }

func (c keyCap) Sign(digest []byte) ([]byte, error) {
	return secpecdsa.Sign(c.key, digest).Serialize(), nil
}

func newKeyCap(t *testing.T) keyCap {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return keyCap{holder: AddressFromPublicKey(key.PubKey()), key: key}
}

const (
	alice = Address("0xaaaa")
	bob   = Address("0xbbbb")
)

func TestCreditAndMoveBaseAsset(t *testing.T) {
	b := New()
	require.NoError(t, b.CreditBase(alice, 1_000))

	err := b.Atomic(func(tx *Tx) error {
		return tx.MoveBaseAsset(400, alice, bob, nil)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(600), b.BaseBalance(alice))
	assert.Equal(t, uint64(400), b.BaseBalance(bob))
}

func TestMoveBaseAssetInsufficient(t *testing.T) {
	b := New()
	require.NoError(t, b.CreditBase(alice, 10))

	err := b.Atomic(func(tx *Tx) error {
		return tx.MoveBaseAsset(11, alice, bob, nil)
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(10), b.BaseBalance(alice))
	assert.Equal(t, uint64(0), b.BaseBalance(bob))
}

func TestAtomicRollsBackAllLegs(t *testing.T) {
	b := New()
	require.NoError(t, b.CreditBase(alice, 1_000))

	boom := errors.New("boom")
	err := b.Atomic(func(tx *Tx) error {
		if err := tx.MoveBaseAsset(500, alice, bob, nil); err != nil {
			return err
		}
		if err := tx.MoveBaseAsset(100, alice, bob, nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1_000), b.BaseBalance(alice), "failed unit must leave no trace")
	assert.Equal(t, uint64(0), b.BaseBalance(bob))
}

func TestAtomicRollsBackPartialFailure(t *testing.T) {
	b := New()
	require.NoError(t, b.CreditBase(alice, 100))

	err := b.Atomic(func(tx *Tx) error {
		if err := tx.MoveBaseAsset(100, alice, bob, nil); err != nil {
			return err
		}
		// Second leg overdraws and must unwind the first.
		return tx.MoveBaseAsset(1, alice, bob, nil)
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(100), b.BaseBalance(alice))
	assert.Equal(t, uint64(0), b.BaseBalance(bob))
}

func TestVaultOutflowRequiresCapability(t *testing.T) {
	b := New()
	vault := newKeyCap(t)
	require.NoError(t, b.RegisterVault(vault.holder, vault.key.PubKey()))
	require.NoError(t, b.CreditBase(vault.holder, 500))

	err := b.Atomic(func(tx *Tx) error {
		return tx.MoveBaseAsset(100, vault.holder, alice, nil)
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	// A capability claiming the vault but signing with a different key
	// must fail verification.
	wrongKey, kerr := secp256k1.GeneratePrivateKey()
	require.NoError(t, kerr)
	imposter := keyCap{holder: vault.holder, key: wrongKey}
	err = b.Atomic(func(tx *Tx) error {
		return tx.MoveBaseAsset(100, vault.holder, alice, imposter)
	})
	require.ErrorIs(t, err, ErrBadSignature)
	assert.Equal(t, uint64(500), b.BaseBalance(vault.holder))

	err = b.Atomic(func(tx *Tx) error {
		return tx.MoveBaseAsset(100, vault.holder, alice, vault)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(400), b.BaseBalance(vault.holder))
	assert.Equal(t, uint64(100), b.BaseBalance(alice))
}

func TestInflowToVaultNeedsNoCapability(t *testing.T) {
	b := New()
	vault := newKeyCap(t)
	require.NoError(t, b.RegisterVault(vault.holder, vault.key.PubKey()))
	require.NoError(t, b.CreditBase(alice, 50))

	err := b.Atomic(func(tx *Tx) error {
		return tx.MoveBaseAsset(50, alice, vault.holder, nil)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), b.BaseBalance(vault.holder))
}

func TestMintRequiresAuthority(t *testing.T) {
	b := New()
	authority := newKeyCap(t)
	require.NoError(t, b.RegisterVault(authority.holder, authority.key.PubKey()))
	require.NoError(t, b.CreateMint("tok", 9, authority.holder, authority.holder))

	err := b.Atomic(func(tx *Tx) error {
		return tx.Mint("tok", 100, alice, nil)
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	stranger := newKeyCap(t)
	err = b.Atomic(func(tx *Tx) error {
		return tx.Mint("tok", 100, alice, stranger)
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	err = b.Atomic(func(tx *Tx) error {
		return tx.Mint("tok", 100, alice, authority)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), b.BalanceOf("tok", alice))
	assert.Equal(t, uint64(100), b.Supply("tok"))
}

func TestBurnOwnerIsFreeCustodyIsNot(t *testing.T) {
	b := New()
	authority := newKeyCap(t)
	escrow := newKeyCap(t)
	require.NoError(t, b.RegisterVault(authority.holder, authority.key.PubKey()))
	require.NoError(t, b.RegisterVault(escrow.holder, escrow.key.PubKey()))
	require.NoError(t, b.CreateMint("tok", 9, authority.holder, authority.holder))

	require.NoError(t, b.Atomic(func(tx *Tx) error {
		if err := tx.Mint("tok", 300, alice, authority); err != nil {
			return err
		}
		return tx.Mint("tok", 200, escrow.holder, authority)
	}))

	// Owner relinquishing their own holdings.
	require.NoError(t, b.Atomic(func(tx *Tx) error {
		return tx.Burn("tok", 100, alice, nil)
	}))
	assert.Equal(t, uint64(200), b.BalanceOf("tok", alice))
	assert.Equal(t, uint64(400), b.Supply("tok"))

	// Custody accounts only burn under the mint authority.
	err := b.Atomic(func(tx *Tx) error {
		return tx.Burn("tok", 50, escrow.holder, nil)
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, b.Atomic(func(tx *Tx) error {
		return tx.Burn("tok", 50, escrow.holder, authority)
	}))
	assert.Equal(t, uint64(150), b.BalanceOf("tok", escrow.holder))
	assert.Equal(t, uint64(350), b.Supply("tok"))
}

func TestTransferUnknownMint(t *testing.T) {
	b := New()
	err := b.Atomic(func(tx *Tx) error {
		return tx.Transfer("ghost", 1, alice, bob, nil)
	})
	require.ErrorIs(t, err, ErrUnknownMint)
}

func TestCreateMintDuplicate(t *testing.T) {
	b := New()
	require.NoError(t, b.CreateMint("tok", 9, alice, alice))
	require.ErrorIs(t, b.CreateMint("tok", 9, alice, alice), ErrMintExists)
}

func TestRegisterVaultDuplicate(t *testing.T) {
	b := New()
	vault := newKeyCap(t)
	require.NoError(t, b.RegisterVault(vault.holder, vault.key.PubKey()))
	require.ErrorIs(t, b.RegisterVault(vault.holder, vault.key.PubKey()), ErrVaultExists)
}

func TestBalancesListsEveryAsset(t *testing.T) {
	b := New()
	authority := newKeyCap(t)
	require.NoError(t, b.RegisterVault(authority.holder, authority.key.PubKey()))
	require.NoError(t, b.CreateMint("tok", 9, authority.holder, authority.holder))
	require.NoError(t, b.CreditBase(alice, 77))
	require.NoError(t, b.Atomic(func(tx *Tx) error {
		return tx.Mint("tok", 33, alice, authority)
	}))

	balances := b.Balances(alice)
	require.Len(t, balances, 2)
	assert.Equal(t, BaseAsset, balances[0].Asset)
	assert.Equal(t, uint64(77), balances[0].Balance)
	assert.Equal(t, "tok", balances[1].Asset)
	assert.Equal(t, uint64(33), balances[1].Balance)
}
