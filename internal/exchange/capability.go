package exchange

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"

	"github.com/flakefi/flake-backend/internal/bank"
)

// Domain-separation labels for the two keys derived per pair.
const (
	vaultKeyLabel  = "flake.pair.vault.v1"
	escrowKeyLabel = "flake.pair.escrow.v1"
)

// signingCapability is the pair's authority over its own custody accounts.
// The key is derived deterministically from the engine seed and the pair
// identity, never handed out, and presented to the bank only as a signer.
type signingCapability struct {
	holder bank.Address
	key    *secp256k1.PrivateKey
}

func (c *signingCapability) Holder() bank.Address { return c.holder }

func (c *signingCapability) Sign(digest []byte) ([]byte, error) {
	return secpecdsa.Sign(c.key, digest).Serialize(), nil
}

// deriveCapability produces the capability for one custody account of a
// pair. Identical inputs always derive the identical key, so capabilities
// survive process restarts without persisting key material.
func deriveCapability(seed []byte, label string, creator bank.Address, creationNumber uint64) *signingCapability {
	h, _ := blake2b.New256(nil)
	h.Write(seed)
	h.Write([]byte(label))
	h.Write([]byte(creator))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(creationNumber >> (8 * i))
	}
	h.Write(buf[:])
	material := h.Sum(nil)

	key := secp256k1.PrivKeyFromBytes(material)
	return &signingCapability{
		holder: bank.AddressFromPublicKey(key.PubKey()),
		key:    key,
	}
}
