// Package security provides cryptographic signing for exported treasury
// snapshots so an imported snapshot can be proven to originate from a trusted
// service instance.
package security

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// SnapshotSigner signs and verifies snapshot payloads with a secp256k1 key,
// the same scheme principals use for their addresses.
type SnapshotSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSnapshotSigner creates a signer with a freshly generated key.
func NewSnapshotSigner() (*SnapshotSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return newSigner(key), nil
}

// NewSnapshotSignerFromHex creates a signer from a hex-encoded private key,
// used when snapshots must verify across restarts.
func NewSnapshotSignerFromHex(hexKey string) (*SnapshotSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *SnapshotSigner {
	address := crypto.PubkeyToAddress(key.PublicKey)
	logrus.Infof("Snapshot signer initialized with address %s", address.Hex())
	return &SnapshotSigner{privateKey: key, address: address}
}

// Address returns the signer's address, which verifiers pin.
func (s *SnapshotSigner) Address() common.Address { return s.address }

// Sign returns the hex-encoded signature over the keccak256 hash of payload.
func (s *SnapshotSigner) Sign(payload []byte) (string, error) {
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign snapshot: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify checks a hex-encoded signature over payload and that it recovers to
// the expected signer address.
func Verify(payload []byte, hexSig string, expected common.Address) error {
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	digest := crypto.Keccak256(payload)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != expected {
		return fmt.Errorf("snapshot signed by %s, expected %s", recovered.Hex(), expected.Hex())
	}
	return nil
}
