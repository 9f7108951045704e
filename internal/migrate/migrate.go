// Package migrate packages treasury state snapshots for export and import.
// Versioning is handled as a data migration: export from the old service,
// run a migration over the snapshot, import into the new one. Snapshots are
// signed so an import can refuse payloads from an untrusted source.
package migrate

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jovemjeune/gnosisland-treasury/internal/security"
	"github.com/jovemjeune/gnosisland-treasury/internal/treasury"
)

// Envelope is a signed, serialized treasury snapshot.
type Envelope struct {
	// State is the canonical JSON encoding of the snapshot
	State json.RawMessage `json:"state"`

	// Signer is the address whose key signed the snapshot
	Signer common.Address `json:"signer"`

	// Signature is hex-encoded over the State bytes
	Signature string `json:"signature"`
}

// Export serializes and signs a treasury snapshot.
func Export(st treasury.State, signer *security.SnapshotSigner) (*Envelope, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		State:     payload,
		Signer:    signer.Address(),
		Signature: sig,
	}, nil
}

// Open verifies an envelope against the trusted signer address and decodes
// the snapshot. Nothing is applied to any service here; the caller imports
// the returned state explicitly.
func Open(env *Envelope, trusted common.Address) (treasury.State, error) {
	var st treasury.State
	if err := security.Verify(env.State, env.Signature, trusted); err != nil {
		return st, fmt.Errorf("snapshot rejected: %w", err)
	}
	if err := json.Unmarshal(env.State, &st); err != nil {
		return st, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return st, nil
}

// Migration transforms a snapshot from one schema version to the next.
type Migration func(treasury.State) (treasury.State, error)

// Apply runs migrations in order until the snapshot reaches target.
func Apply(st treasury.State, target int, steps map[int]Migration) (treasury.State, error) {
	for st.Version < target {
		step, ok := steps[st.Version]
		if !ok {
			return st, fmt.Errorf("no migration from version %d", st.Version)
		}
		next, err := step(st)
		if err != nil {
			return st, fmt.Errorf("migration from version %d failed: %w", st.Version, err)
		}
		if next.Version <= st.Version {
			return st, fmt.Errorf("migration from version %d did not advance", st.Version)
		}
		st = next
	}
	return st, nil
}
