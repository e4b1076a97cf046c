package scanner

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/proof"
)

// MockProofArchive is an in-memory ProofArchive.
type MockProofArchive struct {
	sync.Mutex

	entries map[color.ID]map[wire.OutPoint]proof.Entry

	// Deltas counts the non-empty deltas applied per color.
	Deltas map[color.ID]int

	// FetchErr is returned by FetchEntries if set.
	FetchErr error
}

// NewMockProofArchive creates an empty MockProofArchive.
func NewMockProofArchive() *MockProofArchive {
	return &MockProofArchive{
		entries: make(map[color.ID]map[wire.OutPoint]proof.Entry),
		Deltas:  make(map[color.ID]int),
	}
}

// FetchEntries returns all persisted entries of the color.
func (m *MockProofArchive) FetchEntries(_ context.Context,
	id color.ID) ([]proof.Entry, error) {

	m.Lock()
	defer m.Unlock()

	if m.FetchErr != nil {
		return nil, m.FetchErr
	}

	entries := make([]proof.Entry, 0, len(m.entries[id]))
	for _, entry := range m.entries[id] {
		entries = append(entries, entry)
	}

	return entries, nil
}

// ApplyDelta persists the delta.
func (m *MockProofArchive) ApplyDelta(_ context.Context, id color.ID,
	delta *proof.Delta) error {

	m.Lock()
	defer m.Unlock()

	stored, ok := m.entries[id]
	if !ok {
		stored = make(map[wire.OutPoint]proof.Entry)
		m.entries[id] = stored
	}

	for _, entry := range delta.Added {
		stored[entry.OutPoint] = entry
	}
	for _, op := range delta.Removed {
		delete(stored, op)
	}

	m.Deltas[id]++

	return nil
}

// NumEntries returns the number of entries stored for the color.
func (m *MockProofArchive) NumEntries(id color.ID) int {
	m.Lock()
	defer m.Unlock()

	return len(m.entries[id])
}

var _ ProofArchive = (*MockProofArchive)(nil)

// MockWallet is a Wallet backed by sets of scripts and outpoints.
type MockWallet struct {
	Scripts   map[string]struct{}
	OutPoints map[wire.OutPoint]struct{}
}

// NewMockWallet creates a wallet owning the given scripts.
func NewMockWallet(scripts ...[]byte) *MockWallet {
	w := &MockWallet{
		Scripts:   make(map[string]struct{}),
		OutPoints: make(map[wire.OutPoint]struct{}),
	}
	for _, script := range scripts {
		w.Scripts[string(script)] = struct{}{}
	}

	return w
}

// AddOutPoint marks the outpoint as owned.
func (w *MockWallet) AddOutPoint(op wire.OutPoint) {
	w.OutPoints[op] = struct{}{}
}

// IsMine returns true if the output pays to one of the wallet scripts.
func (w *MockWallet) IsMine(txOut *wire.TxOut) bool {
	_, ok := w.Scripts[string(txOut.PkScript)]
	return ok
}

// OwnsOutPoint returns true if the outpoint was added to the wallet.
func (w *MockWallet) OwnsOutPoint(op wire.OutPoint) bool {
	_, ok := w.OutPoints[op]
	return ok
}

var _ Wallet = (*MockWallet)(nil)
