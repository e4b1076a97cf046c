package freighter

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/scanner"
)

// MockColorView is a ColorView backed by a fixed table of quantities.
type MockColorView struct {
	Quantities map[color.ID]map[wire.OutPoint]uint64
}

// NewMockColorView creates an empty MockColorView.
func NewMockColorView() *MockColorView {
	return &MockColorView{
		Quantities: make(map[color.ID]map[wire.OutPoint]uint64),
	}
}

// Set records the quantity of a color carried by an outpoint.
func (m *MockColorView) Set(id color.ID, op wire.OutPoint, qty uint64) {
	if _, ok := m.Quantities[id]; !ok {
		m.Quantities[id] = make(map[wire.OutPoint]uint64)
	}
	m.Quantities[id][op] = qty
}

// QuantityFor returns the recorded quantity.
func (m *MockColorView) QuantityFor(id color.ID,
	op wire.OutPoint) (uint64, bool) {

	qty, ok := m.Quantities[id][op]
	return qty, ok
}

// IsColored returns true if a quantity is recorded.
func (m *MockColorView) IsColored(id color.ID, op wire.OutPoint) bool {
	_, ok := m.QuantityFor(id, op)
	return ok
}

// IsColoredAny returns true if a quantity of any color is recorded.
func (m *MockColorView) IsColoredAny(op wire.OutPoint) bool {
	for id := range m.Quantities {
		if m.IsColored(id, op) {
			return true
		}
	}

	return false
}

var _ scanner.ColorView = (*MockColorView)(nil)

// MockWallet is a WalletContext holding a fixed set of candidates.
type MockWallet struct {
	sync.Mutex

	Candidates []*Candidate
	Scripts    map[string]struct{}

	// NextChange is returned as the next change script and marked as
	// ours.
	NextChange func() []byte

	// ListErr is returned by ListCandidates if set.
	ListErr error
}

// NewMockWallet creates a wallet whose change scripts come from newScript.
func NewMockWallet(newScript func() []byte) *MockWallet {
	return &MockWallet{
		Scripts:    make(map[string]struct{}),
		NextChange: newScript,
	}
}

// AddCandidate adds a candidate paying to the wallet.
func (m *MockWallet) AddCandidate(c *Candidate) {
	m.Lock()
	defer m.Unlock()

	m.Candidates = append(m.Candidates, c)
	m.Scripts[string(c.TxOut.PkScript)] = struct{}{}
}

// IsMine returns true if the output pays to a known script.
func (m *MockWallet) IsMine(txOut *wire.TxOut) bool {
	m.Lock()
	defer m.Unlock()

	_, ok := m.Scripts[string(txOut.PkScript)]
	return ok
}

// ListCandidates returns the candidates.
func (m *MockWallet) ListCandidates(context.Context) ([]*Candidate, error) {
	m.Lock()
	defer m.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	candidates := make([]*Candidate, len(m.Candidates))
	copy(candidates, m.Candidates)

	return candidates, nil
}

// ChangeScript returns a fresh script that is marked as ours.
func (m *MockWallet) ChangeScript(context.Context) ([]byte, error) {
	script := m.NextChange()

	m.Lock()
	m.Scripts[string(script)] = struct{}{}
	m.Unlock()

	return script, nil
}

var _ WalletContext = (*MockWallet)(nil)

// MockSigner records the transactions it is asked to sign.
type MockSigner struct {
	sync.Mutex

	Signed []*wire.MsgTx

	// PrevOuts holds the previous outputs handed over with each request.
	PrevOuts []txscript.PrevOutputFetcher
}

// SignTx records the request and sets a dummy witness on every input.
func (m *MockSigner) SignTx(_ context.Context, tx *wire.MsgTx,
	prevOuts txscript.PrevOutputFetcher) error {

	m.Lock()
	defer m.Unlock()

	for _, txIn := range tx.TxIn {
		txIn.Witness = wire.TxWitness{make([]byte, 72), make([]byte, 33)}
	}

	m.Signed = append(m.Signed, tx)
	m.PrevOuts = append(m.PrevOuts, prevOuts)

	return nil
}

var _ Signer = (*MockSigner)(nil)
