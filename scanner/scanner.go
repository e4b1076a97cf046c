package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	goerrors "github.com/go-errors/errors"
	"github.com/lightninglabs/smartcolors/chanutils"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/kernel"
	"github.com/lightninglabs/smartcolors/proof"
	"golang.org/x/exp/maps"
)

const (
	// DefaultTimeout is the default timeout for archive operations.
	DefaultTimeout = 30 * time.Second

	// DefaultEventQueueSize is the default number of chain events that can
	// be queued before the notifiers block.
	DefaultEventQueueSize = 100
)

var (
	// ErrDefinitionCollision is returned when a definition with a
	// different identity uses the name of a known definition.
	ErrDefinitionCollision = errors.New("definition name collision")

	// ErrUnknownColor is returned when a color is queried that the
	// scanner doesn't track.
	ErrUnknownColor = errors.New("unknown color")

	// ErrShuttingDown is returned when an event is sent to a scanner that
	// is stopping.
	ErrShuttingDown = errors.New("scanner shutting down")
)

// Config is the main config of the scanner.
type Config struct {
	// Kernel is the color kernel used by every proof.
	Kernel *kernel.Kernel

	// TxSource fetches ancestor transactions for the proofs.
	TxSource proof.TxSource

	// Archive optionally persists the proofs.
	Archive ProofArchive

	// MaxAncestorDepth overrides the ancestor walk bound of the proofs if
	// non-zero.
	MaxAncestorDepth int

	// EventQueueSize is the capacity of the chain event queue.
	EventQueueSize int

	// ErrChan is the main error channel the scanner will report back
	// critical errors from its event loop to the main server.
	ErrChan chan<- error
}

// pendingTx is an unconfirmed transaction the scanner observed.
type pendingTx struct {
	tx  *wire.MsgTx
	seq uint64
}

// Scanner owns the known color definitions and one proof per definition. It
// feeds every transaction it is told about into all proofs.
//
// Network callbacks are serialized through the event loop started by Start.
// The synchronous methods may be called directly as well, they take the
// scanner's write lock while readers share its read lock.
type Scanner struct {
	startOnce sync.Once
	stopOnce  sync.Once

	cfg *Config

	events chan event

	// mtx guards all fields below.
	mtx sync.RWMutex

	defs   map[color.ID]*color.Definition
	byName map[string]color.ID
	proofs map[color.ID]*proof.Proof

	// pending holds the transactions observed unconfirmed. They are
	// observed again after a reorg, since a rollback drops all
	// unconfirmed entries.
	pending    map[chainhash.Hash]pendingTx
	pendingSeq uint64

	bestHeight uint32

	*chanutils.ContextGuard
}

// New creates a new scanner from a valid config.
func New(cfg *Config) *Scanner {
	if cfg.Kernel == nil {
		cfg.Kernel = kernel.New()
	}

	queueSize := cfg.EventQueueSize
	if queueSize == 0 {
		queueSize = DefaultEventQueueSize
	}

	return &Scanner{
		cfg:          cfg,
		events:       make(chan event, queueSize),
		defs:         make(map[color.ID]*color.Definition),
		byName:       make(map[string]color.ID),
		proofs:       make(map[color.ID]*proof.Proof),
		pending:      make(map[chainhash.Hash]pendingTx),
		ContextGuard: chanutils.NewContextGuard(DefaultTimeout),
	}
}

// Start launches the event loop.
func (s *Scanner) Start() error {
	s.startOnce.Do(func() {
		log.Infof("Starting color scanner")

		s.Wg.Add(1)
		go s.eventLoop()
	})

	return nil
}

// Stop signals the event loop to exit and waits for it.
func (s *Scanner) Stop() error {
	s.stopOnce.Do(func() {
		log.Infof("Stopping color scanner")

		close(s.Quit)
		s.Wg.Wait()
	})

	return nil
}

// AddDefinition starts tracking a color. Adding the same definition twice is
// a no-op. The new proof is restored from the archive if there is one, and
// the pending transactions are observed for it.
func (s *Scanner) AddDefinition(ctx context.Context,
	def *color.Definition) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	id := def.ID()
	if _, ok := s.defs[id]; ok {
		return nil
	}

	name := def.Name()
	if name != "" {
		if known, ok := s.byName[name]; ok && known != id {
			return fmt.Errorf("%w: %q used by %v and %v",
				ErrDefinitionCollision, name, known, id)
		}
	}

	p := proof.New(def, s.cfg.Kernel, s.cfg.TxSource)
	if s.cfg.MaxAncestorDepth != 0 {
		p.MaxAncestorDepth = s.cfg.MaxAncestorDepth
	}

	if s.cfg.Archive != nil {
		entries, err := s.cfg.Archive.FetchEntries(ctx, id)
		if err != nil {
			return fmt.Errorf("unable to fetch entries of color "+
				"%v: %w", id, err)
		}
		p.Restore(entries)
	}

	for _, pending := range s.sortedPending() {
		err := s.observeProof(ctx, id, p, pending, proof.UnconfirmedHeight)
		if err != nil {
			return err
		}
	}

	s.defs[id] = def
	s.proofs[id] = p
	if name != "" {
		s.byName[name] = id
	}

	log.Infof("Tracking color %v with %d entries", def, p.NumEntries())

	return nil
}

// Definitions returns all tracked definitions, ordered by their ID.
func (s *Scanner) Definitions() []*color.Definition {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	defs := make([]*color.Definition, 0, len(s.defs))
	for _, id := range s.sortedIDs() {
		defs = append(defs, s.defs[id])
	}

	return defs
}

// Definition returns the definition with the given ID.
func (s *Scanner) Definition(id color.ID) (*color.Definition, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	def, ok := s.defs[id]
	return def, ok
}

// DefinitionByName returns the definition with the given name.
func (s *Scanner) DefinitionByName(name string) (*color.Definition, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, false
	}

	return s.defs[id], true
}

// BestHeight returns the height of the last connected block.
func (s *Scanner) BestHeight() uint32 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.bestHeight
}

// Entries returns the verified entries of a color.
func (s *Scanner) Entries(id color.ID) ([]proof.Entry, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	p, ok := s.proofs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownColor, id)
	}

	return p.Entries(), nil
}

// QuantityFor returns the verified quantity of the color carried by the
// outpoint.
func (s *Scanner) QuantityFor(id color.ID, op wire.OutPoint) (uint64, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	p, ok := s.proofs[id]
	if !ok {
		return 0, false
	}

	return p.QuantityFor(op)
}

// IsColored returns true if the outpoint carries the color.
func (s *Scanner) IsColored(id color.ID, op wire.OutPoint) bool {
	_, ok := s.QuantityFor(id, op)
	return ok
}

// IsColoredAny returns true if the outpoint carries any tracked color.
func (s *Scanner) IsColoredAny(op wire.OutPoint) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for _, p := range s.proofs {
		if p.IsColored(op) {
			return true
		}
	}

	return false
}

// Balances sums the quantities carried by the outputs per color. Colors none
// of the outputs carry are left out.
func (s *Scanner) Balances(outputs []wire.OutPoint) map[color.ID]uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	balances := make(map[color.ID]uint64)
	for id, p := range s.proofs {
		var total uint64
		for _, op := range outputs {
			qty, ok := p.QuantityFor(op)
			if !ok {
				continue
			}

			total = addSaturating(total, qty)
		}

		if total != 0 {
			balances[id] = total
		}
	}

	return balances
}

// NetAssetChange returns, per color, the quantity the transaction paid to the
// wallet minus the quantity it spent from the wallet. The transaction must
// have been observed. Colors that didn't change are left out.
func (s *Scanner) NetAssetChange(tx *wire.MsgTx,
	wallet Wallet) map[color.ID]int64 {

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	txid := tx.TxHash()
	changes := make(map[color.ID]int64)
	for id, p := range s.proofs {
		var spent, received uint64
		for _, txIn := range tx.TxIn {
			prevOut := txIn.PreviousOutPoint
			if !wallet.OwnsOutPoint(prevOut) {
				continue
			}

			if qty, ok := p.QuantityFor(prevOut); ok {
				spent = addSaturating(spent, qty)
			}
		}

		for i, txOut := range tx.TxOut {
			if !wallet.IsMine(txOut) {
				continue
			}

			op := wire.OutPoint{Hash: txid, Index: uint32(i)}
			if qty, ok := p.QuantityFor(op); ok {
				received = addSaturating(received, qty)
			}
		}

		if change := signedDiff(received, spent); change != 0 {
			changes[id] = change
		}
	}

	return changes
}

// AddAllPending observes unconfirmed transactions for every color. All
// transactions are processed even if one fails, the first error is
// returned.
func (s *Scanner) AddAllPending(ctx context.Context,
	txs []*wire.MsgTx) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	var firstErr error
	for _, tx := range txs {
		txid := tx.TxHash()
		if _, ok := s.pending[txid]; !ok {
			s.pendingSeq++
			s.pending[txid] = pendingTx{
				tx:  tx,
				seq: s.pendingSeq,
			}
		}

		err := s.observe(ctx, tx, proof.UnconfirmedHeight)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// ConnectBlock observes the transactions of a new block for every color, in
// block order.
func (s *Scanner) ConnectBlock(ctx context.Context, height uint32,
	txs []*wire.MsgTx) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if height <= s.bestHeight {
		log.Warnf("Connecting block %d at or below best height %d "+
			"without a reorg", height, s.bestHeight)
	}

	var firstErr error
	for _, tx := range txs {
		delete(s.pending, tx.TxHash())

		err := s.observe(ctx, tx, height)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.bestHeight = height

	log.Debugf("Connected block %d with %d txs", height, len(txs))

	return firstErr
}

// DisconnectBlocks rolls every proof back to the fork height, the last
// height that is still part of the best chain. The pending transactions are
// observed again afterwards.
func (s *Scanner) DisconnectBlocks(ctx context.Context,
	forkHeight uint32) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	log.Infof("Disconnecting blocks above height %d", forkHeight)

	var firstErr error
	for _, id := range s.sortedIDs() {
		delta := s.proofs[id].Rollback(forkHeight)
		if err := s.archive(ctx, id, delta); err != nil &&
			firstErr == nil {

			firstErr = err
		}
	}

	if forkHeight < s.bestHeight {
		s.bestHeight = forkHeight
	}

	for _, pending := range s.sortedPending() {
		err := s.observe(ctx, pending, proof.UnconfirmedHeight)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// observe feeds tx into every proof. The caller must hold the write lock.
func (s *Scanner) observe(ctx context.Context, tx *wire.MsgTx,
	height uint32) error {

	var firstErr error
	for _, id := range s.sortedIDs() {
		err := s.observeProof(ctx, id, s.proofs[id], tx, height)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (s *Scanner) observeProof(ctx context.Context, id color.ID,
	p *proof.Proof, tx *wire.MsgTx, height uint32) error {

	delta, err := p.Observe(ctx, tx, height)
	if err != nil {
		log.Warnf("Unable to observe tx %v for color %v: %v",
			tx.TxHash(), id, err)

		return fmt.Errorf("unable to observe tx %v for color %v: %w",
			tx.TxHash(), id, err)
	}

	log.Tracef("Observed tx %v for color %v: %v", tx.TxHash(), id,
		newLogClosure(func() string {
			return spew.Sdump(delta)
		}))

	return s.archive(ctx, id, delta)
}

// archive persists a non-empty delta.
func (s *Scanner) archive(ctx context.Context, id color.ID,
	delta *proof.Delta) error {

	if s.cfg.Archive == nil || delta.IsEmpty() {
		return nil
	}

	if err := s.cfg.Archive.ApplyDelta(ctx, id, delta); err != nil {
		return fmt.Errorf("unable to archive proof of color %v: %w",
			id, err)
	}

	return nil
}

// sortedIDs returns the tracked color IDs in byte order, so proofs are
// always processed in the same order.
func (s *Scanner) sortedIDs() []color.ID {
	ids := maps.Keys(s.proofs)
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})

	return ids
}

// sortedPending returns the pending transactions in the order they were
// first seen.
func (s *Scanner) sortedPending() []*wire.MsgTx {
	pending := maps.Values(s.pending)
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].seq < pending[j].seq
	})

	txs := make([]*wire.MsgTx, len(pending))
	for i, p := range pending {
		txs[i] = p.tx
	}

	return txs
}

// event is a chain notification handled by the event loop.
type event interface {
	apply(ctx context.Context, s *Scanner) error
}

type txEvent struct {
	tx *wire.MsgTx
}

func (e *txEvent) apply(ctx context.Context, s *Scanner) error {
	return s.AddAllPending(ctx, []*wire.MsgTx{e.tx})
}

type blockEvent struct {
	height uint32
	txs    []*wire.MsgTx
}

func (e *blockEvent) apply(ctx context.Context, s *Scanner) error {
	return s.ConnectBlock(ctx, e.height, e.txs)
}

type reorgEvent struct {
	forkHeight uint32
}

func (e *reorgEvent) apply(ctx context.Context, s *Scanner) error {
	return s.DisconnectBlocks(ctx, e.forkHeight)
}

// NotifyTx queues a new unconfirmed transaction.
func (s *Scanner) NotifyTx(tx *wire.MsgTx) error {
	return s.enqueue(&txEvent{tx: tx})
}

// NotifyBlock queues a newly connected block.
func (s *Scanner) NotifyBlock(height uint32, txs []*wire.MsgTx) error {
	return s.enqueue(&blockEvent{height: height, txs: txs})
}

// NotifyReorg queues a reorg back to the fork height.
func (s *Scanner) NotifyReorg(forkHeight uint32) error {
	return s.enqueue(&reorgEvent{forkHeight: forkHeight})
}

func (s *Scanner) enqueue(e event) error {
	if !chanutils.SendOrQuit(s.events, e, s.Quit) {
		return ErrShuttingDown
	}

	return nil
}

// eventLoop applies the queued chain events one at a time.
func (s *Scanner) eventLoop() {
	defer s.Wg.Done()

	reportErr := func(err error) {
		if s.cfg.ErrChan == nil {
			log.Errorf("Unable to process chain event: %v", err)
			return
		}

		select {
		case s.cfg.ErrChan <- goerrors.Wrap(err, 1):
		case <-s.Quit:
		}
	}

	for {
		select {
		case e := <-s.events:
			ctx, cancel := s.WithCtxQuitNoTimeout()
			err := e.apply(ctx, s)
			cancel()

			if err != nil {
				reportErr(err)
			}

		case <-s.Quit:
			return
		}
	}
}

var _ ColorView = (*Scanner)(nil)

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}

	return a + b
}

// signedDiff returns a-b clamped to the int64 range.
func signedDiff(a, b uint64) int64 {
	if a >= b {
		if a-b > math.MaxInt64 {
			return math.MaxInt64
		}

		return int64(a - b)
	}

	if b-a > math.MaxInt64 {
		return math.MinInt64
	}

	return -int64(b - a)
}
