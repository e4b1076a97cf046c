package chainbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	goerrors "github.com/go-errors/errors"
	"github.com/lightninglabs/smartcolors/chanutils"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultPollInterval is the default interval at which the node is
	// asked for new blocks and mempool transactions.
	DefaultPollInterval = 10 * time.Second

	// DefaultMaxReorgDepth is the default number of recent block hashes
	// kept to detect reorgs.
	DefaultMaxReorgDepth = 144

	// DefaultTimeout is the default timeout of a single poll.
	DefaultTimeout = time.Minute
)

var (
	// ErrReorgTooDeep is returned when the chain reorganized below the
	// oldest block the poller remembers.
	ErrReorgTooDeep = errors.New("reorg deeper than the remembered blocks")
)

// PollerConfig is the config of the BlockPoller.
type PollerConfig struct {
	// Client is the connection to the full node.
	Client ChainClient

	// Notifiee receives the chain events.
	Notifiee ChainNotifiee

	// Ticker drives the polls. A ticker firing at DefaultPollInterval is
	// used if nil.
	Ticker ticker.Ticker

	// StartHeight is the height of the first block delivered.
	StartHeight uint32

	// MaxReorgDepth is the number of recent block hashes kept to detect
	// reorgs.
	MaxReorgDepth uint32

	// SkipMempool disables the delivery of mempool transactions.
	SkipMempool bool

	// ErrChan is the main error channel the poller reports critical
	// errors to.
	ErrChan chan<- error
}

// BlockPoller polls a full node for new blocks and mempool transactions and
// hands them to its notifiee in chain order. Reorgs are detected by comparing
// the hashes of the recently delivered blocks with the node's main chain.
type BlockPoller struct {
	startOnce sync.Once
	stopOnce  sync.Once

	cfg *PollerConfig

	// mtx guards the chain state below, since Poll may be called
	// directly as well.
	mtx sync.Mutex

	// hashes holds the hashes of the recently delivered blocks by height.
	hashes map[uint32]chainhash.Hash

	bestHeight uint32
	hasTip     bool

	// seenMempool holds the mempool transactions already delivered.
	seenMempool map[chainhash.Hash]struct{}

	*chanutils.ContextGuard
}

// NewBlockPoller creates a new poller from a valid config.
func NewBlockPoller(cfg *PollerConfig) *BlockPoller {
	if cfg.Ticker == nil {
		cfg.Ticker = ticker.New(DefaultPollInterval)
	}
	if cfg.MaxReorgDepth == 0 {
		cfg.MaxReorgDepth = DefaultMaxReorgDepth
	}

	return &BlockPoller{
		cfg:          cfg,
		hashes:       make(map[uint32]chainhash.Hash),
		seenMempool:  make(map[chainhash.Hash]struct{}),
		ContextGuard: chanutils.NewContextGuard(DefaultTimeout),
	}
}

// Start launches the poll loop.
func (p *BlockPoller) Start() error {
	p.startOnce.Do(func() {
		log.Infof("Starting block poller at height %d",
			p.cfg.StartHeight)

		p.Wg.Add(1)
		go p.pollLoop()
	})

	return nil
}

// Stop signals the poll loop to exit and waits for it.
func (p *BlockPoller) Stop() error {
	p.stopOnce.Do(func() {
		log.Infof("Stopping block poller")

		close(p.Quit)
		p.Wg.Wait()
	})

	return nil
}

// BestHeight returns the height of the last delivered block and false if no
// block was delivered yet.
func (p *BlockPoller) BestHeight() (uint32, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.bestHeight, p.hasTip
}

// pollLoop polls right away and then on every tick.
func (p *BlockPoller) pollLoop() {
	defer p.Wg.Done()

	p.cfg.Ticker.Resume()
	defer p.cfg.Ticker.Stop()

	p.pollAndReport()

	for {
		select {
		case <-p.cfg.Ticker.Ticks():
			p.pollAndReport()

		case <-p.Quit:
			return
		}
	}
}

// pollAndReport runs a single poll. Failures talking to the node are logged
// and retried with the next tick, a reorg that is too deep to handle is
// reported as critical.
func (p *BlockPoller) pollAndReport() {
	ctx, cancel := p.WithCtxQuit()
	defer cancel()

	err := p.Poll(ctx)
	switch {
	case err == nil:
		return

	case errors.Is(err, ErrReorgTooDeep) && p.cfg.ErrChan != nil:
		select {
		case p.cfg.ErrChan <- goerrors.Wrap(err, 1):
		case <-p.Quit:
		}

	default:
		log.Warnf("Unable to poll chain: %v", err)
	}
}

// Poll asks the node for its best block once. Blocks that were reorged out
// are reported first, then every new block is delivered in order, and
// finally the mempool transactions not seen before.
func (p *BlockPoller) Poll(ctx context.Context) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	blockCount, err := callWithContext(ctx, p.cfg.Client.GetBlockCount)
	if err != nil {
		return fmt.Errorf("unable to fetch block count: %w", err)
	}

	// Before the first block is delivered we remember the block below the
	// start height, so a reorg replacing the first delivered block is
	// noticed as well.
	if !p.hasTip && p.cfg.StartHeight > 0 &&
		int64(p.cfg.StartHeight-1) <= blockCount {

		anchor := p.cfg.StartHeight - 1
		hash, err := p.blockHash(ctx, anchor)
		if err != nil {
			return err
		}

		p.remember(anchor, *hash)
	}

	if p.hasTip {
		if err := p.handleReorg(ctx, blockCount); err != nil {
			return err
		}
	}

	nextHeight := p.cfg.StartHeight
	if p.hasTip {
		nextHeight = p.bestHeight + 1
	}
	for height := nextHeight; int64(height) <= blockCount; height++ {
		if err := p.connectBlock(ctx, height); err != nil {
			return err
		}
	}

	if p.cfg.SkipMempool {
		return nil
	}

	return p.pollMempool(ctx)
}

// handleReorg walks back from the best delivered block until it finds a
// block still on the node's main chain, and reports the blocks above it as
// disconnected.
func (p *BlockPoller) handleReorg(ctx context.Context,
	blockCount int64) error {

	forkHeight := p.bestHeight
	for {
		known, ok := p.hashes[forkHeight]
		if !ok {
			return fmt.Errorf("%w: no common block at or below "+
				"%d", ErrReorgTooDeep, p.bestHeight)
		}

		if int64(forkHeight) <= blockCount {
			hash, err := p.blockHash(ctx, forkHeight)
			if err != nil {
				return err
			}
			if *hash == known {
				break
			}
		}

		if forkHeight == 0 {
			return fmt.Errorf("%w: genesis block changed",
				ErrReorgTooDeep)
		}
		forkHeight--
	}

	if forkHeight == p.bestHeight {
		return nil
	}

	log.Infof("Chain reorganized from height %d to fork height %d",
		p.bestHeight, forkHeight)

	if err := p.cfg.Notifiee.NotifyReorg(forkHeight); err != nil {
		return err
	}

	for height := forkHeight + 1; height <= p.bestHeight; height++ {
		delete(p.hashes, height)
	}
	p.bestHeight = forkHeight

	// Transactions of the disconnected blocks may come back through the
	// mempool.
	p.seenMempool = make(map[chainhash.Hash]struct{})

	return nil
}

// connectBlock fetches the main chain block at the height and delivers it.
func (p *BlockPoller) connectBlock(ctx context.Context, height uint32) error {
	hash, err := p.blockHash(ctx, height)
	if err != nil {
		return err
	}

	block, err := callWithContext(ctx, func() (*wire.MsgBlock, error) {
		return p.cfg.Client.GetBlock(hash)
	})
	if err != nil {
		return fmt.Errorf("unable to fetch block %v: %w", hash, err)
	}

	log.Debugf("Delivering block %v at height %d with %d txs", hash,
		height, len(block.Transactions))

	err = p.cfg.Notifiee.NotifyBlock(height, block.Transactions)
	if err != nil {
		return err
	}

	p.remember(height, *hash)

	return nil
}

// pollMempool delivers the mempool transactions that weren't delivered yet.
func (p *BlockPoller) pollMempool(ctx context.Context) error {
	txids, err := callWithContext(ctx, p.cfg.Client.GetRawMempool)
	if err != nil {
		return fmt.Errorf("unable to fetch mempool: %w", err)
	}

	inMempool := make(map[chainhash.Hash]struct{}, len(txids))
	for _, txid := range txids {
		inMempool[*txid] = struct{}{}
		if _, ok := p.seenMempool[*txid]; ok {
			continue
		}

		txid := txid
		tx, err := callWithContext(ctx, func() (*btcutil.Tx, error) {
			return p.cfg.Client.GetRawTransaction(txid)
		})
		if err != nil {
			// The transaction may have been evicted or mined in the
			// meantime.
			log.Debugf("Unable to fetch mempool tx %v: %v", txid,
				err)
			delete(inMempool, *txid)
			continue
		}

		if err := p.cfg.Notifiee.NotifyTx(tx.MsgTx()); err != nil {
			return err
		}
		p.seenMempool[*txid] = struct{}{}
	}

	// Forget about the transactions that left the mempool.
	for txid := range p.seenMempool {
		if _, ok := inMempool[txid]; !ok {
			delete(p.seenMempool, txid)
		}
	}

	return nil
}

// remember records the hash of a delivered block and forgets the hashes that
// dropped out of the reorg window.
func (p *BlockPoller) remember(height uint32, hash chainhash.Hash) {
	p.hashes[height] = hash
	p.bestHeight = height
	p.hasTip = true

	if height > p.cfg.MaxReorgDepth {
		delete(p.hashes, height-p.cfg.MaxReorgDepth-1)
	}
}

func (p *BlockPoller) blockHash(ctx context.Context,
	height uint32) (*chainhash.Hash, error) {

	hash, err := callWithContext(ctx, func() (*chainhash.Hash, error) {
		return p.cfg.Client.GetBlockHash(int64(height))
	})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch block hash at height "+
			"%d: %w", height, err)
	}

	return hash, nil
}
