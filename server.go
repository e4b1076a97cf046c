package smartcolors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/chainbridge"
	"github.com/lightninglabs/smartcolors/chanutils"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/proof"
	"github.com/lightningnetwork/lnd/build"
)

// defaultStartupTimeout bounds loading and restoring the definitions on
// startup.
const defaultStartupTimeout = 5 * time.Minute

// Server is the main daemon construct of the color daemon. It loads the
// tracked definitions, feeds the chain into the scanner and reports what the
// chain changes for the watched wallet.
type Server struct {
	started  int32
	shutdown int32

	cfg *Config

	poller *chainbridge.BlockPoller

	*chanutils.ContextGuard
}

// NewServer creates a new server given the passed config.
func NewServer(cfg *Config) *Server {
	s := &Server{
		cfg:          cfg,
		ContextGuard: chanutils.NewContextGuard(defaultStartupTimeout),
	}

	pollerCfg := *cfg.PollerCfg
	pollerCfg.Notifiee = s
	s.poller = chainbridge.NewBlockPoller(&pollerCfg)

	return s
}

// Start loads the definitions and starts the chain poller.
func (s *Server) Start() error {
	if atomic.AddInt32(&s.started, 1) != 1 {
		return nil
	}

	// Show version at startup.
	srvrLog.Infof("Version: %s, build=%s, logging=%s, debuglevel=%s",
		Version(), build.Deployment, build.LoggingType,
		s.cfg.DebugLevel)

	srvrLog.Infof("Active network: %v", s.cfg.ChainParams.Name)

	ctx, cancel := s.WithCtxQuit()
	defer cancel()

	if err := s.loadDefinitions(ctx); err != nil {
		return err
	}

	if err := s.poller.Start(); err != nil {
		return fmt.Errorf("unable to start block poller: %w", err)
	}

	if s.cfg.BalanceTicker != nil {
		s.Wg.Add(1)
		go s.reportBalances()
	}

	return nil
}

// loadDefinitions stores the definitions of the definitions dir and then
// starts tracking every stored definition.
func (s *Server) loadDefinitions(ctx context.Context) error {
	fileDefs, err := LoadDefinitions(
		ctx, s.cfg.DefinitionsDir, s.cfg.ChainParams,
	)
	if err != nil {
		return err
	}

	for _, def := range fileDefs {
		if err := s.cfg.Definitions.SaveDefinition(ctx, def); err != nil {
			return fmt.Errorf("unable to store definition %v: %w",
				def, err)
		}
	}

	defs, err := s.cfg.Definitions.FetchDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("unable to fetch definitions: %w", err)
	}

	for _, def := range defs {
		// Definitions stored for another network are kept around but
		// not tracked.
		if def.Params() != nil &&
			def.Params().Name != s.cfg.ChainParams.Name {

			srvrLog.Warnf("Skipping definition %v of network %v",
				def, def.Params().Name)
			continue
		}

		if err := s.cfg.Scanner.AddDefinition(ctx, def); err != nil {
			return fmt.Errorf("unable to track definition %v: %w",
				def, err)
		}

		srvrLog.Infof("Tracking color %v", def)
	}

	return nil
}

// RunUntilShutdown runs the main server loop until a signal is received to
// shut down the process.
func (s *Server) RunUntilShutdown(mainErrChan <-chan error) error {
	defer func() {
		srvrLog.Info("Shutdown complete\n")
		err := s.cfg.LogWriter.Close()
		if err != nil {
			srvrLog.Errorf("Could not close log rotator: %v", err)
		}
	}()

	mkErr := func(format string, args ...interface{}) error {
		logFormat := strings.ReplaceAll(format, "%w", "%v")
		srvrLog.Errorf("Shutting down because error in main "+
			"method: "+logFormat, args...)
		return fmt.Errorf(format, args...)
	}

	if err := s.Start(); err != nil {
		return mkErr("unable to start server: %w", err)
	}
	defer func() {
		_ = s.Stop()
	}()

	srvrLog.Infof("Color daemon fully active!")

	// Wait for shutdown signal from either a graceful server stop or from
	// the interrupt handler.
	select {
	case <-s.cfg.SignalInterceptor.ShutdownChannel():
		srvrLog.Infof("Received SIGINT (Ctrl+C). Shutting down...")

	case err := <-mainErrChan:
		if err == nil {
			srvrLog.Debug("Main err chan closed")
			return nil
		}

		// We'll report the error to the main daemon, but only if this
		// isn't a context cancel.
		if errors.Is(err, context.Canceled) {
			srvrLog.Debugf("Got context canceled error: %v", err)
			return nil
		}

		return mkErr("received critical error from subsystem: %w", err)

	case <-s.Quit:
	}

	return nil
}

// Stop signals that the server should attempt a graceful shutdown.
func (s *Server) Stop() error {
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		return nil
	}

	srvrLog.Infof("Stopping Main Server")

	// Closing the quit channel first cancels any scanner call the poller
	// is blocked on.
	close(s.Quit)

	if err := s.poller.Stop(); err != nil {
		return err
	}
	if err := s.cfg.Scanner.Stop(); err != nil {
		return err
	}
	if s.cfg.ChainConn != nil {
		s.cfg.ChainConn.Shutdown()
	}

	s.Wg.Wait()

	return nil
}

// NotifyTx observes a new mempool transaction.
//
// NOTE: This is part of the chainbridge.ChainNotifiee interface.
func (s *Server) NotifyTx(tx *wire.MsgTx) error {
	ctx, cancel := s.WithCtxQuitNoTimeout()
	defer cancel()

	err := s.cfg.Scanner.AddAllPending(ctx, []*wire.MsgTx{tx})
	if err := chainEventErr("mempool tx", err); err != nil {
		return err
	}

	s.observeWalletTx(tx, proof.UnconfirmedHeight)

	return nil
}

// NotifyBlock observes the transactions of a newly connected block.
//
// NOTE: This is part of the chainbridge.ChainNotifiee interface.
func (s *Server) NotifyBlock(height uint32, txs []*wire.MsgTx) error {
	ctx, cancel := s.WithCtxQuitNoTimeout()
	defer cancel()

	err := s.cfg.Scanner.ConnectBlock(ctx, height, txs)
	if err := chainEventErr("block", err); err != nil {
		return err
	}

	for _, tx := range txs {
		s.observeWalletTx(tx, height)
	}

	return nil
}

// NotifyReorg rolls the scanner back to the fork height.
//
// NOTE: This is part of the chainbridge.ChainNotifiee interface.
func (s *Server) NotifyReorg(forkHeight uint32) error {
	ctx, cancel := s.WithCtxQuitNoTimeout()
	defer cancel()

	err := s.cfg.Scanner.DisconnectBlocks(ctx, forkHeight)
	return chainEventErr("reorg", err)
}

// chainEventErr decides whether a scanner error stops the delivery of a chain
// event. The scanner applies every transaction of an event even if some of
// them fail to verify, so those failures are only logged and the poller
// moves on. An interrupted call is handed back, and the poller delivers the
// event again with the next poll.
func chainEventErr(event string, err error) error {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):

		return err

	default:
		srvrLog.Warnf("Unable to fully apply %v: %v", event, err)
		return nil
	}
}

// observeWalletTx logs the quantities a transaction moves into or out of the
// wallet and updates the wallet's coins. A transaction seen in the mempool is
// only reported once, not again when it confirms.
func (s *Server) observeWalletTx(tx *wire.MsgTx, height uint32) {
	if s.cfg.Wallet == nil || s.cfg.Wallet.KnowsTx(tx.TxHash()) {
		return
	}

	changes := s.cfg.Scanner.NetAssetChange(tx, s.cfg.Wallet)
	if !s.cfg.Wallet.ObserveTx(tx) {
		return
	}

	for id, change := range changes {
		wlltLog.Infof("Tx %v (height %v) changed balance of color %v "+
			"by %d", tx.TxHash(), heightString(height),
			s.colorName(id), change)
	}
}

// Balances returns the quantity of every color the wallet holds.
func (s *Server) Balances() map[color.ID]uint64 {
	if s.cfg.Wallet == nil {
		return nil
	}

	return s.cfg.Scanner.Balances(s.cfg.Wallet.Coins())
}

// reportBalances logs the balances of the wallet on every tick.
func (s *Server) reportBalances() {
	defer s.Wg.Done()

	s.cfg.BalanceTicker.Resume()
	defer s.cfg.BalanceTicker.Stop()

	for {
		select {
		case <-s.cfg.BalanceTicker.Ticks():
			for id, qty := range s.Balances() {
				wlltLog.Infof("Balance of color %v: %d",
					s.colorName(id), qty)
			}

		case <-s.Quit:
			return
		}
	}
}

// colorName returns the name of a tracked color, or its ID if it has none.
func (s *Server) colorName(id color.ID) string {
	def, ok := s.cfg.Scanner.Definition(id)
	if !ok || def.Name() == "" {
		return id.String()
	}

	return def.Name()
}

func heightString(height uint32) string {
	if height == proof.UnconfirmedHeight {
		return "unconfirmed"
	}

	return fmt.Sprintf("%d", height)
}
