package colorcfg

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btclog"
	"github.com/lightninglabs/smartcolors"
	"github.com/lightninglabs/smartcolors/chainbridge"
	"github.com/lightninglabs/smartcolors/colordb"
	"github.com/lightninglabs/smartcolors/scanner"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/lightningnetwork/lnd/ticker"
)

// openDatabase opens the configured database backend.
func openDatabase(cfg *Config, cfgLogger btclog.Logger) (*colordb.BaseDB,
	error) {

	switch cfg.DatabaseBackend {
	case DatabaseBackendSqlite:
		cfgLogger.Infof("Opening sqlite3 database at: %v",
			cfg.Sqlite.DatabaseFileName)

		store, err := colordb.NewSqliteStore(cfg.Sqlite)
		if err != nil {
			return nil, err
		}

		return store.BaseDB, nil

	case DatabaseBackendPostgres:
		cfgLogger.Infof("Opening postgres database at: %v",
			cfg.Postgres.DSN(true))

		store, err := colordb.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return nil, err
		}

		return store.BaseDB, nil

	default:
		return nil, fmt.Errorf("unknown database backend: %s",
			cfg.DatabaseBackend)
	}
}

// connectChain opens the RPC connection to the full node.
func connectChain(cfg *ChainRPCConfig) (*rpcclient.Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}
	if !cfg.DisableTLS && cfg.RPCCert != "" {
		cert, err := os.ReadFile(cfg.RPCCert)
		if err != nil {
			return nil, fmt.Errorf("unable to read RPC cert: %w",
				err)
		}
		connCfg.Certificates = cert
	}

	return rpcclient.New(connCfg, nil)
}

// CreateServerFromConfig creates a new color daemon server from the given CLI
// config.
func CreateServerFromConfig(cfg *Config, cfgLogger btclog.Logger,
	shutdownInterceptor signal.Interceptor,
	mainErrChan chan<- error) (*smartcolors.Server, error) {

	db, err := openDatabase(cfg, cfgLogger)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %v", err)
	}

	definitionDB := colordb.NewTransactionExecutor(
		db, func(tx *sql.Tx) colordb.DefinitionQueries {
			return db.WithTx(tx)
		},
	)
	proofDB := colordb.NewTransactionExecutor(
		db, func(tx *sql.Tx) colordb.ProofQueries {
			return db.WithTx(tx)
		},
	)
	definitionStore := colordb.NewDefinitionStore(
		definitionDB, clock.NewDefaultClock(),
	)
	proofStore := colordb.NewProofStore(proofDB)

	cfgLogger.Infof("Connecting to chain backend at %v...",
		cfg.ChainRPC.Host)
	chainConn, err := connectChain(cfg.ChainRPC)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to chain backend: %v",
			err)
	}

	watchScripts, err := smartcolors.WatchScripts(
		cfg.Wallet.WatchAddrs, &cfg.ActiveNetParams,
	)
	if err != nil {
		return nil, err
	}

	var balanceTicker ticker.Ticker
	if cfg.Wallet.BalanceInterval > 0 && len(watchScripts) > 0 {
		balanceTicker = ticker.New(cfg.Wallet.BalanceInterval)
	}

	colorScanner := scanner.New(&scanner.Config{
		TxSource:         chainbridge.NewRpcTxSource(chainConn),
		Archive:          proofStore,
		MaxAncestorDepth: cfg.Scanner.MaxAncestorDepth,
		ErrChan:          mainErrChan,
	})

	return smartcolors.NewServer(&smartcolors.Config{
		DebugLevel:     cfg.DebugLevel,
		ChainParams:    &cfg.ActiveNetParams,
		Scanner:        colorScanner,
		Definitions:    definitionStore,
		DefinitionsDir: cfg.DefinitionsDir,
		PollerCfg: &chainbridge.PollerConfig{
			Client:        chainConn,
			Ticker:        ticker.New(cfg.ChainRPC.PollInterval),
			StartHeight:   cfg.ChainRPC.StartHeight,
			MaxReorgDepth: cfg.ChainRPC.MaxReorgDepth,
			SkipMempool:   cfg.ChainRPC.SkipMempool,
			ErrChan:       mainErrChan,
		},
		ChainConn:         chainConn,
		Wallet:            smartcolors.NewWatchWallet(watchScripts),
		BalanceTicker:     balanceTicker,
		SignalInterceptor: shutdownInterceptor,
		LogWriter:         cfg.LogWriter,
	}), nil
}
