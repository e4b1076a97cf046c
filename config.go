package smartcolors

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/lightninglabs/smartcolors/chainbridge"
	"github.com/lightninglabs/smartcolors/colordb"
	"github.com/lightninglabs/smartcolors/scanner"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultBalanceReportInterval is the default interval at which the balances
// of the wallet are logged.
const DefaultBalanceReportInterval = 10 * time.Minute

// Config is the main config for the color daemon server.
type Config struct {
	DebugLevel string

	// ChainParams is the network the daemon runs on.
	ChainParams *chaincfg.Params

	// Scanner tracks the colors and verifies their quantities.
	Scanner *scanner.Scanner

	// Definitions persists the tracked definitions.
	Definitions *colordb.DefinitionStore

	// DefinitionsDir is a directory of JSON definition files that are
	// added to the tracked definitions on startup.
	DefinitionsDir string

	// PollerCfg is the config of the block poller that feeds the scanner.
	// The server sets itself as the notifiee.
	PollerCfg *chainbridge.PollerConfig

	// ChainConn is the RPC connection to the full node. It is shut down
	// together with the server if set.
	ChainConn *rpcclient.Client

	// Wallet holds the coins whose balances are reported.
	Wallet *WatchWallet

	// BalanceTicker drives the periodic balance report.
	BalanceTicker ticker.Ticker

	SignalInterceptor signal.Interceptor

	// LogWriter is the root logger that all of the daemon's subloggers are
	// hooked up to.
	LogWriter *build.RotatingLogWriter
}
