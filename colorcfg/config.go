package colorcfg

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btclog"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/smartcolors"
	"github.com/lightninglabs/smartcolors/chainbridge"
	"github.com/lightninglabs/smartcolors/colordb"
	"github.com/lightninglabs/smartcolors/proof"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/lightningnetwork/lnd/signal"
)

const (
	defaultDataDirname     = "data"
	defaultDefsDirname     = "definitions"
	defaultLogLevel        = "info"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "colord.log"
	defaultConfigFileName  = "colord.conf"
	defaultSqliteFileName  = "colord.db"
	defaultRPCHost         = "localhost"
	defaultMaxLogFiles     = 3
	defaultMaxLogFileSize  = 10
	defaultBalanceInterval = smartcolors.DefaultBalanceReportInterval

	// DatabaseBackendSqlite is the name of the SQLite database backend.
	DatabaseBackendSqlite = "sqlite"

	// DatabaseBackendPostgres is the name of the Postgres database backend.
	DatabaseBackendPostgres = "postgres"
)

var (
	// DefaultColorDir is the default directory where the color daemon
	// tries to find its configuration file and store its data. This is a
	// directory in the user's application data, for example:
	//   C:\Users\<username>\AppData\Local\Colord on Windows
	//   ~/.colord on Linux
	//   ~/Library/Application Support/Colord on MacOS
	DefaultColorDir = btcutil.AppDataDir("colord", false)

	// DefaultConfigFile is the default full path of the daemon's
	// configuration file.
	DefaultConfigFile = filepath.Join(DefaultColorDir, defaultConfigFileName)

	defaultNetwork = "testnet"

	defaultDataDir = filepath.Join(DefaultColorDir, defaultDataDirname)
	defaultLogDir  = filepath.Join(DefaultColorDir, defaultLogDirname)
	defaultDefsDir = filepath.Join(DefaultColorDir, defaultDefsDirname)

	// defaultSqliteDatabasePath is the default path under which we store
	// the SQLite database file.
	defaultSqliteDatabasePath = filepath.Join(
		defaultDataDir, defaultNetwork, defaultSqliteFileName,
	)

	// defaultRPCPorts are the default RPC ports of btcd by network name.
	defaultRPCPorts = map[string]string{
		chaincfg.MainNetParams.Name:       "8334",
		chaincfg.TestNet3Params.Name:      "18334",
		chaincfg.RegressionNetParams.Name: "18334",
		chaincfg.SimNetParams.Name:        "18556",
		chaincfg.SigNetParams.Name:        "38332",
	}
)

// ChainConfig houses the configuration options that govern which chain/network
// we operate on.
type ChainConfig struct {
	Network string `long:"network" description:"network to run on" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"simnet" choice:"signet"`

	SigNetChallenge string `long:"signetchallenge" description:"Connect to a custom signet network defined by this challenge instead of using the global default signet test network"`
}

// ChainRPCConfig is the config we'll use to connect to the full node that
// serves blocks, mempool transactions and ancestor transactions.
type ChainRPCConfig struct {
	Host       string `long:"host" description:"The RPC address of the full node, the default port of the network is used if none is given"`
	User       string `long:"user" description:"Username for RPC connections"`
	Pass       string `long:"pass" description:"Password for RPC connections"`
	RPCCert    string `long:"rpccert" description:"File containing the node's certificate file"`
	DisableTLS bool   `long:"notls" description:"Disable TLS for the RPC connection, required for bitcoind"`

	PollInterval  time.Duration `long:"pollinterval" description:"How often the node is polled for new blocks and mempool transactions"`
	StartHeight   uint32        `long:"startheight" description:"The height of the first block to scan, should be at or below the height of the oldest genesis transaction"`
	MaxReorgDepth uint32        `long:"maxreorgdepth" description:"The number of recent blocks remembered to detect reorgs"`
	SkipMempool   bool          `long:"skipmempool" description:"Only scan confirmed transactions"`
}

// ScannerConfig houses the options of the color scanner.
type ScannerConfig struct {
	MaxAncestorDepth int `long:"maxancestordepth" description:"The maximum number of ancestor transactions walked to verify a single output, 0 uses the default"`
}

// WalletConfig houses the options of the watch-only wallet.
type WalletConfig struct {
	WatchAddrs      []string      `long:"watchaddr" description:"An address whose colored coins are reported -- Can be specified multiple times"`
	BalanceInterval time.Duration `long:"balanceinterval" description:"How often the balances of the watched addresses are logged, 0 disables the report"`
}

// Config is the main config for the colord cli command.
type Config struct {
	ShowVersion bool `long:"version" description:"Display version information and exit"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	ColorDir   string `long:"colordir" description:"The base directory that contains the daemon's data, logs, configuration file, etc."`
	ConfigFile string `long:"configfile" description:"Path to configuration file"`

	DataDir        string `long:"datadir" description:"The directory to store the daemon's data within"`
	LogDir         string `long:"logdir" description:"Directory to log output."`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DefinitionsDir string `long:"definitionsdir" description:"Directory of JSON color definitions that are tracked on startup"`

	CPUProfile string `long:"cpuprofile" description:"Write CPU profile to the specified file"`
	Profile    string `long:"profile" description:"Enable HTTP profiling on either a port or host:port"`

	ChainConf *ChainConfig    `group:"chain" namespace:"chain"`
	ChainRPC  *ChainRPCConfig `group:"chainrpc" namespace:"chainrpc"`
	Scanner   *ScannerConfig  `group:"scanner" namespace:"scanner"`
	Wallet    *WalletConfig   `group:"wallet" namespace:"wallet"`

	DatabaseBackend string                  `long:"databasebackend" description:"The database backend to use for storing the color definitions and proofs." choice:"sqlite" choice:"postgres"`
	Sqlite          *colordb.SqliteConfig   `group:"sqlite" namespace:"sqlite"`
	Postgres        *colordb.PostgresConfig `group:"postgres" namespace:"postgres"`

	// LogWriter is the root logger that all of the daemon's subloggers are
	// hooked up to.
	LogWriter *build.RotatingLogWriter

	// networkDir is the path to the directory of the currently active
	// network. This path will hold the files related to each different
	// network.
	networkDir string

	// ActiveNetParams contains parameters of the target chain.
	ActiveNetParams chaincfg.Params
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		ColorDir:       DefaultColorDir,
		ConfigFile:     DefaultConfigFile,
		DataDir:        defaultDataDir,
		DebugLevel:     defaultLogLevel,
		LogDir:         defaultLogDir,
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		DefinitionsDir: defaultDefsDir,
		ChainConf: &ChainConfig{
			Network: defaultNetwork,
		},
		ChainRPC: &ChainRPCConfig{
			Host:          defaultRPCHost,
			PollInterval:  chainbridge.DefaultPollInterval,
			MaxReorgDepth: chainbridge.DefaultMaxReorgDepth,
		},
		Scanner: &ScannerConfig{
			MaxAncestorDepth: proof.DefaultMaxAncestorDepth,
		},
		Wallet: &WalletConfig{
			BalanceInterval: defaultBalanceInterval,
		},
		DatabaseBackend: DatabaseBackendSqlite,
		Sqlite: &colordb.SqliteConfig{
			DatabaseFileName: defaultSqliteDatabasePath,
		},
		Postgres: &colordb.PostgresConfig{
			Host:               "localhost",
			Port:               5432,
			MaxOpenConnections: 10,
		},
		LogWriter: build.NewRotatingLogWriter(),
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig(interceptor signal.Interceptor) (*Config, btclog.Logger, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", smartcolors.Version())
		os.Exit(0)
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their colordir, then we should assume they intend to use
	// the config file within it.
	configFileDir := CleanAndExpandPath(preCfg.ColorDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	switch {
	// User specified --colordir but no --configfile. Update the config
	// file path to the colord config directory, but don't require it to
	// exist.
	case configFileDir != DefaultColorDir &&
		configFilePath == DefaultConfigFile:

		configFilePath = filepath.Join(
			configFileDir, defaultConfigFileName,
		)

	// User did specify an explicit --configfile, so we check that it does
	// exist under that path to avoid surprises.
	case configFilePath != DefaultConfigFile:
		if !fileExists(configFilePath) {
			return nil, nil, fmt.Errorf("specified config file does "+
				"not exist in %s", configFilePath)
		}
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	fileParser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(fileParser).ParseFile(configFilePath)
	if err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return nil, nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	flagParser := flags.NewParser(&cfg, flags.Default)
	if _, err := flagParser.Parse(); err != nil {
		return nil, nil, err
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, cfgLogger, err := ValidateConfig(cfg, interceptor)
	if err != nil {
		// Log help message in case of usage error.
		if _, ok := err.(*usageError); ok {
			// The logging system might not yet be initialized, so
			// we also write to stderr to make sure the message
			// appears somewhere.
			_, _ = fmt.Fprintln(os.Stderr, usageMessage)
			if cfgLogger != nil {
				cfgLogger.Warnf("Incorrect usage: %v",
					usageMessage)
			}
		}

		// The logging system might not yet be initialized, so we also
		// write to stderr to make sure the error appears somewhere.
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		if cfgLogger != nil {
			cfgLogger.Warnf("Error validating config: %v", err)
		}
		return nil, nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		cfgLogger.Warnf("%v", configFileError)
	}

	return cleanCfg, cfgLogger, nil
}

// usageError is an error type that signals a problem with the supplied flags.
type usageError struct {
	err error
}

// Error returns the error string.
//
// NOTE: This is part of the error interface.
func (u *usageError) Error() string {
	return u.err.Error()
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config, interceptor signal.Interceptor) (*Config,
	btclog.Logger, error) {

	// If the provided colord directory is not the default, we'll modify
	// the path to all of the files and directories that will live within
	// it.
	colorDir := CleanAndExpandPath(cfg.ColorDir)
	if colorDir != DefaultColorDir {
		cfg.DataDir = filepath.Join(colorDir, defaultDataDirname)
		cfg.LogDir = filepath.Join(colorDir, defaultLogDirname)
		if cfg.DefinitionsDir == defaultDefsDir {
			cfg.DefinitionsDir = filepath.Join(
				colorDir, defaultDefsDirname,
			)
		}
	}

	funcName := "ValidateConfig"
	mkErr := func(format string, args ...interface{}) error {
		return fmt.Errorf(funcName+": "+format, args...)
	}
	makeDirectory := func(dir string) error {
		err := os.MkdirAll(dir, 0700)
		if err != nil {
			// Show a nicer error message if it's because a symlink
			// is linked to a directory that does not exist
			// (probably because it's not mounted).
			if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
				link, lerr := os.Readlink(e.Path)
				if lerr == nil {
					str := "is symlink %s -> %s mounted?"
					err = fmt.Errorf(str, e.Path, link)
				}
			}

			str := "Failed to create colord directory '%s': %v"
			return mkErr(str, dir, err)
		}

		return nil
	}

	// As soon as we're done parsing configuration options, ensure all
	// paths to directories and files are cleaned and expanded before
	// attempting to use them later on.
	cfg.DataDir = CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)
	cfg.DefinitionsDir = CleanAndExpandPath(cfg.DefinitionsDir)
	cfg.ChainRPC.RPCCert = CleanAndExpandPath(cfg.ChainRPC.RPCCert)

	switch cfg.ChainConf.Network {
	case "mainnet":
		cfg.ActiveNetParams = chaincfg.MainNetParams
	case "testnet":
		cfg.ActiveNetParams = chaincfg.TestNet3Params
	case "regtest":
		cfg.ActiveNetParams = chaincfg.RegressionNetParams
	case "simnet":
		cfg.ActiveNetParams = chaincfg.SimNetParams
	case "signet":
		cfg.ActiveNetParams = chaincfg.SigNetParams

		// Let the user overwrite the default signet parameters.
		// The challenge defines the actual signet network to
		// join and the seed nodes are needed for network
		// discovery.
		sigNetChallenge := chaincfg.DefaultSignetChallenge
		sigNetSeeds := chaincfg.DefaultSignetDNSSeeds
		if cfg.ChainConf.SigNetChallenge != "" {
			challenge, err := hex.DecodeString(
				cfg.ChainConf.SigNetChallenge,
			)
			if err != nil {
				return nil, nil, mkErr("Invalid "+
					"signet challenge, hex decode "+
					"failed: %v", err)
			}
			sigNetChallenge = challenge
		}

		chainParams := chaincfg.CustomSignetParams(
			sigNetChallenge, sigNetSeeds,
		)
		cfg.ActiveNetParams = chainParams
	default:
		return nil, nil, &usageError{mkErr("invalid network: %v",
			cfg.ChainConf.Network)}
	}

	switch cfg.DatabaseBackend {
	case DatabaseBackendSqlite, DatabaseBackendPostgres:
	default:
		return nil, nil, &usageError{mkErr("unknown database "+
			"backend: %v", cfg.DatabaseBackend)}
	}

	if cfg.ChainRPC.PollInterval <= 0 {
		return nil, nil, &usageError{mkErr("poll interval must be " +
			"positive")}
	}

	// Add the default port of the network if the RPC host has none.
	if _, _, err := net.SplitHostPort(cfg.ChainRPC.Host); err != nil {
		cfg.ChainRPC.Host = net.JoinHostPort(
			cfg.ChainRPC.Host,
			defaultRPCPorts[cfg.ActiveNetParams.Name],
		)
	}

	// Validate profile port or host:port.
	if cfg.Profile != "" {
		str := "%s: The profile port must be between 1024 and 65535"

		// Try to parse Profile as a host:port.
		_, hostPort, err := net.SplitHostPort(cfg.Profile)
		if err == nil {
			// Determine if the port is valid.
			profilePort, err := strconv.Atoi(hostPort)
			if err != nil || profilePort < 1024 || profilePort > 65535 {
				return nil, nil, &usageError{mkErr(str)}
			}
		} else {
			// Try to parse Profile as a port.
			profilePort, err := strconv.Atoi(cfg.Profile)
			if err != nil || profilePort < 1024 || profilePort > 65535 {
				return nil, nil, &usageError{mkErr(str)}
			}

			// Since the user just set a port, we will serve debugging
			// information over localhost.
			cfg.Profile = net.JoinHostPort("127.0.0.1", cfg.Profile)
		}
	}

	// We'll now construct the network directory which will be where we
	// store all the data specific to this chain/network.
	cfg.networkDir = filepath.Join(
		cfg.DataDir, lncfg.NormalizeNetwork(cfg.ActiveNetParams.Name),
	)

	// We'll also update the database file location as well, if it wasn't
	// set.
	if cfg.Sqlite.DatabaseFileName == defaultSqliteDatabasePath {
		cfg.Sqlite.DatabaseFileName = filepath.Join(
			cfg.networkDir, defaultSqliteFileName,
		)
	}
	cfg.Sqlite.DatabaseFileName = CleanAndExpandPath(
		cfg.Sqlite.DatabaseFileName,
	)

	// Create the colord directory and all other sub-directories if they
	// don't already exist. This makes sure that directory trees are also
	// created for files that point to outside the colordir.
	dirs := []string{
		colorDir, cfg.DataDir, cfg.networkDir,
		filepath.Dir(cfg.Sqlite.DatabaseFileName),
	}
	for _, dir := range dirs {
		if err := makeDirectory(dir); err != nil {
			return nil, nil, err
		}
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network in the same fashion as the data directory.
	cfg.LogDir = filepath.Join(
		cfg.LogDir, lncfg.NormalizeNetwork(cfg.ActiveNetParams.Name),
	)

	// A log writer must be passed in, otherwise we can't function and would
	// run into a panic later on.
	if cfg.LogWriter == nil {
		return nil, nil, mkErr("log writer missing in config")
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			cfg.LogWriter.SupportedSubsystems())
		os.Exit(0)
	}

	// Initialize logging at the default logging level.
	smartcolors.SetupLoggers(cfg.LogWriter, interceptor)
	err := cfg.LogWriter.InitLogRotator(
		filepath.Join(cfg.LogDir, defaultLogFilename),
		cfg.MaxLogFileSize, cfg.MaxLogFiles,
	)
	if err != nil {
		str := "log rotation setup failed: %v"
		return nil, nil, mkErr(str, err)
	}

	colorCfgLog := cfg.LogWriter.GenSubLogger("CONF", nil)

	// Parse, validate, and set debug log level(s).
	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, cfg.LogWriter)
	if err != nil {
		str := "error parsing debug level: %v"
		return nil, colorCfgLog, &usageError{mkErr(str, err)}
	}

	// All good, return the sanitized result.
	return &cfg, colorCfgLog, nil
}

// NetworkDir returns the data directory of the active network.
func (c *Config) NetworkDir() string {
	return c.networkDir
}

// fileExists reports whether the named file or directory exists.
// This function is taken from https://github.com/btcsuite/btcd
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
