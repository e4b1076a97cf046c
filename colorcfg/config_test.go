package colorcfg

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.ColorDir = t.TempDir()
	cfg.ChainConf.Network = "regtest"

	return cfg
}

func TestValidateConfig(t *testing.T) {
	cfg := newTestConfig(t)

	cleanCfg, cfgLogger, err := ValidateConfig(cfg, signal.Interceptor{})
	require.NoError(t, err)
	require.NotNil(t, cfgLogger)

	require.Equal(
		t, chaincfg.RegressionNetParams.Name,
		cleanCfg.ActiveNetParams.Name,
	)
	require.Equal(t, "localhost:18334", cleanCfg.ChainRPC.Host)

	// Everything moves into the custom colord dir.
	networkDir := filepath.Join(cfg.ColorDir, defaultDataDirname, "regtest")
	require.Equal(t, networkDir, cleanCfg.NetworkDir())
	require.DirExists(t, networkDir)
	require.Equal(
		t, filepath.Join(networkDir, defaultSqliteFileName),
		cleanCfg.Sqlite.DatabaseFileName,
	)
	require.Equal(
		t, filepath.Join(cfg.ColorDir, defaultDefsDirname),
		cleanCfg.DefinitionsDir,
	)
	require.Equal(
		t, filepath.Join(cfg.ColorDir, defaultLogDirname, "regtest"),
		cleanCfg.LogDir,
	)
}

func TestValidateConfigOverrides(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ChainConf.Network = "testnet"
	cfg.ChainRPC.Host = "node.local:1234"
	cfg.DefinitionsDir = filepath.Join(cfg.ColorDir, "mydefs")
	cfg.Profile = "6060"

	cleanCfg, _, err := ValidateConfig(cfg, signal.Interceptor{})
	require.NoError(t, err)

	require.Equal(t, "node.local:1234", cleanCfg.ChainRPC.Host)
	require.Equal(t, cfg.DefinitionsDir, cleanCfg.DefinitionsDir)
	require.Equal(t, "127.0.0.1:6060", cleanCfg.Profile)
	require.Equal(
		t, filepath.Join(cfg.ColorDir, defaultDataDirname, "testnet"),
		cleanCfg.NetworkDir(),
	)
}

func TestValidateConfigErrors(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(cfg *Config)
	}{{
		name: "unknown network",
		modify: func(cfg *Config) {
			cfg.ChainConf.Network = "moonnet"
		},
	}, {
		name: "bad signet challenge",
		modify: func(cfg *Config) {
			cfg.ChainConf.Network = "signet"
			cfg.ChainConf.SigNetChallenge = "not hex"
		},
	}, {
		name: "unknown database backend",
		modify: func(cfg *Config) {
			cfg.DatabaseBackend = "bolt"
		},
	}, {
		name: "zero poll interval",
		modify: func(cfg *Config) {
			cfg.ChainRPC.PollInterval = 0
		},
	}, {
		name: "negative poll interval",
		modify: func(cfg *Config) {
			cfg.ChainRPC.PollInterval = -time.Second
		},
	}, {
		name: "bad profile port",
		modify: func(cfg *Config) {
			cfg.Profile = "80"
		},
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			tc.modify(&cfg)

			_, _, err := ValidateConfig(cfg, signal.Interceptor{})
			require.Error(t, err)
		})
	}
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("COLORD_TEST_DIR", "/tmp/colord")

	require.Equal(t, "", CleanAndExpandPath(""))
	require.Equal(
		t, "/tmp/colord/data",
		CleanAndExpandPath("$COLORD_TEST_DIR/./data/"),
	)
}
