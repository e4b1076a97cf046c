package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/internal/test"
	"github.com/stretchr/testify/require"
)

// runApp runs the app with the given arguments and returns its output. The
// command tables are package level values the cli package annotates while
// running, so the tests here don't run in parallel.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	app := NewApp()
	app.Writer = &out
	app.ErrWriter = &out

	err := app.Run(append([]string{"colortool"}, args...))
	return strings.TrimSpace(out.String()), err
}

func writeTestDefinition(t *testing.T) (*color.Definition, string) {
	def, err := color.NewDefinition(
		[]color.GenesisPoint{
			color.NewScriptGenesis(test.RandP2WPKHScript(t)),
		}, nil, map[string]string{
			color.MetadataName:         "gold",
			color.MetadataDivisibility: "2",
		}, &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gold.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, color.EncodeDefinitionJSON(f, def))

	return def, path
}

func TestDefinitionCommands(t *testing.T) {
	def, path := writeTestDefinition(t)

	out, err := runApp(
		t, "--network", "regtest", "definition", "hash", "--file", path,
	)
	require.NoError(t, err)
	require.Equal(t, def.ID().String(), out)

	out, err = runApp(
		t, "-n", "regtest", "def", "payload", "--file", path,
	)
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(def.Payload()), out)

	out, err = runApp(
		t, "-n", "regtest", "definition", "show", "--file", path,
	)
	require.NoError(t, err)

	var shown definitionShow
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	require.Equal(t, def.ID().String(), shown.ID)
	require.Equal(t, "gold", shown.Name)
	require.Equal(t, chaincfg.RegressionNetParams.Name, shown.Network)
	require.Len(t, shown.Document.ScriptGenesis, 1)

	out, err = runApp(
		t, "-n", "regtest", "definition", "amount", "--file", path,
		"--parse", "1.25",
	)
	require.NoError(t, err)
	require.Equal(t, "125", out)

	out, err = runApp(
		t, "-n", "regtest", "definition", "amount", "--file", path,
		"--format", "125",
	)
	require.NoError(t, err)
	require.Equal(t, "1.25", out)
}

func TestDefinitionCommandErrors(t *testing.T) {
	_, path := writeTestDefinition(t)

	testCases := []struct {
		name string
		args []string
	}{{
		name: "missing file",
		args: []string{"definition", "hash"},
	}, {
		name: "unknown network",
		args: []string{
			"-n", "moonnet", "definition", "hash", "--file", path,
		},
	}, {
		name: "not a file",
		args: []string{
			"definition", "hash", "--file",
			filepath.Join(t.TempDir(), "missing.json"),
		},
	}, {
		name: "both conversions",
		args: []string{
			"-n", "regtest", "definition", "amount", "--file",
			path, "--parse", "1", "--format", "1",
		},
	}, {
		name: "too many decimals",
		args: []string{
			"-n", "regtest", "definition", "amount", "--file",
			path, "--parse", "1.001",
		},
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
					_, err := runApp(t, tc.args...)
			require.Error(t, err)
		})
	}
}

func TestQuantityCommands(t *testing.T) {
	padded := color.QuantityToValue(
		color.PadQuantity(12, color.DustThreshold),
	)
	require.Negative(t, padded)

	out, err := runApp(t, "quantity", "pad", "12")
	require.NoError(t, err)
	require.Equal(t, strconv.FormatInt(padded, 10), out)

	out, err = runApp(t, "quantity", "unpad", "--", out)
	require.NoError(t, err)
	require.Equal(t, "12", out)

	// Quantities above the threshold are used as is.
	out, err = runApp(t, "q", "pad", "600000")
	require.NoError(t, err)
	require.Equal(t, "600000", out)

	out, err = runApp(t, "q", "pad", "--dust", "10", "12")
	require.NoError(t, err)
	require.Equal(t, "12", out)

	_, err = runApp(t, "q", "pad", "lots")
	require.Error(t, err)
}

func TestMarkerCommand(t *testing.T) {
	script, err := color.MarkerScript()
	require.NoError(t, err)

	out, err := runApp(t, "marker")
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(script), out)
}
