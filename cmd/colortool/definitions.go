package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/urfave/cli"
)

var definitionCommands = []cli.Command{
	{
		Name:      "definition",
		ShortName: "def",
		Usage:     "Inspect color definition documents.",
		Category:  "Definitions",
		Subcommands: []cli.Command{
			showDefinitionCommand,
			hashDefinitionCommand,
			payloadDefinitionCommand,
			amountCommand,
		},
	},
}

const (
	fileName   = "file"
	parseName  = "parse"
	formatName = "format"
)

var fileFlag = cli.StringFlag{
	Name:      fileName,
	Usage:     "the JSON definition document to read",
	TakesFile: true,
}

// definitionShow is the summary printed by the show command.
type definitionShow struct {
	ID       string                `json:"id"`
	Name     string                `json:"name,omitempty"`
	Network  string                `json:"network"`
	Document *color.DefinitionJSON `json:"definition"`
}

// networkParams maps the network names colord accepts to chain params.
func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %v", network)
	}
}

// loadDefinition reads the definition document given by the file flag for
// the network given by the global network flag.
func loadDefinition(ctx *cli.Context) (*color.Definition, error) {
	path := ctx.String(fileName)
	if path == "" {
		return nil, fmt.Errorf("--%s must be set", fileName)
	}

	params, err := networkParams(ctx.GlobalString("network"))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open definition: %w", err)
	}
	defer f.Close()

	def, err := color.DecodeDefinitionJSON(f, params)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %v: %w", path, err)
	}

	return def, nil
}

var showDefinitionCommand = cli.Command{
	Name:      "show",
	ShortName: "s",
	Usage:     "show a definition in its canonical form",
	Description: "Decode a definition document and print its ID along " +
		"with the normalized document",
	Flags:  []cli.Flag{fileFlag},
	Action: showDefinition,
}

func showDefinition(ctx *cli.Context) error {
	def, err := loadDefinition(ctx)
	if err != nil {
		return err
	}

	return printJSON(ctx.App.Writer, &definitionShow{
		ID:       def.ID().String(),
		Name:     def.Name(),
		Network:  color.NetworkName(def.Params()),
		Document: color.DefinitionToJSON(def),
	})
}

var hashDefinitionCommand = cli.Command{
	Name:   "hash",
	Usage:  "print the color ID of a definition",
	Flags:  []cli.Flag{fileFlag},
	Action: hashDefinition,
}

func hashDefinition(ctx *cli.Context) error {
	def, err := loadDefinition(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(ctx.App.Writer, def.ID())
	return err
}

var payloadDefinitionCommand = cli.Command{
	Name:  "payload",
	Usage: "print the hex encoded binary payload of a definition",
	Description: "Print the serialized genesis points the color ID " +
		"commits to",
	Flags:  []cli.Flag{fileFlag},
	Action: payloadDefinition,
}

func payloadDefinition(ctx *cli.Context) error {
	def, err := loadDefinition(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(ctx.App.Writer, hex.EncodeToString(def.Payload()))
	return err
}

var amountCommand = cli.Command{
	Name:  "amount",
	Usage: "convert between amounts and base unit quantities",
	Description: "Either parse a decimal amount into base units, or " +
		"format base units as a decimal amount, using the " +
		"divisibility of the definition",
	Flags: []cli.Flag{
		fileFlag,
		cli.StringFlag{
			Name:  parseName,
			Usage: "the decimal amount to parse, e.g. 1.25",
		},
		cli.Uint64Flag{
			Name:  formatName,
			Usage: "the quantity in base units to format",
		},
	},
	Action: convertAmount,
}

func convertAmount(ctx *cli.Context) error {
	if ctx.IsSet(parseName) == ctx.IsSet(formatName) {
		return fmt.Errorf("exactly one of --%s and --%s must be set",
			parseName, formatName)
	}

	def, err := loadDefinition(ctx)
	if err != nil {
		return err
	}

	if ctx.IsSet(formatName) {
		_, err := fmt.Fprintln(
			ctx.App.Writer, def.FormatAmount(ctx.Uint64(formatName)),
		)
		return err
	}

	qty, err := def.ParseAmount(ctx.String(parseName))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(ctx.App.Writer, qty)
	return err
}
