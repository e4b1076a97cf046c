package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/lightninglabs/smartcolors/color"
	"github.com/urfave/cli"
)

var quantityCommands = []cli.Command{
	{
		Name:      "quantity",
		ShortName: "q",
		Usage:     "Encode and decode quantities carried by outputs.",
		Category:  "Quantities",
		Subcommands: []cli.Command{
			padCommand,
			unpadCommand,
		},
	},
}

const dustName = "dust"

var dustFlag = cli.Uint64Flag{
	Name:  dustName,
	Usage: "the dust threshold padded values are relative to",
	Value: color.DustThreshold,
}

var padCommand = cli.Command{
	Name:      "pad",
	Usage:     "print the output value carrying a quantity",
	ArgsUsage: "quantity",
	Description: "Quantities below the dust threshold are padded, the " +
		"value is printed as the signed amount of a wire output",
	Flags:  []cli.Flag{dustFlag},
	Action: padQuantity,
}

func padQuantity(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "pad")
	}

	qty, err := strconv.ParseUint(ctx.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity: %w", err)
	}

	value := color.PadQuantity(qty, ctx.Uint64(dustName))

	_, err = fmt.Fprintln(ctx.App.Writer, color.QuantityToValue(value))
	return err
}

var unpadCommand = cli.Command{
	Name:      "unpad",
	Usage:     "print the quantity an output value carries",
	ArgsUsage: "value",
	Flags:     []cli.Flag{dustFlag},
	Action:    unpadValue,
}

func unpadValue(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "unpad")
	}

	value, err := strconv.ParseInt(ctx.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	qty := color.UnpadValue(
		color.ValueToQuantity(value), ctx.Uint64(dustName),
	)

	_, err = fmt.Fprintln(ctx.App.Writer, qty)
	return err
}

var markerCommand = cli.Command{
	Name:   "marker",
	Usage:  "print the hex encoded transfer marker script",
	Action: printMarker,
}

func printMarker(ctx *cli.Context) error {
	script, err := color.MarkerScript()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(ctx.App.Writer, hex.EncodeToString(script))
	return err
}
