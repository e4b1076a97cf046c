package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lightninglabs/smartcolors"
	"github.com/urfave/cli"
)

// NewApp creates a new colortool app with all the available commands.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "colortool"
	app.Version = smartcolors.Version()
	app.Usage = "offline helper for color definitions and colored outputs"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name: "network, n",
			Usage: "The network definitions are loaded for, e.g. " +
				"mainnet, testnet, etc.",
			Value: "testnet",
		},
	}

	app.Commands = []cli.Command{
		markerCommand,
	}
	app.Commands = append(app.Commands, definitionCommands...)
	app.Commands = append(app.Commands, quantityCommands...)

	return app
}

func main() {
	app := NewApp()
	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "[colortool] %v\n", err)
	os.Exit(1)
}

func printJSON(w io.Writer, resp interface{}) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "\t")
	out.WriteString("\n")
	_, err = out.WriteTo(w)

	return err
}
