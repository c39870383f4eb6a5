package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "forge"
	app.Usage = "provision ephemeral local blockchain dev networks"
	app.Commands = append(
		app.Commands,
		&bitcoinCommand,
		&solanaCommand,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[forge] %v\n", err)
	os.Exit(1)
}
