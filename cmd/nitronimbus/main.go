package main

import (
	"os"

	"github.com/nitronimbus/nitronimbus/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
