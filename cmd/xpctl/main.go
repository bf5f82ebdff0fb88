package main

import (
	"fmt"
	"os"

	"github.com/habitquest/duel-engine/internal/interface/cli"
)

var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
