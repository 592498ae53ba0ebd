package main

import (
	"os"

	"github.com/cnclabs/kgscore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
