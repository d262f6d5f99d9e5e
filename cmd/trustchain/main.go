package main

import (
	"os"

	"github.com/arkavo-org/trustchain/cmd/trustchain/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
