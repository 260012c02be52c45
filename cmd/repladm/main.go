package main

import (
	"os"

	"github.com/gear6io/slate/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
