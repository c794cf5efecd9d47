package main

import (
	"os"

	"github.com/mnemon-ai/mnemon/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
