package main

import (
	"os"

	"github.com/quantfold/nextday/cmd/nextday/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
