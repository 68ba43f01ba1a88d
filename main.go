package main

import (
	"os"

	"github.com/nvell/issuelens/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
