package main

import (
	"os"

	"github.com/example/cscsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
