package main

import (
	"os"

	"github.com/gallerio/cloud-export/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
