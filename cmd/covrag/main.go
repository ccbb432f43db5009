// Package main provides the entry point for the covrag CLI.
package main

import (
	"os"

	"github.com/covrag/covrag/cmd/covrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
