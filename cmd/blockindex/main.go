// Package main provides the entry point for the blockindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/blockindex/cmd/blockindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
