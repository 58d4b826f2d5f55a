// Package main provides the entry point for the memesearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/memesearch/cmd/memesearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
