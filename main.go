// Package main is the entry point for the schc fragmentation gateway.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/schc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
