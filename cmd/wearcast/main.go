// Package main is the entry point for the wearcast engine and its companion tools.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wearcast: %v\n", err)
		os.Exit(1)
	}
}
