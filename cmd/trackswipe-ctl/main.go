package main

import (
	"fmt"
	"os"
)

// ============================================================================
// trackswipe-ctl - Command-line IPC Client
// ============================================================================
// This tool sends actions to the trackswipe daemon via IPC.
//
// Usage:
//   trackswipe-ctl ui active --slot 2
//   trackswipe-ctl fingers 4
//   trackswipe-ctl swipe right
//   trackswipe-ctl status
// ============================================================================

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
