// Command goguard serves the token auth API and offers small operator
// helpers for seeding credential records.
package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
