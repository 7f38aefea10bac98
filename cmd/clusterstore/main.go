// Package main provides the clusterstore CLI: an operator front end to the
// cluster storage engine.
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := newRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "clusterstore:", err)
		os.Exit(exitCode(err))
	}
}
