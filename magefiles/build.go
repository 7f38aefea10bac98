//go:build mage

// Package main provides build targets for clusterstore using Mage.
//
// Usage:
//
//	mage build      Compile the clusterstore binary to bin/
//	mage test       Run all tests
//	mage testRace   Run all tests with the race detector
//	mage cover      Write a coverage profile to bin/coverage.out
//	mage lint       Run golangci-lint
//	mage clean      Remove build artifacts
//	mage install    Install clusterstore to GOPATH/bin
//	mage stats      Print Go lines of code per package
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "clusterstore"
	binaryDir  = "bin"
	cmdDir     = "./cmd/clusterstore"
)

// ldflags stamps the binary with the version from VERSION or git.
func ldflags() string {
	v := os.Getenv("VERSION")
	if v == "" {
		out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
		if err != nil {
			out = "dev"
		}
		v = strings.TrimSpace(out)
	}
	return "-X main.version=" + v
}

// Build compiles the clusterstore binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
