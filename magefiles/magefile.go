//go:build mage

// Tools for building and maintaining nodenet.
package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Vets the module.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Builds the node daemon into bin/.
func Build() error {
	mg.Deps(Vet)
	if err := os.MkdirAll("bin", 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-o", "bin/node", "./node")
}

// Runs all tests.
// Tests are run with -race.
func Test() error {
	_, err := sh.Exec(nil, os.Stdout, os.Stderr, "go", "test", "./...", "-race", "-count=1")
	return err
}

// Runs a short simulation of three nodes on an in-memory bus.
func Sim() error {
	return sh.RunV("go", "run", "./node", "sim", "--nodes", "3", "--pings", "3")
}
