// Package main provides the entry point for the buildload CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/buildload/cmd/buildload/commands"
	"github.com/Sumatoshi-tech/buildload/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
