// Command irrigctl is the entry point for the irrigation controller
// firmware core: run the controller, enqueue manual tasks, inspect
// status, and drive the factory-wipe flow from a terminal.
//
// Usage:
//
//	irrigctl run                                   # start the core
//	irrigctl task create --channel 0 --duration-s 300
//	irrigctl status
//	irrigctl wipe request
//	irrigctl wipe confirm --code <code>
package main

import (
	"fmt"
	"os"

	"github.com/greenfield-labs/irrigctl/internal/cli"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
