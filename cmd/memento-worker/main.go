// Package main provides the memento worker CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/memento-ai/memento/cmd/memento-worker/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
