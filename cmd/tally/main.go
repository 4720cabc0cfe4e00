// Package main is the entrypoint of the tally binary.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rafaeljc/tally/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
