// Package main is the entry point for the dt binary.
package main

import (
	"os"

	"github.com/erikmunkby/dbt-toolbox/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
