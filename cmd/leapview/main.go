// Package main is the entry point of the leapview CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapview/internal/cli"

	// Register the database adapters.
	_ "github.com/leapstack-labs/leapview/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapview/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapview/pkg/adapters/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
