// Package main provides the dbtlineage CLI: lineage hashing helpers, design
// authoring, single-row matching and batch ingestion of result files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
