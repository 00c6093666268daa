// Package main is a command-line explorer for Palworld .sav files: it prints
// headers, dumps the decoded property tree, runs JSONPath queries over it and
// applies entity schemas to it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
