// Command memsql-loader submits and runs distributed file-to-database load
// jobs. Grounded on tysonthomas9-beads/cmd/bd/main.go's cobra entry point.
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
