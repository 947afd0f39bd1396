// Command aof is the operator-facing CLI over the orchestration fabric:
// daemon lifecycle, task transitions, roster drift checks, and
// notification rule testing.
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, fail(err.Error()))
		os.Exit(2)
	}
}
