package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := newRoot().Command()
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		switch err.(type) {
		case usageError:
			cmd.PrintErrln("")
			cmd.PrintErrln(cmd.UsageString())
		case runFailedError:
			// the summary has already been printed
		default:
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
