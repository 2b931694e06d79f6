// Command raggate answers questions over a document corpus behind a
// prompt-injection gate. It runs as an HTTP service (`raggate serve`) or
// answers one-off questions from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/raggate-go/cmd/raggate/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
