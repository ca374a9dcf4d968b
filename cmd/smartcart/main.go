// Package main provides the entry point for the smartcart CLI.
package main

import (
	"os"

	"github.com/smartcart/discovery/cmd/smartcart/cmd"
	"github.com/smartcart/discovery/internal/errors"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}
	// Schema failures get a distinct exit code so deploy tooling can tell
	// "bad migration" apart from ordinary command errors.
	if errors.CodeOf(err) == errors.ErrCodeMigrationFailed {
		os.Exit(2)
	}
	os.Exit(1)
}
