// Command waifu2x upscales images with the waifu2x networks: one-off
// batches, a watched folder (optionally as an OS service) and model
// management.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"go_waifu2x/core"
)

func main() {
	// .env is optional; only report files that exist but fail to parse.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}
	os.Exit(run(os.Args[1:]))
}

// run executes the command tree and maps the outcome to an exit code.
func run(args []string) int {
	a := newApp()
	root := newRootCommand(a)
	root.SetArgs(args)

	err := root.Execute()
	a.close()
	if err == nil {
		return core.ExitCodeSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil && !errors.Is(exitErr.err, errInterrupted) {
			printError(root.ErrOrStderr(), exitErr.err)
		}
		return exitErr.code
	}

	printError(root.ErrOrStderr(), err)
	return core.ExitCodeForError(err)
}
