package main

import (
	"errors"
	"fmt"
	"os"

	fmerrors "fastmd/internal/errors"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// The host asked us to stop; exit without draining or writing more.
		if errors.Is(err, fmerrors.ErrShutdownRequested) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, failure(err.Error()))
		os.Exit(1)
	}
}
