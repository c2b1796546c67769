package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	fmerrors "fastmd/internal/errors"

	"github.com/spf13/cobra"
)

const drainTimeout = 10 * time.Second

// runServe serves stdio until end of input, a signal, or a shutdown request.
// End of input and signals drain queued work first; shutdown does not.
func (c *cli) runServe(cmd *cobra.Command) error {
	rt, err := newRuntime(c.cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- rt.dispatcher.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		rt.logger.Info("Signal received, draining")
		err = nil
	}

	if errors.Is(err, fmerrors.ErrShutdownRequested) {
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if closeErr := rt.close(drainCtx); closeErr != nil {
		rt.logger.Warn("Shutdown incomplete: %v", closeErr)
	}
	return err
}
