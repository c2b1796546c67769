package main

import (
	"fmt"

	"fastmd/internal/sidecar"

	"github.com/spf13/cobra"
)

func newDigestCommand(c *cli) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "digest <path>...",
		Short: "Print the dependency digest of the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := sidecar.CollectFileRecords(cmd.Context(), args, sidecar.DefaultStatConcurrency)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if verbose {
				for _, r := range records {
					fmt.Fprintf(out, "%s %s\n", gray(fmt.Sprintf("%10d %13d", r.Size, r.Mtime)), r.Path)
				}
			}
			fmt.Fprintln(out, sidecar.ComputeDigest(records))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List size and mtime of each file")
	return cmd
}
