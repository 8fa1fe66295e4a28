package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/engine/staging"
	"github.com/surge-downloader/trickle/internal/engine/task"
	"github.com/surge-downloader/trickle/internal/utils"
)

type cancelOptions struct {
	output       string
	preservePath bool
}

func newCancelCmd(st *cliState) *cobra.Command {
	opts := &cancelOptions{}

	cmd := &cobra.Command{
		Use:   "cancel <url>",
		Short: "Delete a download's staged bytes and destination file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd.Context(), cmd.OutOrStdout(), st, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "destination file or directory used with get")
	cmd.Flags().BoolVar(&opts.preservePath, "preserve-path", false, "the destination was chosen with --preserve-path")
	return cmd
}

func runCancel(ctx context.Context, out io.Writer, st *cliState, opts *cancelOptions, rawurl string) error {
	dest, err := resolveDestination(rawurl, opts.output, st.settings.General.DefaultDownloadDir, opts.preservePath)
	if err != nil {
		return err
	}

	// Refuse while another process is writing the staging file
	store := staging.New(dest)
	if err := store.Lock(); err != nil {
		if errors.Is(err, staging.ErrLocked) {
			return fmt.Errorf("%s is being downloaded by another process", dest)
		}
		return err
	}
	if err := store.Unlock(); err != nil {
		return err
	}

	t, err := task.New(ctx, rawurl, dest, task.WithRuntime(st.runtimeConfig()), task.WithLogger(utils.Logger()))
	if err != nil {
		return err
	}
	if err := t.Cancel(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Removed: %s\n", dest)
	return nil
}
