package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/engine/staging"
	"github.com/surge-downloader/trickle/internal/engine/task"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

type statusOptions struct {
	output       string
	preservePath bool
	probe        bool
}

func newStatusCmd(st *cliState) *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status <url>",
		Short: "Show how much of a download is staged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), st, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "destination file or directory used with get")
	cmd.Flags().BoolVar(&opts.preservePath, "preserve-path", false, "the destination was chosen with --preserve-path")
	cmd.Flags().BoolVar(&opts.probe, "probe", false, "ask the server for the total size")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, st *cliState, opts *statusOptions, rawurl string) error {
	dest, err := resolveDestination(rawurl, opts.output, st.settings.General.DefaultDownloadDir, opts.preservePath)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Path:     %s\n", dest)

	if size, exists, err := staging.New(dest).DestinationSize(); err != nil {
		return err
	} else if exists {
		_, _ = fmt.Fprintf(out, "State:    %s\n", types.StateCompleted)
		_, _ = fmt.Fprintf(out, "Size:     %s\n", utils.ConvertBytesToHumanReadable(size))
		return nil
	}

	t, err := task.New(ctx, rawurl, dest, task.WithRuntime(st.runtimeConfig()), task.WithLogger(utils.Logger()))
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "State:    %s\n", t.State())
	_, _ = fmt.Fprintf(out, "Received: %s\n", utils.ConvertBytesToHumanReadable(t.GetReceivedSize()))

	if !opts.probe {
		return nil
	}
	total, err := t.GetTotalSize(ctx)
	if err != nil {
		return err
	}
	p := types.ProgressUpdate{ReceivedBytes: t.GetReceivedSize(), TotalSize: total}
	line := fmt.Sprintf("Total:    %s", utils.ConvertBytesToHumanReadable(total))
	if pct := p.ProgressPercent(); pct >= 0 {
		line += fmt.Sprintf(" (%.1f%%)", pct)
	}
	_, _ = fmt.Fprintln(out, line)
	if !t.SupportsRange() {
		_, _ = fmt.Fprintln(out, "Range:    not supported, a resume restarts from zero")
	}
	return nil
}
