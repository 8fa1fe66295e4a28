package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/task"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/tui"
	"github.com/surge-downloader/trickle/internal/utils"
)

// errRemoved is returned when another process cancels the download mid-run.
var errRemoved = errors.New("download was removed")

type getOptions struct {
	output       string
	headers      []string
	checksum     string
	acceptedSize int64
	force        bool
	noTUI        bool
	preservePath bool
}

func newGetCmd(st *cliState) *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Download (or resume) a file",
		Long: `get downloads a file from a URL. Bytes are staged in <path>.tmp; running the
same command again after an interruption resumes from the staged length.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), cmd.OutOrStdout(), st, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "destination file or directory (default: settings download dir)")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, `request header "Key: Value" (repeatable)`)
	f.StringVar(&opts.checksum, "checksum", "", "expected checksum, algo:hex or bare hex")
	f.Int64Var(&opts.acceptedSize, "accepted-size", -1, "treat an existing destination of exactly this size as done")
	f.BoolVarP(&opts.force, "force", "f", false, "overwrite an existing destination")
	f.BoolVar(&opts.noTUI, "no-tui", false, "print plain progress lines instead of the progress view")
	f.BoolVar(&opts.preservePath, "preserve-path", false, "mirror the URL's host and directories under the output directory")
	return cmd
}

func runGet(ctx context.Context, out io.Writer, st *cliState, opts *getOptions, rawurl string) error {
	dest, err := resolveDestination(rawurl, opts.output, st.settings.General.DefaultDownloadDir, opts.preservePath)
	if err != nil {
		return err
	}
	headers, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}

	taskOpts := []task.Option{
		task.WithRuntime(st.runtimeConfig()),
		task.WithHeaders(headers),
		task.WithLogger(utils.Logger()),
	}
	if opts.checksum != "" {
		taskOpts = append(taskOpts, task.WithChecksum(opts.checksum))
	}
	if opts.acceptedSize >= 0 {
		taskOpts = append(taskOpts, task.WithAcceptedSize(opts.acceptedSize))
	}

	t, err := task.New(ctx, rawurl, dest, taskOpts...)
	if err != nil {
		return err
	}
	if t.State() == types.StateCompleted {
		_, _ = fmt.Fprintf(out, "Already downloaded: %s\n", dest)
		return nil
	}

	overwrite := opts.force || st.settings.General.OverwriteExisting
	if err := t.Start(ctx, overwrite); err != nil {
		if errors.Is(err, types.ErrFileExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}

	finished := make(chan struct{})
	defer close(finished)
	go stopOnSignal(t, finished)

	var outcome any
	if opts.noTUI || !isTerminal(out) {
		outcome = consumeHeadless(out, t.Events(), time.Now)
	} else {
		outcome, err = runProgressView(ctx, out, t, dest)
		if err != nil {
			return err
		}
	}
	return reportOutcome(out, outcome, dest)
}

// stopOnSignal pauses t on SIGINT/SIGTERM so the staged bytes survive.
func stopOnSignal(t *task.Task, finished <-chan struct{}) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		t.Stop()
	case <-finished:
	}
}

func runProgressView(ctx context.Context, out io.Writer, t *task.Task, dest string) (any, error) {
	m := tui.New(t.Filename(), dest, t.Events(), t.Stop)
	p := tea.NewProgram(m, tea.WithOutput(out), tea.WithContext(ctx))

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) && !errors.Is(err, tea.ErrInterrupted) {
		t.Stop()
		return nil, fmt.Errorf("progress view: %w", err)
	}

	if fm, ok := final.(tui.Model); ok && fm.Outcome() != nil {
		return fm.Outcome(), nil
	}
	// Forced quit: settle the run and take its terminal event from the feed
	t.Stop()
	return lastTerminal(t.Events()), nil
}

func lastTerminal(feed <-chan any) any {
	var last any
	for msg := range feed {
		if events.IsTerminal(msg) {
			last = msg
		}
	}
	return last
}

// consumeHeadless prints the feed as plain lines, progress at most once a
// second, and returns the terminal message.
func consumeHeadless(w io.Writer, feed <-chan any, now func() time.Time) any {
	var (
		outcome   any
		lastPrint time.Time
	)
	for msg := range feed {
		switch m := msg.(type) {
		case events.DownloadStartedMsg:
			_, _ = fmt.Fprintf(w, "Started: %s [%s]\n", m.Filename, shortID(m.DownloadID))
			if m.ResumeOffset > 0 {
				_, _ = fmt.Fprintf(w, "Resuming at %s\n", utils.ConvertBytesToHumanReadable(m.ResumeOffset))
			}
			if m.Total > 0 && !m.SupportsRange {
				_, _ = fmt.Fprintln(w, "Server does not support ranges; an interruption restarts from zero")
			}

		case events.ProgressMsg:
			ts := now()
			if !lastPrint.IsZero() && ts.Sub(lastPrint) < time.Second {
				continue
			}
			lastPrint = ts
			_, _ = fmt.Fprintln(w, progressLine(m.Update))

		default:
			if events.IsTerminal(msg) {
				outcome = msg
			}
		}
	}
	return outcome
}

func progressLine(u types.ProgressUpdate) string {
	total := "?"
	pct := ""
	if u.TotalSize > 0 {
		total = utils.ConvertBytesToHumanReadable(u.TotalSize)
	}
	if p := u.ProgressPercent(); p >= 0 {
		pct = fmt.Sprintf(" (%.1f%%)", p)
	}
	return fmt.Sprintf("  %s / %s%s  %s  ETA %s",
		utils.ConvertBytesToHumanReadable(u.ReceivedBytes), total, pct,
		utils.FormatSpeed(u.SpeedBytesPerSec),
		utils.FormatETA(u.RemainingSeconds()))
}

func reportOutcome(w io.Writer, outcome any, dest string) error {
	switch m := outcome.(type) {
	case events.DownloadCompleteMsg:
		line := fmt.Sprintf("Completed: %s (%s in %s)", dest,
			utils.ConvertBytesToHumanReadable(m.Total), m.Elapsed.Round(time.Millisecond))
		if m.ContentType != "" {
			line += " [" + m.ContentType + "]"
		}
		_, _ = fmt.Fprintln(w, line)
		return nil
	case events.DownloadPausedMsg:
		_, _ = fmt.Fprintf(w, "Paused: %s staged. Run the same command to resume.\n",
			utils.ConvertBytesToHumanReadable(m.Downloaded))
		return nil
	case events.DownloadErrorMsg:
		return m.Err
	case events.DownloadRemovedMsg:
		return errRemoved
	default:
		return errors.New("download ended without a result")
	}
}

// resolveDestination picks the file path for rawurl. output may name a file,
// an existing directory, or a directory with a trailing separator; when empty
// defaultDir is used.
func resolveDestination(rawurl, output, defaultDir string, preservePath bool) (string, error) {
	name := utils.FilenameFromURL(rawurl)
	if name == "" {
		name = utils.DefaultFilename
	}

	dir := ""
	switch {
	case output == "":
		dir = defaultDir
	case strings.HasSuffix(output, "/") || strings.HasSuffix(output, string(filepath.Separator)):
		dir = output
	default:
		if fi, err := os.Stat(output); err == nil && fi.IsDir() {
			dir = output
		} else {
			return output, nil
		}
	}

	if preservePath {
		sub, err := utils.ExtractURLPath(rawurl)
		if err != nil {
			return "", fmt.Errorf("invalid url %q: %w", rawurl, err)
		}
		dir = filepath.Join(dir, sub)
	}
	return filepath.Join(dir, name), nil
}

// parseHeaders turns "Key: Value" flags into a header set.
func parseHeaders(raw []string) (http.Header, error) {
	h := make(http.Header)
	for _, line := range raw {
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q: want \"Key: Value\"", line)
		}
		h.Add(key, strings.TrimSpace(value))
	}
	return h, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// isTerminal reports whether w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
