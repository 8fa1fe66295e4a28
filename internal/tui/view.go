package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

func (m Model) View() string {
	title := CardTitleStyle.Render(truncateString(m.Filename, MaxFilenameWidth))

	percent := m.update.ProgressPercent()
	var bar string
	if percent < 0 {
		bar = m.bar.ViewAs(0) + "   ?"
	} else {
		bar = m.bar.ViewAs(percent / 100)
	}

	card := CardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		bar,
		CardStatsStyle.Render(m.statsLine()),
		m.statusLine(),
	))

	help := ""
	if !m.done {
		help = HelpStyle.Render("q: pause (resume later with the same command)")
	}
	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left, card, help)) + "\n"
}

func (m Model) statsLine() string {
	total := "?"
	if m.update.TotalSize > 0 {
		total = utils.ConvertBytesToHumanReadable(m.update.TotalSize)
	}
	parts := []string{
		fmt.Sprintf("%s / %s", utils.ConvertBytesToHumanReadable(m.update.ReceivedBytes), total),
		utils.FormatSpeed(m.update.SpeedBytesPerSec),
		"ETA " + utils.FormatETA(m.update.RemainingSeconds()),
	}
	if m.elapsed > 0 {
		parts = append(parts, m.elapsed.Round(time.Second).String())
	}
	return strings.Join(parts, " • ")
}

func (m Model) statusLine() string {
	switch o := m.outcome.(type) {
	case events.DownloadCompleteMsg:
		s := "Complete: " + m.DestPath
		if o.ContentType != "" {
			s += " (" + o.ContentType + ")"
		}
		return StatusCompleteStyle.Render(s)
	case events.DownloadPausedMsg:
		return StatusPausedStyle.Render("Paused at " + utils.ConvertBytesToHumanReadable(o.Downloaded))
	case events.DownloadErrorMsg:
		return StatusErrorStyle.Render(fmt.Sprintf("Error: %v", o.Err))
	case events.DownloadRemovedMsg:
		return StatusPausedStyle.Render("Removed")
	}

	switch {
	case m.stopping:
		return StatusPausedStyle.Render("Pausing...")
	case m.update.State == types.StateRunning && m.resumeOffset > 0:
		return StatusRunningStyle.Render("Resumed at " + utils.ConvertBytesToHumanReadable(m.resumeOffset))
	case m.update.State == types.StateRunning && m.update.TotalSize > 0 && !m.supportsRange:
		return StatusRunningStyle.Render("Downloading (server cannot resume)")
	default:
		return StatusRunningStyle.Render("Downloading")
	}
}

// truncateString shortens s to at most n runes, marking the cut with "…".
func truncateString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
