// Package cmd implements the trickle command line.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/config"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/tui"
	"github.com/surge-downloader/trickle/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// cliState is shared by every subcommand of one invocation.
type cliState struct {
	configPath string
	debugLog   string
	noColor    bool

	settings *config.Settings
}

// runtimeConfig returns the engine settings derived from the loaded user settings.
func (s *cliState) runtimeConfig() *types.RuntimeConfig {
	return types.ConvertRuntimeConfig(s.settings.ToRuntimeConfig())
}

func newRootCmd() *cobra.Command {
	st := &cliState{}

	root := &cobra.Command{
		Use:          "trickle",
		Short:        "A resumable single-file HTTP downloader",
		Long:         `trickle downloads one file over HTTP(S), staging bytes next to the destination so an interrupted transfer resumes where it stopped.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(st.configPath)
			if err != nil {
				return err
			}
			st.settings = settings

			logPath := st.debugLog
			if logPath == "" {
				logPath = settings.General.DebugLogPath
			}
			if logPath != "" {
				if err := utils.EnableDebugLog(logPath); err != nil {
					return err
				}
				utils.Logger().Debug("trickle starting", "version", Version, "build_time", BuildTime, "command", cmd.Name())
			}

			if st.noColor {
				tui.DisableColor()
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return utils.CloseDebugLog()
		},
	}

	root.PersistentFlags().StringVar(&st.configPath, "config", config.GetSettingsPath(), "settings file (JSON or YAML)")
	root.PersistentFlags().StringVar(&st.debugLog, "debug-log", "", "write a debug log to this file")
	root.PersistentFlags().BoolVar(&st.noColor, "no-color", false, "disable colored output")
	root.SetVersionTemplate("trickle version {{.Version}}\n")

	root.AddCommand(newGetCmd(st), newStatusCmd(st), newCancelCmd(st))
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
