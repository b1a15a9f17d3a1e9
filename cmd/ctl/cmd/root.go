package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jpfielding/unmark.go/pkg/logging"
	"github.com/jpfielding/unmark.go/pkg/mark"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unmarkctl",
		Short: "a CLI to remove tiled overlay marks from images",
		Long:  "locates the repeating translucent overlay in each image and reconstructs the pixels beneath it",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")

			var level slog.Level
			levelErr := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
			if levelErr != nil {
				level = slog.LevelInfo
			}

			// stdout carries command output, logs go to stderr or the file
			var w io.Writer = os.Stderr
			json := !term.IsTerminal(int(os.Stderr.Fd()))
			if logFile != "" {
				w = logging.RotatingFile(logFile, 50, 5, 28)
				json = true
			}
			if cmd.Flags().Changed("log-json") {
				json, _ = cmd.Flags().GetBool("log-json")
			}
			slog.SetDefault(logging.Logger(w, json, level))

			if levelErr != nil {
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", levelErr)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewCleanCmd(ctx),
		NewDetectCmd(ctx),
		NewPatternsCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.Bool("log-json", false, "Log as JSON (default when stderr is not a terminal)")
	pf.String("log-file", "", "Write logs to a rotating file instead of stderr")
	pf.String("assets", "", "Directory holding bg_48.png and bg_96.png (default: embedded)")
	return cmd
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), gitsha)
		},
	}
	return cmd
}

// patternStore picks the embedded assets unless --assets names a directory
func patternStore(cmd *cobra.Command) *mark.Store {
	if dir, _ := cmd.Flags().GetString("assets"); dir != "" {
		return mark.DirStore(dir)
	}
	return mark.DefaultStore()
}
