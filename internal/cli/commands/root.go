package commands

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rowmodel/rowmodel/internal/cli/ui"
	"github.com/rowmodel/rowmodel/internal/orm/model"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "rowmodel",
		Short: "Inspect and edit records through validated entity models",
		Long: color.CyanString(`rowmodel - entity models over relational rows

rowmodel loads entity definitions (schema, relations, hidden fields) and
reads or writes records through them: rows are validated on the way in and
flattened to foreign keys on the way out.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: rowmodel.yaml, searched upwards)")
	flags.BoolVar(&opts.memory, "memory", false, "Use in-memory services instead of the database")
	flags.StringVar(&opts.seedPath, "seed", "", "JSON file of rows to load before running ({\"entity\": [rows]})")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewCheckCommand(opts))
	rootCmd.AddCommand(NewGetCommand(opts))
	rootCmd.AddCommand(NewListCommand(opts))
	rootCmd.AddCommand(NewSaveCommand(opts))
	rootCmd.AddCommand(NewDeleteCommand(opts))
	rootCmd.AddCommand(NewDBCommand(opts))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the rowmodel version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("rowmodel version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		return err
	}
	return nil
}

// reportError prints err the way the terminal should see it
func reportError(w io.Writer, err error) {
	var display *displayError
	if errors.As(err, &display) {
		fmt.Fprint(w, display.message)
		return
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		lines := make([]string, len(verr.Issues))
		for i, issue := range verr.Issues {
			lines[i] = issue.Path + ": " + issue.Message
		}
		fmt.Fprint(w, ui.ValidationFailedError(verr.Entity, lines, color.NoColor))
		return
	}

	if errors.Is(err, model.ErrConfiguration) || strings.HasPrefix(err.Error(), "database.") {
		fmt.Fprint(w, ui.ConfigError(err.Error(), color.NoColor))
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	errorColor.Fprintf(w, "Error: %v\n", err)
}
