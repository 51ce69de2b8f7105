package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	provider   ProviderFlag
)

func main() {
	rootCommand := newRootCommand()
	if err := rootCommand.Execute(); err != nil {
		if _, fprintfErr := fmt.Fprintf(os.Stderr, "failed to execute a command: %+v\n", err); fprintfErr != nil {
			panic(fmt.Errorf("failed to output an error: %w. Reason: %w", err, fprintfErr))
		}
		os.Exit(1)
	}
	os.Exit(0)
}

func newRootCommand() *cobra.Command {
	var debugMode bool
	rootCommand := &cobra.Command{
		Use:           "kikitori",
		Short:         "Store Japanese listening transcripts and search them by meaning",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(debugMode)
			return nil
		},
	}
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug mode")
	flags.Var(&provider, "provider", fmt.Sprintf("Embedding provider overriding the configuration. Possible values are %v", allProviders))

	rootCommand.AddCommand(
		newIngestCommand(),
		newShowCommand(),
		newListCommand(),
		newGrepCommand(),
		newDeleteCommand(),
		newLevelCommand(),
		newQuestionsCommand(),
		newSearchCommand(),
		newVocabularyCommand(),
		newExportCommand(),
		newBackupCommand(),
		newRestoreCommand(),
		newStatsCommand(),
		newBackfillCommand(),
	)
	return rootCommand
}

// setupLogger configures the default logger based on debug mode
func setupLogger(debugMode bool) {
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		})),
	)
}
