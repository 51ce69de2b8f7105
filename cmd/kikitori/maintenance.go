package main

import (
	"context"
	"fmt"
	"io"

	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newBackupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup [path]",
		Short: "Write a copy of the database, to the backup directory when no path is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				written, err := svc.store.Backup(ctx, path)
				if err != nil {
					return fmt.Errorf("store.Backup(%s) > %w", path, err)
				}
				_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "backed up to %s\n", written)
				return nil
			})
		},
	}
}

func newRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <path>",
		Short: "Replace the content of the database with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				snapshot, err := svc.store.Restore(ctx, args[0])
				if err != nil {
					return fmt.Errorf("store.Restore(%s) > %w", args[0], err)
				}
				out := cmd.OutOrStdout()
				_, _ = color.New(color.FgGreen).Fprintf(out, "restored from %s\n", args[0])
				_, _ = fmt.Fprintf(out, "the previous data was saved to %s\n", snapshot)
				return nil
			})
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show counts and the size of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				stats, err := svc.store.Stats(ctx)
				if err != nil {
					return fmt.Errorf("store.Stats() > %w", err)
				}
				printStats(cmd.OutOrStdout(), stats, svc.generator.ModelName())
				return nil
			})
		},
	}
}

func printStats(out io.Writer, stats content.Stats, modelName string) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(out, stats.Path)
	_, _ = fmt.Fprintf(out, "size: %d bytes, modified %s\n", stats.SizeBytes, stats.LastModified.Local().Format(createdAtLayout))
	_, _ = fmt.Fprintf(out, "embedding model: %s\n", modelName)
	_, _ = fmt.Fprintf(out, "transcripts: %d (%d embedded)\n", stats.Transcripts, stats.EmbeddedTranscripts)
	_, _ = fmt.Fprintf(out, "segments: %d (%d embedded)\n", stats.Segments, stats.EmbeddedSegments)
	_, _ = fmt.Fprintf(out, "questions: %d\n", stats.Questions)
	_, _ = fmt.Fprintf(out, "vocabulary: %d\n", stats.Vocabulary)

	_, _ = bold.Fprintln(out, "levels")
	for _, level := range content.Levels {
		_, _ = fmt.Fprintf(out, "  %s: %d transcripts, %d questions\n", level, stats.TranscriptLevels[level], stats.QuestionLevels[level])
	}
	_, _ = fmt.Fprintf(out, "  unset: %d transcripts, %d questions\n", stats.TranscriptLevels[content.LevelUnset], stats.QuestionLevels[content.LevelUnset])
}

func newBackfillCommand() *cobra.Command {
	var limit int

	command := &cobra.Command{
		Use:   "backfill",
		Short: "Embed transcripts and segments stored without an embedding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				result, err := svc.store.BackfillEmbeddings(ctx, limit)
				if err != nil {
					return fmt.Errorf("store.BackfillEmbeddings(%d) > %w", limit, err)
				}
				out := cmd.OutOrStdout()
				_, _ = color.New(color.FgGreen).Fprintf(out, "embedded %d transcripts and %d segments\n", result.Transcripts, result.Segments)
				if result.Degraded > 0 {
					_, _ = color.New(color.FgYellow).Fprintf(out, "%d texts could not be embedded and stay without an embedding\n", result.Degraded)
				}
				return nil
			})
		},
	}
	command.Flags().IntVar(&limit, "limit", 0, "Maximum number of transcripts and of segments to embed. All when 0")
	return command
}
