package main

import (
	"context"
	"fmt"
	"io"

	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/at-ishikawa/kikitori/internal/vocabulary"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newVocabularyCommand() *cobra.Command {
	vocabularyCommand := &cobra.Command{
		Use:   "vocabulary",
		Short: "Extract and list the vocabulary of transcripts",
	}

	var dryRun bool
	extractCommand := &cobra.Command{
		Use:   "extract <transcript id>",
		Short: "Extract content words of a transcript and store them as vocabulary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			extractor, err := vocabulary.NewExtractor()
			if err != nil {
				return fmt.Errorf("vocabulary.NewExtractor() > %w", err)
			}

			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				transcript, err := getTranscript(ctx, svc.store, id)
				if err != nil {
					return err
				}
				items := extractor.Extract(transcript.Content)
				if dryRun {
					printVocabulary(cmd.OutOrStdout(), items)
					return nil
				}
				ids, err := svc.store.AddVocabulary(ctx, id, items)
				if err != nil {
					return fmt.Errorf("store.AddVocabulary(%d) > %w", id, err)
				}
				_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "stored %d words for transcript %d\n", len(ids), id)
				return nil
			})
		},
	}
	extractCommand.Flags().BoolVar(&dryRun, "dry-run", false, "Print the extracted words without storing them")

	listCommand := &cobra.Command{
		Use:   "list <transcript id>",
		Short: "List the vocabulary of a transcript, most frequent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				items, err := svc.store.GetVocabularyByTranscript(ctx, id)
				if err != nil {
					return fmt.Errorf("store.GetVocabularyByTranscript(%d) > %w", id, err)
				}
				printVocabulary(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}

	vocabularyCommand.AddCommand(extractCommand, listCommand)
	return vocabularyCommand
}

func printVocabulary(out io.Writer, items []content.VocabularyItem) {
	if len(items) == 0 {
		_, _ = fmt.Fprintln(out, "no vocabulary")
		return
	}
	bold := color.New(color.Bold)
	for _, item := range items {
		_, _ = bold.Fprint(out, item.Word)
		if item.Reading != "" && item.Reading != item.Word {
			_, _ = fmt.Fprintf(out, " (%s)", item.Reading)
		}
		_, _ = fmt.Fprintf(out, " %s x%d", item.PartOfSpeech, item.Frequency)
		if item.Meaning != "" {
			_, _ = fmt.Fprintf(out, ": %s", item.Meaning)
		}
		_, _ = fmt.Fprintln(out)
	}
}
