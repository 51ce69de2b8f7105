package main

import (
	"context"
	"fmt"

	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/at-ishikawa/kikitori/internal/worksheet"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newExportCommand() *cobra.Command {
	var (
		outputDirectory string
		generatePDF     bool
	)

	command := &cobra.Command{
		Use:   "export <transcript id>",
		Short: "Write a worksheet of a transcript with its vocabulary and questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				transcript, err := getTranscript(ctx, svc.store, id)
				if err != nil {
					return err
				}
				questions, err := svc.store.GetQuestionsByTranscript(ctx, id, content.LevelUnset)
				if err != nil {
					return fmt.Errorf("store.GetQuestionsByTranscript(%d) > %w", id, err)
				}
				items, err := svc.store.GetVocabularyByTranscript(ctx, id)
				if err != nil {
					return fmt.Errorf("store.GetVocabularyByTranscript(%d) > %w", id, err)
				}

				directory := outputDirectory
				if directory == "" {
					directory = svc.config.Outputs.WorksheetDirectory
				}
				writer := worksheet.NewWriter(directory, svc.config.Outputs.WorksheetTemplate)
				result, err := writer.Write(transcript, questions, items, generatePDF)
				if err != nil {
					return fmt.Errorf("writer.Write(%d) > %w", id, err)
				}

				out := cmd.OutOrStdout()
				_, _ = color.New(color.FgGreen).Fprintf(out, "wrote %s\n", result.MarkdownPath)
				if result.PDFPath != "" {
					_, _ = color.New(color.FgGreen).Fprintf(out, "wrote %s\n", result.PDFPath)
				}
				return nil
			})
		},
	}

	command.Flags().StringVar(&outputDirectory, "output-dir", "", "Directory for the worksheet. The configured directory is used when empty")
	command.Flags().BoolVar(&generatePDF, "pdf", false, "Also convert the worksheet to PDF")
	return command
}
