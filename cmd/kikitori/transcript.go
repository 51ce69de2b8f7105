package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/at-ishikawa/kikitori/internal/worksheet"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const createdAtLayout = "2006-01-02 15:04"

func newIngestCommand() *cobra.Command {
	var (
		sourceURL string
		title     string
		videoID   string
		language  string
		level     LevelFlag
		tags      []string
	)

	command := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Store a transcript read from a file or standard input",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				id, err := svc.store.StoreTranscript(ctx, content.TranscriptInput{
					SourceURL: sourceURL,
					Content:   text,
					VideoID:   videoID,
					Title:     title,
					JLPTLevel: level.Level(),
					Language:  language,
					Tags:      tags,
				})
				if err != nil {
					return fmt.Errorf("store.StoreTranscript(%s) > %w", sourceURL, err)
				}

				transcript, err := getTranscript(ctx, svc.store, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = color.New(color.FgGreen).Fprintf(out, "stored transcript %d", id)
				_, _ = fmt.Fprintf(out, " with %d segments\n", len(transcript.Segments))
				return nil
			})
		},
	}

	flags := command.Flags()
	flags.StringVar(&sourceURL, "source", "", "Source URL of the transcript")
	flags.StringVar(&title, "title", "", "Title of the transcript")
	flags.StringVar(&videoID, "video-id", "", "Video id of the source")
	flags.StringVar(&language, "language", content.DefaultLanguage, "Language code of the transcript")
	flags.Var(&level, "level", fmt.Sprintf("JLPT level. Possible values are %v", content.Levels))
	flags.StringSliceVar(&tags, "tags", nil, "Comma separated tags")
	_ = command.MarkFlagRequired("source")
	return command
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <transcript id>",
		Short: "Show a transcript with its segments and questions",
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
				printTranscript(cmd.OutOrStdout(), transcript)
				if len(questions) > 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout())
					printQuestions(cmd.OutOrStdout(), questions)
				}
				return nil
			})
		},
	}
}

func printTranscript(out io.Writer, transcript *content.Transcript) {
	bold := color.New(color.Bold)
	title := transcript.Title
	if title == "" {
		title = transcript.SourceURL
	}
	_, _ = bold.Fprintf(out, "#%d %s\n", transcript.ID, title)
	_, _ = fmt.Fprintf(out, "source: %s\n", transcript.SourceURL)
	if transcript.VideoID != "" {
		_, _ = fmt.Fprintf(out, "video: %s\n", transcript.VideoID)
	}
	if transcript.JLPTLevel != content.LevelUnset {
		_, _ = fmt.Fprintf(out, "level: %s\n", transcript.JLPTLevel)
	}
	if len(transcript.Tags) > 0 {
		_, _ = fmt.Fprintf(out, "tags: %s\n", strings.Join(transcript.Tags, ", "))
	}
	_, _ = fmt.Fprintf(out, "created: %s\n", transcript.CreatedAt.Local().Format(createdAtLayout))

	_, _ = fmt.Fprintln(out)
	for _, segment := range transcript.Segments {
		timestamp := worksheet.FormatTimestamp(segment.StartTime)
		if timestamp != "" {
			timestamp = color.CyanString("[%s] ", timestamp)
		}
		_, _ = fmt.Fprintf(out, "%3d. %s%s\n", segment.Position, timestamp, segment.Text)
	}
}

func printSummaries(out io.Writer, summaries []content.TranscriptSummary) {
	if len(summaries) == 0 {
		_, _ = fmt.Fprintln(out, "no transcripts")
		return
	}
	bold := color.New(color.Bold)
	for _, summary := range summaries {
		title := summary.Title
		if title == "" {
			title = summary.SourceURL
		}
		level := summary.JLPTLevel.String()
		if level == "" {
			level = "--"
		}
		_, _ = bold.Fprintf(out, "#%d %s", summary.ID, title)
		_, _ = fmt.Fprintf(out, " (%s, %d segments, %s)\n", level, summary.SegmentCount, summary.CreatedAt.Local().Format(createdAtLayout))
		_, _ = fmt.Fprintf(out, "    %s\n", summary.Preview)
	}
}

func newListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	command := &cobra.Command{
		Use:   "list",
		Short: "List transcripts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				summaries, err := svc.store.ListTranscripts(ctx, limit, offset)
				if err != nil {
					return fmt.Errorf("store.ListTranscripts() > %w", err)
				}
				printSummaries(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
	command.Flags().IntVar(&limit, "limit", 100, "Maximum number of transcripts to list")
	command.Flags().IntVar(&offset, "offset", 0, "Number of transcripts to skip")
	return command
}

func newGrepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "grep <text>",
		Short: "List transcripts whose content contains the text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				summaries, err := svc.store.SearchTranscripts(ctx, args[0])
				if err != nil {
					return fmt.Errorf("store.SearchTranscripts(%s) > %w", args[0], err)
				}
				printSummaries(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <transcript id>",
		Short: "Delete a transcript with its segments, questions and vocabulary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				deleted, err := svc.store.DeleteTranscript(ctx, id)
				if err != nil {
					return fmt.Errorf("store.DeleteTranscript(%d) > %w", id, err)
				}
				if !deleted {
					return fmt.Errorf("transcript %d not found", id)
				}
				_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "deleted transcript %d\n", id)
				return nil
			})
		},
	}
}

func newLevelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "level <transcript id> [level]",
		Short: "Set the JLPT level of a transcript, or clear it when no level is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var level content.Level
			if len(args) == 2 {
				level, err = content.ParseLevel(args[1])
				if err != nil {
					return err
				}
			}
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				updated, err := svc.store.SetTranscriptLevel(ctx, id, level)
				if err != nil {
					return fmt.Errorf("store.SetTranscriptLevel(%d, %s) > %w", id, level, err)
				}
				if !updated {
					return fmt.Errorf("transcript %d not found", id)
				}
				if level == content.LevelUnset {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cleared the level of transcript %d\n", id)
					return nil
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "set the level of transcript %d to %s\n", id, level)
				return nil
			})
		},
	}
}
