package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/at-ishikawa/kikitori/internal/search"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSearchCommand() *cobra.Command {
	var (
		limit  int
		level  LevelFlag
		strict bool
	)

	command := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the segments most similar in meaning to the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := search.Query{
				Text:           strings.Join(args, " "),
				Limit:          limit,
				JLPTLevel:      level.Level(),
				RejectDegraded: strict,
			}
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				matches, err := svc.search.SearchSimilarContent(ctx, query)
				if err != nil {
					if errors.Is(err, search.ErrDegradedQuery) {
						return fmt.Errorf("the query could not be embedded by %s: %w", svc.generator.ModelName(), err)
					}
					return fmt.Errorf("search.SearchSimilarContent(%s) > %w", query.Text, err)
				}

				out := cmd.OutOrStdout()
				if len(matches) == 0 {
					_, _ = fmt.Fprintln(out, "no matches")
					return nil
				}
				bold := color.New(color.Bold)
				for i, match := range matches {
					title := match.Title
					if title == "" {
						title = match.SourceURL
					}
					_, _ = bold.Fprintf(out, "%d. %.4f", i+1, match.Similarity)
					_, _ = fmt.Fprintf(out, " #%d %s", match.TranscriptID, title)
					if match.JLPTLevel != content.LevelUnset {
						_, _ = fmt.Fprintf(out, " (%s)", match.JLPTLevel)
					}
					_, _ = fmt.Fprintf(out, "\n   %s\n", match.Text)
				}
				return nil
			})
		},
	}

	flags := command.Flags()
	flags.IntVar(&limit, "limit", 0, "Maximum number of matches. The configured default is used when 0")
	flags.Var(&level, "level", "Only search transcripts of this JLPT level")
	flags.BoolVar(&strict, "strict", false, "Fail instead of ranking when the query cannot be embedded")
	return command
}
