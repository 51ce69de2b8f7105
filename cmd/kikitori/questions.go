package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/at-ishikawa/kikitori/internal/questionset"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newQuestionsCommand() *cobra.Command {
	questionsCommand := &cobra.Command{
		Use:   "questions",
		Short: "Manage comprehension questions of transcripts",
	}
	questionsCommand.AddCommand(
		newQuestionsAddCommand(),
		newQuestionsImportCommand(),
		newQuestionsListCommand(),
		newQuestionsUpdateCommand(),
		newQuestionsDeleteCommand(),
	)
	return questionsCommand
}

func newQuestionsAddCommand() *cobra.Command {
	var (
		question        questionset.Question
		level           LevelFlag
		segmentPosition int
	)

	command := &cobra.Command{
		Use:   "add <transcript id>",
		Short: "Add a question to a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcriptID, err := parseID(args[0])
			if err != nil {
				return err
			}
			question.JLPTLevel = level.String()
			if cmd.Flags().Changed("segment") {
				question.SegmentPosition = &segmentPosition
			}

			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				transcript, err := getTranscript(ctx, svc.store, transcriptID)
				if err != nil {
					return err
				}
				file := questionset.File{
					TranscriptID: transcriptID,
					Questions:    []questionset.Question{question},
				}
				inputs, err := file.QuestionInputs(transcript)
				if err != nil {
					return err
				}
				id, err := svc.store.AddQuestion(ctx, inputs[0])
				if err != nil {
					return fmt.Errorf("store.AddQuestion(%d) > %w", transcriptID, err)
				}
				_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "added question %d to transcript %d\n", id, transcriptID)
				return nil
			})
		},
	}

	flags := command.Flags()
	flags.StringVar(&question.Question, "text", "", "Question text")
	flags.StringArrayVar(&question.Options, "option", nil, "Answer option. Repeat for each option")
	flags.StringVar(&question.Answer, "answer", "", "Correct option")
	flags.StringVar(&question.Explanation, "explanation", "", "Explanation of the answer")
	flags.StringVar(&question.Type, "type", content.DefaultQuestionType, "Question type")
	flags.Var(&level, "level", fmt.Sprintf("JLPT level. Possible values are %v", content.Levels))
	flags.IntVar(&segmentPosition, "segment", 0, "Position of the segment the question is about")
	_ = command.MarkFlagRequired("text")
	_ = command.MarkFlagRequired("answer")
	return command
}

func newQuestionsImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <question set file>",
		Short: "Add every question of a YAML question set in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := questionset.Load(args[0])
			if err != nil {
				return fmt.Errorf("questionset.Load(%s) > %w", args[0], err)
			}

			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				transcript, err := getTranscript(ctx, svc.store, file.TranscriptID)
				if err != nil {
					return err
				}
				inputs, err := file.QuestionInputs(transcript)
				if err != nil {
					return err
				}
				ids, err := svc.store.AddQuestionsBatch(ctx, transcript.ID, inputs)
				if err != nil {
					return fmt.Errorf("store.AddQuestionsBatch(%d) > %w", transcript.ID, err)
				}
				_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "imported %d questions to transcript %d\n", len(ids), transcript.ID)
				return nil
			})
		},
	}
}

func newQuestionsListCommand() *cobra.Command {
	var level LevelFlag

	command := &cobra.Command{
		Use:   "list <transcript id>",
		Short: "List the questions of a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcriptID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				questions, err := svc.store.GetQuestionsByTranscript(ctx, transcriptID, level.Level())
				if err != nil {
					return fmt.Errorf("store.GetQuestionsByTranscript(%d) > %w", transcriptID, err)
				}
				if len(questions) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no questions")
					return nil
				}
				printQuestions(cmd.OutOrStdout(), questions)
				return nil
			})
		},
	}
	command.Flags().Var(&level, "level", "Only list questions of this JLPT level")
	return command
}

func newQuestionsUpdateCommand() *cobra.Command {
	var (
		text        string
		options     []string
		answer      string
		explanation string
		level       LevelFlag
	)

	command := &cobra.Command{
		Use:   "update <question id>",
		Short: "Change fields of a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var update content.QuestionUpdate
			flags := cmd.Flags()
			if flags.Changed("text") {
				update.Text = &text
			}
			if flags.Changed("option") {
				update.Options = options
			}
			if flags.Changed("answer") {
				update.Answer = &answer
			}
			if flags.Changed("explanation") {
				update.Explanation = &explanation
			}
			if flags.Changed("level") {
				l := level.Level()
				update.JLPTLevel = &l
			}

			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				updated, err := svc.store.UpdateQuestion(ctx, id, update)
				if err != nil {
					return fmt.Errorf("store.UpdateQuestion(%d) > %w", id, err)
				}
				if !updated {
					return fmt.Errorf("question %d not found", id)
				}
				_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "updated question %d\n", id)
				return nil
			})
		},
	}

	flags := command.Flags()
	flags.StringVar(&text, "text", "", "Question text")
	flags.StringArrayVar(&options, "option", nil, "Answer option. Repeat for each option")
	flags.StringVar(&answer, "answer", "", "Correct option")
	flags.StringVar(&explanation, "explanation", "", "Explanation of the answer")
	flags.Var(&level, "level", "JLPT level")
	return command
}

func newQuestionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <question id>",
		Short: "Delete a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runWithServices(cmd, func(ctx context.Context, svc *services) error {
				deleted, err := svc.store.DeleteQuestion(ctx, id)
				if err != nil {
					return fmt.Errorf("store.DeleteQuestion(%d) > %w", id, err)
				}
				if !deleted {
					return fmt.Errorf("question %d not found", id)
				}
				_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "deleted question %d\n", id)
				return nil
			})
		},
	}
}

func printQuestions(out io.Writer, questions []content.Question) {
	bold := color.New(color.Bold)
	for i, question := range questions {
		_, _ = bold.Fprintf(out, "Q%d. %s", i+1, question.Text)
		_, _ = fmt.Fprintf(out, " (id: %d", question.ID)
		if question.JLPTLevel != content.LevelUnset {
			_, _ = fmt.Fprintf(out, ", %s", question.JLPTLevel)
		}
		_, _ = fmt.Fprintln(out, ")")
		for _, option := range question.Options {
			marker := " "
			if option == question.Answer {
				marker = "*"
			}
			_, _ = fmt.Fprintf(out, "  %s %s\n", marker, option)
		}
		if explanation := strings.TrimSpace(question.Explanation); explanation != "" {
			_, _ = fmt.Fprintf(out, "  %s\n", color.New(color.Faint).Sprint(explanation))
		}
	}
}
