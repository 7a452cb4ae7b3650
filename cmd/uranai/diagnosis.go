package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/zulandar/uranai/internal/config"
	"github.com/zulandar/uranai/internal/diagnosis"
	"github.com/zulandar/uranai/internal/flow"
)

func newDiagnosisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "diagnosis",
		Aliases: []string{"diag"},
		Short:   "Instinct diagnosis commands",
	}

	cmd.AddCommand(newDiagnosisQuestionsCmd())
	cmd.AddCommand(newDiagnosisTakeCmd())
	cmd.AddCommand(newDiagnosisResultCmd())
	return cmd
}

func newDiagnosisQuestionsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Print the questionnaire",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := loadQuestionnaire(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Questionnaire %s\n\n", q.Version)
			for _, qu := range q.Questions {
				fmt.Fprintf(out, "%2d. %s\n", qu.ID, qu.Text)
			}
			fmt.Fprintf(out, "\nAnswer each from %d (disagree) to %d (agree).\n", diagnosis.MinScore, diagnosis.MaxScore)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to uranai config file")
	return cmd
}

// loadQuestionnaire reads the questionnaire named by the config, falling
// back to the embedded one when the config file does not exist.
func loadQuestionnaire(configPath string) (*diagnosis.Questionnaire, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return diagnosis.DefaultQuestionnaire()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return diagnosis.LoadQuestionnaire(cfg.Diagnosis.Questionnaire)
}

func newDiagnosisTakeCmd() *cobra.Command {
	var (
		configPath string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take the diagnosis interactively",
		Long:  "Asks the twelve questions and your gender, then scores and saves the result. The diagnosis can be taken once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnosisTake(cmd, configPath, user)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to uranai config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runDiagnosisTake(cmd *cobra.Command, configPath, user string) error {
	env, err := openLocal(configPath)
	if err != nil {
		return err
	}
	q, err := diagnosis.LoadQuestionnaire(env.cfg.Diagnosis.Questionnaire)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sess, err := diagnosis.Start(ctx, diagnosis.Opts{
		ID:            uuid.NewString(),
		UserID:        user,
		Questionnaire: q,
		Store:         env.store,
		Gate:          env.gate,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if view := sess.View(); view.ReadOnly {
		fmt.Fprintln(out, "You have already completed the diagnosis.")
		printLevels(out, view.Version, view.Gender, *view.Levels, view.FinishedAt, env.cfg.Location())
		return nil
	}

	if err := sess.Begin(); err != nil {
		return err
	}
	p := newPrompter(cmd)
	for {
		view := sess.View()
		switch view.Step {
		case diagnosis.StepQuestion:
			fmt.Fprintf(out, "\n[%d/%d] %s\n", view.Number, view.Total, view.Question.Text)
			score, err := p.number(fmt.Sprintf("Your answer (%d-%d):", diagnosis.MinScore, diagnosis.MaxScore), diagnosis.MinScore, diagnosis.MaxScore)
			if err != nil {
				return err
			}
			if err := sess.Answer(view.Question.ID, score); err != nil {
				return err
			}
		case diagnosis.StepGender:
			fmt.Fprintf(out, "\n[%d/%d] Gender\n", view.Number, view.Total)
			gender, err := p.choose("Your answer:", view.Genders, false)
			if err != nil {
				return err
			}
			if err := sess.SetGender(gender); err != nil {
				return err
			}
		case diagnosis.StepResult:
			fmt.Fprintln(out)
			printLevels(out, view.Version, view.Gender, *view.Levels, view.FinishedAt, env.cfg.Location())
			return nil
		default:
			return fmt.Errorf("diagnosis: unexpected step %s", view.Step)
		}
		if err := sess.Next(ctx); err != nil {
			if view := sess.View(); errors.Is(err, flow.ErrCompleted) && view.ReadOnly {
				fmt.Fprintln(out, "\nThe diagnosis was completed in another session meanwhile.")
				printLevels(out, view.Version, view.Gender, *view.Levels, view.FinishedAt, env.cfg.Location())
				return nil
			}
			return err
		}
	}
}

func newDiagnosisResultCmd() *cobra.Command {
	var (
		configPath string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "result",
		Short: "Show a stored diagnosis result",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLocal(configPath)
			if err != nil {
				return err
			}
			res, err := env.store.DiagnosisResult(cmd.Context(), user)
			if err != nil {
				return err
			}
			if res == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No diagnosis for %s yet.\n", user)
				return nil
			}
			printLevels(cmd.OutOrStdout(), res.QuestionnaireVersion, res.Gender, diagnosis.LevelsOf(res), res.CompletedAt, env.cfg.Location())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to uranai config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printLevels(out io.Writer, version, gender string, levels diagnosis.Levels, at time.Time, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AXIS\tLEVEL")
	for _, axis := range diagnosis.Axes {
		lv := levels.Get(axis)
		fmt.Fprintf(w, "%s\t%d %s\n", axis, lv, levelBar(lv))
	}
	w.Flush()
	fmt.Fprintf(out, "Gender: %s  Questionnaire: %s", gender, version)
	if !at.IsZero() {
		fmt.Fprintf(out, "  Completed: %s", at.In(loc).Format("2006-01-02"))
	}
	fmt.Fprintln(out)
}

func levelBar(lv int) string {
	bar := make([]byte, 0, diagnosis.LevelThresholds+1)
	for i := 1; i <= diagnosis.LevelThresholds+1; i++ {
		if i <= lv {
			bar = append(bar, '#')
		} else {
			bar = append(bar, '.')
		}
	}
	return string(bar)
}
