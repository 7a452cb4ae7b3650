package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/zulandar/uranai/internal/eligibility"
	"github.com/zulandar/uranai/internal/flow"
	"github.com/zulandar/uranai/internal/models"
	"github.com/zulandar/uranai/internal/tarot"
)

func newTarotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tarot",
		Short: "Daily tarot commands",
	}

	cmd.AddCommand(newTarotDrawCmd())
	cmd.AddCommand(newTarotHistoryCmd())
	cmd.AddCommand(newTarotShowCmd())
	return cmd
}

func newTarotDrawCmd() *cobra.Command {
	var (
		configPath string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Draw today's card interactively",
		Long:  "Walks through the daily draw in the terminal: who it is for, your mood, one of three face-down cards, then an optional reflection.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarotDraw(cmd, configPath, user)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to uranai config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id to draw for (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runTarotDraw(cmd *cobra.Command, configPath, user string) error {
	env, err := openLocal(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	revealed := make(chan struct{}, 1)
	sess, decision, err := tarot.Start(ctx, tarot.Opts{
		ID:          uuid.NewString(),
		UserID:      user,
		Recorder:    env.store,
		History:     env.history,
		Gate:        env.gate,
		Location:    env.cfg.Location(),
		RevealDelay: env.cfg.Tarot.RevealDelay,
		OnStep: func(_, step string) {
			if step == string(tarot.StepResult) {
				select {
				case revealed <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		return err
	}
	if sess == nil {
		printBlocked(out, decision, env.cfg.Location())
		return nil
	}
	defer sess.Close()

	p := newPrompter(cmd)

	target, err := p.choose("Who is this reading for?", []string{string(tarot.TargetSelf), string(tarot.TargetOther)}, false)
	if err != nil {
		return err
	}
	if err := sess.Advance(ctx, tarot.Input{Target: tarot.Target(target)}); err != nil {
		return err
	}

	mood, err := p.choose("How are you feeling right now?", []string{
		string(tarot.MoodSunny), string(tarot.MoodCloudy), string(tarot.MoodRainy), string(tarot.MoodVeryRainy),
	}, false)
	if err != nil {
		return err
	}
	if err := sess.Advance(ctx, tarot.Input{Mood: tarot.Mood(mood)}); err != nil {
		return err
	}
	fmt.Fprintln(out, "Shuffling the deck...")
	if err := sess.Advance(ctx, tarot.Input{}); err != nil {
		return err
	}

	pick, err := p.number(fmt.Sprintf("Three cards lie face down. Pick one (1-%d):", tarot.PoolSize), 1, tarot.PoolSize)
	if err != nil {
		return err
	}
	idx := pick - 1
	if err := sess.Advance(ctx, tarot.Input{CardIndex: &idx}); err != nil {
		return err
	}

	fmt.Fprintln(out, "Turning the card over...")
	select {
	case <-revealed:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(env.cfg.Tarot.RevealDelay + 5*time.Second):
		return fmt.Errorf("tarot: the card was never revealed")
	}

	view := sess.View()
	printDrawn(out, view)

	feeling, err := p.choose("How does this reading make you feel? (blank to finish without a note)", []string{
		string(tarot.FeelingGood), string(tarot.FeelingSoso), string(tarot.FeelingBad),
	}, true)
	if err != nil {
		return err
	}
	if feeling == "" {
		err = sess.Complete(ctx)
	} else if err = sess.Advance(ctx, tarot.Input{}); err == nil {
		err = finalizeWithComment(ctx, p, sess, tarot.Feeling(feeling))
	}
	if err != nil {
		if view := sess.View(); errors.Is(err, flow.ErrCompleted) && view.DrawnElsewhere {
			fmt.Fprintln(out, "A card was already drawn today in another session; this draw was not saved.")
			if r := view.Existing; r != nil {
				fmt.Fprintf(out, "  %s (%s)\n  %s\n", r.CardName, orientation(r.Reversed), r.Interpretation)
			}
			return nil
		}
		return err
	}

	view = sess.View()
	fmt.Fprintf(out, "Saved reading #%d. See you tomorrow.\n", view.Record.ID)
	return nil
}

// finalizeWithComment asks for a comment until one is accepted.
func finalizeWithComment(ctx context.Context, p *prompter, sess *tarot.Session, feeling tarot.Feeling) error {
	for {
		comment, err := p.ask("Leave a short comment:")
		if err != nil {
			return err
		}
		err = sess.Finalize(ctx, feeling, comment)
		if err == nil {
			return nil
		}
		if !flow.IsKind(err, flow.KindValidation) {
			return err
		}
		fmt.Fprintln(p.out, flow.Message(err))
	}
}

func printDrawn(out io.Writer, view tarot.View) {
	if view.Drawn == nil {
		return
	}
	fmt.Fprintf(out, "\n  %s (%s)\n  %s\n\n", view.Drawn.Card.Name, orientation(view.Drawn.Reversed), view.Interpretation)
}

func printBlocked(out io.Writer, decision eligibility.Decision, loc *time.Location) {
	fmt.Fprintln(out, "You have already drawn a card today.")
	if r := decision.Reading; r != nil {
		fmt.Fprintf(out, "  %s (%s)\n  %s\n", r.CardName, orientation(r.Reversed), r.Interpretation)
	}
	if decision.NextAllowedAt != nil {
		fmt.Fprintf(out, "Next draw available %s\n", decision.NextAllowedAt.In(loc).Format("2006-01-02 15:04 MST"))
	}
}

func orientation(reversed bool) string {
	if reversed {
		return "reversed"
	}
	return "upright"
}

func newTarotHistoryCmd() *cobra.Command {
	var (
		configPath string
		user       string
		page       int
		perPage    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past readings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarotHistory(cmd, configPath, user, page, perPage)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to uranai config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id (required)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "readings per page (default from config)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runTarotHistory(cmd *cobra.Command, configPath, user string, page, perPage int) error {
	env, err := openLocal(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	p, err := env.history.List(cmd.Context(), user, page, perPage)
	if err != nil {
		return err
	}
	if len(p.Records) == 0 {
		fmt.Fprintln(out, "No readings yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDAY\tCARD\tFOR\tMOOD\tFEELING\tCOMMENT")
	for _, r := range p.Records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.LocalDay, cardLabel(&r), r.Target, r.Mood, dash(r.Feeling), dash(truncate(r.Comment, 30)))
	}
	w.Flush()
	fmt.Fprintf(out, "Page %d of %d (%d readings)\n", p.CurrentPage, p.TotalPages, p.Total)
	return nil
}

func newTarotShowCmd() *cobra.Command {
	var (
		configPath string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "show <reading-id>",
		Short: "Show one past reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid reading id %q", args[0])
			}
			return runTarotShow(cmd, configPath, user, uint(id))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to uranai config file")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runTarotShow(cmd *cobra.Command, configPath, user string, id uint) error {
	env, err := openLocal(configPath)
	if err != nil {
		return err
	}
	r, err := env.history.Get(cmd.Context(), user, id)
	if err != nil {
		return err
	}
	printReading(cmd.OutOrStdout(), r, env.cfg.Location())
	return nil
}

func printReading(out io.Writer, r *models.TarotReading, loc *time.Location) {
	fmt.Fprintf(out, "Reading:   #%d\n", r.ID)
	fmt.Fprintf(out, "Drawn:     %s\n", r.CreatedAt.In(loc).Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(out, "Card:      %s\n", cardLabel(r))
	fmt.Fprintf(out, "For:       %s\n", r.Target)
	fmt.Fprintf(out, "Mood:      %s\n", r.Mood)
	fmt.Fprintf(out, "Feeling:   %s\n", dash(r.Feeling))
	fmt.Fprintf(out, "\n%s\n", r.Interpretation)
	if r.Comment != "" {
		fmt.Fprintf(out, "\nComment:\n%s\n", r.Comment)
	}
}

func cardLabel(r *models.TarotReading) string {
	return fmt.Sprintf("%s (%s)", r.CardName, orientation(r.Reversed))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
