package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/zulandar/uranai/internal/config"
	"github.com/zulandar/uranai/internal/eligibility"
	"github.com/zulandar/uranai/internal/history"
	"github.com/zulandar/uranai/internal/store"
)

// localEnv wires the session collaborators straight to the database for the
// terminal commands.
type localEnv struct {
	cfg     *config.Config
	store   *store.Store
	gate    *eligibility.Gate
	history *history.Reader
}

func openLocal(configPath string) (*localEnv, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	st, err := store.New(gormDB)
	if err != nil {
		return nil, err
	}
	gate, err := eligibility.NewGate(eligibility.GateOpts{
		Store:         st,
		ResetSchedule: cfg.Tarot.ResetSchedule,
	})
	if err != nil {
		return nil, err
	}
	reader, err := history.NewReader(history.ReaderOpts{
		Store:      st,
		PerPage:    cfg.History.PerPage,
		MaxPerPage: cfg.History.MaxPerPage,
	})
	if err != nil {
		return nil, err
	}
	return &localEnv{cfg: cfg, store: st, gate: gate, history: reader}, nil
}

// prompter asks questions on the command's output and reads answers one
// line at a time from its input.
type prompter struct {
	out     io.Writer
	scanner *bufio.Scanner
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{out: cmd.OutOrStdout(), scanner: bufio.NewScanner(cmd.InOrStdin())}
}

// ask prints question and returns the trimmed answer. It returns
// io.ErrUnexpectedEOF when input runs out.
func (p *prompter) ask(question string) (string, error) {
	fmt.Fprintf(p.out, "%s ", question)
	if !p.scanner.Scan() {
		fmt.Fprintln(p.out)
		if err := p.scanner.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// choose asks until the answer names one of options, by value or by its
// 1-based position. allowBlank accepts an empty answer and returns "".
func (p *prompter) choose(question string, options []string, allowBlank bool) (string, error) {
	for i, o := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, o)
	}
	for {
		answer, err := p.ask(question)
		if err != nil {
			return "", err
		}
		if answer == "" && allowBlank {
			return "", nil
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		for _, o := range options {
			if strings.EqualFold(answer, o) {
				return o, nil
			}
		}
		fmt.Fprintf(p.out, "Please choose 1-%d.\n", len(options))
	}
}

// number asks until the answer is an integer in [lo, hi].
func (p *prompter) number(question string, lo, hi int) (int, error) {
	for {
		answer, err := p.ask(question)
		if err != nil {
			return 0, err
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= lo && n <= hi {
			return n, nil
		}
		fmt.Fprintf(p.out, "Please enter a number from %d to %d.\n", lo, hi)
	}
}

// truncate shortens s to n runes, adding "..." when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
