package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/progress"
	"github.com/sells-group/intake-cli/internal/report"
	"github.com/sells-group/intake-cli/internal/session"
)

var (
	ingestDealID     string
	ingestResolvedBy string
	ingestNoPrompt   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Run one intake session over local document files",
	Long:  "Extracts every given document, prompts on the terminal for any blocking clarifications, and prints the final report. Paths are resolved against documents.root.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Analyzer.WarmCache(ctx)

		docs := make([]model.DocumentRef, len(args))
		for i, path := range args {
			docs[i] = model.DocumentRef{
				ID:       fmt.Sprintf("doc-%d", i+1),
				Filename: filepath.Base(path),
				URI:      path,
			}
		}

		snap, err := env.Manager.Start(ctx, ingestDealID, docs)
		if err != nil {
			return eris.Wrap(err, "start session")
		}
		id := snap.ID

		sub, err := env.Manager.Subscribe(id)
		if err != nil {
			return err
		}
		defer sub.Cancel()

		stdin := bufio.NewScanner(os.Stdin)
		if err := followSession(ctx, env, id, sub, stdin, ingestNoPrompt); err != nil {
			return err
		}

		final, err := env.Manager.Get(id)
		if err != nil {
			return err
		}
		pending, err := env.Manager.Pending(id)
		if err != nil {
			return err
		}

		fmt.Print(report.Format(final, pending))
		if final.Status == model.StatusError {
			return eris.Errorf("session failed: %s", final.Error)
		}
		return nil
	},
}

func printEvent(ev model.ProgressEvent) {
	switch ev.Kind {
	case model.EventFileStart:
		fmt.Printf("[%d/%d] %s\n", ev.FileIndex+1, ev.TotalFiles, ev.Message)
	case model.EventFileProgress:
		fmt.Printf("  %-10s %3.0f%%  %s\n", ev.Stage, ev.Progress*100, ev.Message)
	case model.EventFileComplete:
		fmt.Printf("  done: %s\n", ev.Message)
	case model.EventFileError:
		fmt.Printf("  FAILED: %s\n", ev.Message)
	case model.EventAwaiting:
		fmt.Printf("\nclarifications needed: %s\n", ev.Message)
	case model.EventError:
		fmt.Printf("\nsession error: %s\n", ev.Message)
	}
}

// followSession streams progress events for a session, resolving clarification
// pauses from stdin, until the session reaches a terminal state or noPrompt
// stops it at the first pause.
func followSession(ctx context.Context, env *pipelineEnv, id string, sub *progress.Subscription, stdin *bufio.Scanner, noPrompt bool) error {
	// The session may have paused before the subscription attached; that
	// pause event went to nobody, so check the snapshot once instead of
	// waiting for an event that will never come.
	cur, err := env.Manager.Get(id)
	if err != nil {
		return err
	}
	if cur.Status == model.StatusAwaitingClarifications {
		fmt.Println("\nclarifications needed")
		if noPrompt {
			return nil
		}
		if err := resolveAndContinue(ctx, env, id, stdin); err != nil {
			return err
		}
	}

	for ev := range sub.C {
		printEvent(ev)

		if ev.Kind == model.EventAwaiting {
			if noPrompt {
				return nil
			}
			if err := resolveAndContinue(ctx, env, id, stdin); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveAndContinue prompts for every pending clarification, then resumes the
// session. Losing the resume race to another client is not an error.
func resolveAndContinue(ctx context.Context, env *pipelineEnv, sessionID string, stdin *bufio.Scanner) error {
	if err := resolvePending(ctx, env, sessionID, stdin); err != nil {
		return err
	}
	if _, err := env.Manager.Continue(ctx, sessionID); err != nil && !eris.Is(err, session.ErrAlreadyRunning) {
		return eris.Wrap(err, "continue session")
	}
	return nil
}

// resolvePending walks the session's pending clarifications in priority order
// and reads a resolution for each from the terminal.
func resolvePending(ctx context.Context, env *pipelineEnv, sessionID string, stdin *bufio.Scanner) error {
	pending, err := env.Manager.Pending(sessionID)
	if err != nil {
		return err
	}

	for _, c := range pending {
		label := c.FieldLabel
		if label == "" {
			label = c.FieldPath
		}
		fmt.Printf("\n[P%d] %s (%s)\n", c.Priority, label, c.Type)
		fmt.Printf("  document:  %s\n", c.DocumentID)
		fmt.Printf("  extracted: %v (confidence %.2f)\n", c.ExtractedValue, c.ExtractedConfidence)
		if c.BenchmarkRange != nil {
			fmt.Printf("  expected:  %g to %g\n", c.BenchmarkRange.Low, c.BenchmarkRange.High)
		}
		for _, v := range c.SuggestedValues {
			fmt.Printf("  suggested: %v\n", v)
		}
		fmt.Print("  value (enter keeps extracted): ")

		if !stdin.Scan() {
			return eris.New("ingest: stdin closed before clarifications were resolved")
		}
		value := parseResolutionValue(stdin.Text(), c.ExtractedValue)

		if err := env.Manager.Resolve(ctx, sessionID, c.ID, value, ingestResolvedBy, ""); err != nil {
			return eris.Wrapf(err, "resolve %s", c.FieldPath)
		}
	}
	return nil
}

// parseResolutionValue interprets terminal input: blank keeps the extracted
// value, numeric input becomes a float, anything else stays a string.
func parseResolutionValue(input string, extracted any) any {
	input = strings.TrimSpace(input)
	if input == "" {
		return extracted
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(input, ",", ""), 64); err == nil {
		return f
	}
	return input
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDealID, "deal", "", "deal identifier (required)")
	ingestCmd.Flags().StringVar(&ingestResolvedBy, "resolved-by", "cli", "recorded resolver for clarifications")
	ingestCmd.Flags().BoolVar(&ingestNoPrompt, "no-prompt", false, "exit at the clarification pause instead of prompting")
	_ = ingestCmd.MarkFlagRequired("deal")
	rootCmd.AddCommand(ingestCmd)
}
