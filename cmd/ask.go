package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/pipeline"
)

var (
	askUser        string
	askSession     string
	askInteractive bool
	askJSON        bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Answer a research question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ask"); err != nil {
			return err
		}
		ctx := cmd.Context()

		ctrl, st, err := initController(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		query := model.Query{
			Text:   strings.Join(args, " "),
			UserID: askUser,
		}

		out, err := ctrl.Run(ctx, query, pipeline.Options{
			Interactive: askInteractive,
			SessionID:   askSession,
		})
		if err != nil {
			return eris.Wrap(err, "ask")
		}

		// In interactive mode the pipeline may pause with a question.
		for out.Status == model.RunStatusAwaiting {
			fmt.Fprintf(os.Stderr, "\n%s\n> ", out.Clarification)
			answer, readErr := readLine(os.Stdin)
			if readErr != nil {
				return eris.Wrap(readErr, "ask: read clarification")
			}
			out, err = ctrl.Resume(ctx, out.RunID, answer)
			if err != nil {
				return eris.Wrap(err, "ask: resume")
			}
		}

		if askJSON {
			return printJSON(os.Stdout, out)
		}
		printOutcome(os.Stdout, out)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "", "user ID for session personalization")
	askCmd.Flags().StringVar(&askSession, "session", "", "session ID to continue")
	askCmd.Flags().BoolVarP(&askInteractive, "interactive", "i", false, "allow the pipeline to ask a clarifying question")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full outcome as JSON")
	rootCmd.AddCommand(askCmd)
}

func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", eris.New("input closed")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// printOutcome renders a completed run for the terminal.
func printOutcome(w io.Writer, out *pipeline.Outcome) {
	fmt.Fprintln(w, out.Report.Body)

	if len(out.Report.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, c := range out.Report.Citations {
			fmt.Fprintf(w, "  [%d] %s (credibility %.0f)\n", c.Index, c.SourceURL, c.Credibility)
		}
	}

	if t := out.Report.Comparison; t.Populated() {
		fmt.Fprintln(w, "\nComparison:")
		fmt.Fprintf(w, "  %s\n", strings.Join(t.Headers, " | "))
		for _, row := range t.Rows {
			fmt.Fprintf(w, "  %s\n", strings.Join(row, " | "))
		}
	}

	if len(out.Conflicts) > 0 {
		fmt.Fprintln(w, "\nSource disagreements:")
		for _, c := range out.Conflicts {
			fmt.Fprintf(w, "  %s: recommended %s (%s)\n", c.Attribute, c.Recommended.String(), c.Rationale)
		}
	}

	if len(out.Report.FollowUps) > 0 {
		fmt.Fprintln(w, "\nFollow-up questions:")
		for _, f := range out.Report.FollowUps {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}

	q := out.Quality
	fmt.Fprintf(w, "\nQuality: %s (%.1f/100)\n", q.Grade, q.Overall)
	for _, issue := range q.Issues {
		fmt.Fprintf(w, "  issue: %s\n", issue)
	}
	for _, rec := range q.Recommendations {
		fmt.Fprintf(w, "  recommendation: %s\n", rec)
	}
	fmt.Fprintf(w, "\nRun %s, %d tokens, $%.4f\n", out.RunID, out.TotalTokens, out.TotalCost)
}
