package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/report"
	"github.com/sells-group/intake-cli/internal/store"
)

var (
	sessionsStatus string
	sessionsDeal   string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted intake sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(ctx, store.SessionFilter{
			Status: model.SessionStatus(sessionsStatus),
			DealID: sessionsDeal,
			Limit:  sessionsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list sessions")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Print the report for one persisted session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get session %s", args[0])
		}
		pending, err := st.LoadPendingClarifications(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load pending clarifications")
		}

		cmd.Print(report.Format(snap, pending))
		return nil
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsStatus, "status", "", "filter by status (running, awaiting_clarifications, complete, error)")
	sessionsCmd.Flags().StringVar(&sessionsDeal, "deal", "", "filter by deal id")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "max sessions to return")
	sessionsCmd.AddCommand(sessionShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
