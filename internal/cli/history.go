package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/mudclient/internal/archive"
	"github.com/cory-johannsen/mudclient/internal/frontend/render"
)

// NewHistoryCmd creates the history command. Without arguments it lists the
// player's archived sessions; with a session ID it prints that transcript.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show archived session transcripts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := archive.NewPool(ctx, cfg.Archive.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			repo := pool.Transcripts()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				limit, _ := cmd.Flags().GetInt("limit")
				sessions, err := repo.Sessions(ctx, cfg.Session.PlayerID, limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, "no archived sessions")
					return nil
				}
				for _, s := range sessions {
					fmt.Fprintf(out, "%s  %s  %d entries\n", s.ID, s.ClosedAt.Local().Format(time.DateTime), s.EntryCount)
				}
				return nil
			}

			entries, err := repo.Transcript(ctx, args[0])
			if err != nil {
				return err
			}
			r := render.NewRenderer(false, cfg.Session.PlayerID, nil)
			for _, e := range entries {
				fmt.Fprintf(out, "%s %s\n", e.Timestamp.Local().Format(time.TimeOnly), r.Entry(e))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum sessions to list")
	return cmd
}
