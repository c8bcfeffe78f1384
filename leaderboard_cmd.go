package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Billy-Davies-2/pricing-game/internal/config"
	"github.com/Billy-Davies-2/pricing-game/internal/leaderboard"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
)

func newLeaderboardCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the current ranking from the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger.InitWith(cfg.LogLevel, cfg.LogFormat)

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			teams, err := store.ListTeams(cmd.Context())
			if err != nil {
				return fmt.Errorf("list teams: %w", err)
			}
			ranked := leaderboard.Rank(teams)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ranked)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tTEAM\tROUNDS\tTOTAL PROFIT")
			for _, e := range ranked {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f\n", e.Rank, e.Name, e.RoundsPlayed, e.TotalProfit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
