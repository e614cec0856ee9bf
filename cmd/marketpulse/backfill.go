package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/marketpulse/internal/domain"
)

func backfillCmd(configPath *string) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Recompute decision snapshots over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDay, err := parseDay(from)
			if err != nil {
				return err
			}
			toDay, err := parseDay(to)
			if err != nil {
				return err
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.orch.Backfill(cmd.Context(), domain.Day(fromDay), domain.Day(toDay)); err != nil {
				return err
			}
			log.Info().Str("from", from).Str("to", to).Msg("backfill complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD (inclusive)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
