package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/marketpulse/internal/domain"
)

func refreshCmd(configPath *string) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute and commit the decision snapshot for one date",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf := domain.Day(time.Now().UTC())
			if date != "" {
				parsed, err := parseDay(date)
				if err != nil {
					return err
				}
				asOf = domain.Day(parsed)
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			snapshot, err := a.orch.Refresh(cmd.Context(), asOf)
			if err != nil {
				return err
			}

			if snapshot.DegradedReason != nil {
				log.Warn().
					Str("as_of", asOf.Format("2006-01-02")).
					Str("reason", *snapshot.DegradedReason).
					Msg("refresh degraded, nothing committed")
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "as-of date YYYY-MM-DD (default today)")
	return cmd
}
