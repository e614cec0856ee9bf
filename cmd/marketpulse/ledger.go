package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sawpanic/marketpulse/internal/domain"
	"github.com/sawpanic/marketpulse/internal/persistence"
)

func ledgerCmd(configPath *string) *cobra.Command {
	var from, to, horizon string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List audit ledger rows for a date range",
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

			rows, err := a.store.Ledger.ListRange(cmd.Context(), persistence.TimeRange{
				From: domain.Day(fromDay),
				To:   domain.Day(toDay),
			}, horizon)
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []domain.LedgerRow{}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&horizon, "horizon", "", "optional horizon filter, e.g. 30d")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
