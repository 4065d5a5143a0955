package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"finsync/client/finance"
)

func summaryCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the month's totals and balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireLedger(app); err != nil {
				return err
			}

			s := app.Finance.Summary(month)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(w, "Month\t%s\t\n", s.MonthKey)
			fmt.Fprintf(w, "Income\t%s\t\n", finance.FormatMoney(s.Income, s.Currency))
			fmt.Fprintf(w, "Spent\t%s\t\n", finance.FormatMoney(s.Spent, s.Currency))
			fmt.Fprintf(w, "Saved\t%s\t\n", finance.FormatMoney(s.BucketAdds, s.Currency))
			fmt.Fprintf(w, "Debt payments\t%s\t\n", finance.FormatMoney(s.DebtPayments, s.Currency))
			if s.NeedsConfigured {
				fmt.Fprintf(w, "Planned needs\t%s\t\n", finance.FormatMoney(s.NeedsTotal, s.Currency))
			}
			fmt.Fprintf(w, "Remaining\t%s\t\n", finance.FormatMoney(s.RemainingThisMonth, s.Currency))
			fmt.Fprintln(w, "\t\t")
			fmt.Fprintf(w, "Cash balance\t%s\t\n", finance.FormatMoney(s.CashBalance, s.Currency))
			fmt.Fprintf(w, "Total saved\t%s\t\n", finance.FormatMoney(s.TotalSaved, s.Currency))
			fmt.Fprintf(w, "Debt remaining\t%s\t\n", finance.FormatMoney(s.DebtRemaining, s.Currency))
			fmt.Fprintf(w, "Net position\t%s\t\n", finance.FormatMoney(s.NetPosition, s.Currency))
			if err := w.Flush(); err != nil {
				return err
			}

			if len(s.BucketTotals) > 0 {
				ids := make([]string, 0, len(s.BucketTotals))
				for id := range s.BucketTotals {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				fmt.Println()
				bw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(bw, "BUCKET\tSAVED")
				for _, id := range ids {
					fmt.Fprintf(bw, "%s\t%s\n", id, finance.FormatMoney(s.BucketTotals[id], s.Currency))
				}
				return bw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "YYYY-MM (default: this month)")
	return cmd
}
