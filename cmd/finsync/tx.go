package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finsync/client/finance"
	"finsync/client/session"
)

type txFlags struct {
	date     string
	note     string
	payment  string
	category string
	needWant string
	target   string
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "List and record transactions",
	}
	cmd.AddCommand(txListCmd())
	cmd.AddCommand(txAddCmd("add-income", "Record income", addIncome))
	cmd.AddCommand(txAddCmd("add-expense", "Record an expense", addExpense))
	cmd.AddCommand(txAddCmd("add-bucket", "Move money into a savings bucket", addBucket))
	cmd.AddCommand(txAddCmd("add-debt-payment", "Pay down a debt", addDebtPayment))
	cmd.AddCommand(txDeleteCmd())
	return cmd
}

func txListCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireLedger(app); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "ID\tDATE\tTYPE\tAMOUNT\tCATEGORY\tNOTE")
			for _, tx := range app.Finance.Document().Transactions() {
				date, _ := tx["date"].(string)
				if month != "" && !strings.HasPrefix(date, month) {
					continue
				}
				id, _ := tx["id"].(string)
				kind, _ := tx["type"].(string)
				label, _ := tx["category"].(string)
				if catID, ok := tx.CategoryID(); ok {
					label = fmt.Sprintf("%s (#%d)", label, catID)
				}
				note, _ := tx["note"].(string)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					id, date, kind, finance.Amount(tx["amount"]).StringFixed(2), label, note)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "only show YYYY-MM")
	return cmd
}

type addFunc func(cmd *cobra.Command, app *session.App, amount decimal.Decimal, f txFlags) (string, error)

func txAddCmd(use, short string, add addFunc) *cobra.Command {
	var f txFlags
	cmd := &cobra.Command{
		Use:   use + " <amount>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}

			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireLedger(app); err != nil {
				return err
			}

			id, err := add(cmd, app, amount, f)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.date, "date", "", "YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&f.note, "note", "", "free-form note")
	cmd.Flags().StringVar(&f.payment, "payment", "", "payment method")
	switch use {
	case "add-expense":
		cmd.Flags().StringVar(&f.category, "category", "", "category id or name")
		cmd.Flags().StringVar(&f.needWant, "kind", "Need", "Need or Want")
	case "add-bucket":
		cmd.Flags().StringVar(&f.target, "bucket", "", "bucket id")
		_ = cmd.MarkFlagRequired("bucket")
	case "add-debt-payment":
		cmd.Flags().StringVar(&f.target, "debt", "", "debt id")
		_ = cmd.MarkFlagRequired("debt")
	}
	return cmd
}

func addIncome(_ *cobra.Command, app *session.App, amount decimal.Decimal, f txFlags) (string, error) {
	return app.Finance.AddIncome(finance.IncomeInput{
		Date: f.date, Amount: amount, Note: f.note, Payment: f.payment,
	})
}

func addExpense(cmd *cobra.Command, app *session.App, amount decimal.Decimal, f txFlags) (string, error) {
	in := finance.ExpenseInput{
		Date: f.date, Amount: amount, Note: f.note, Payment: f.payment, NeedWant: f.needWant,
	}
	if f.category != "" {
		id, name, err := resolveCategory(cmd, app, f.category)
		if err != nil {
			return "", err
		}
		in.CategoryID, in.CategoryName = id, name
	}
	return app.Finance.AddExpense(in)
}

func addBucket(_ *cobra.Command, app *session.App, amount decimal.Decimal, f txFlags) (string, error) {
	return app.Finance.AddBucketContribution(finance.BucketContributionInput{
		Date: f.date, Amount: amount, BucketID: f.target, Note: f.note, Payment: f.payment,
	})
}

func addDebtPayment(_ *cobra.Command, app *session.App, amount decimal.Decimal, f txFlags) (string, error) {
	return app.Finance.AddDebtPayment(finance.DebtPaymentInput{
		Date: f.date, Amount: amount, DebtID: f.target, Note: f.note, Payment: f.payment,
	})
}

// resolveCategory maps an id or a name to the server's category. Offline,
// the name is kept as a label and the server migrates it on the next pull.
func resolveCategory(cmd *cobra.Command, app *session.App, ref string) (int64, string, error) {
	if !app.Auth.Online() {
		return 0, ref, nil
	}
	cats, err := app.API.ListCategories(cmd.Context())
	if err != nil {
		logger.Warn("Could not list categories; keeping the name as a label", zap.Error(err))
		return 0, ref, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, c := range cats {
			if c.ID == id {
				return c.ID, c.Name, nil
			}
		}
		return 0, "", fmt.Errorf("no category with id %d", id)
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, ref) {
			return c.ID, c.Name, nil
		}
	}
	return 0, ref, nil
}

func txDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireLedger(app); err != nil {
				return err
			}

			if err := app.Finance.DeleteTransaction(args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Println("Deleted", args[0])
			return nil
		},
	}
}
