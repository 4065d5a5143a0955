package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"finsync/client/apiclient"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cat"},
		Short:   "Manage the account's categories",
	}
	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesCreateCmd())
	cmd.AddCommand(categoriesRenameCmd())
	cmd.AddCommand(categoriesDeleteCmd())
	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireOnline(app); err != nil {
				return err
			}

			cats, err := app.API.ListCategories(cmd.Context())
			if err != nil {
				return err
			}
			if len(cats) == 0 {
				fmt.Println("No categories")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "ID\tNAME\tKIND\tORDER")
			for _, c := range cats {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", c.ID, c.Name, c.Kind, c.SortOrder)
			}
			return nil
		},
	}
}

func categoriesCreateCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireOnline(app); err != nil {
				return err
			}

			c, err := app.API.CreateCategory(cmd.Context(), args[0], kind)
			if err != nil {
				return err
			}
			fmt.Printf("Created %q (#%d)\n", c.Name, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "expense", "expense or income")
	return cmd
}

func categoriesRenameCmd() *cobra.Command {
	var kind string
	var order int
	cmd := &cobra.Command{
		Use:   "update <id> [new-name]",
		Short: "Rename a category or change its kind or order",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCategoryID(args[0])
			if err != nil {
				return err
			}
			var patch apiclient.CategoryPatch
			if len(args) == 2 {
				patch.Name = &args[1]
			}
			if cmd.Flags().Changed("kind") {
				patch.Kind = &kind
			}
			if cmd.Flags().Changed("order") {
				patch.SortOrder = &order
			}

			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireOnline(app); err != nil {
				return err
			}

			c, err := app.API.UpdateCategory(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			fmt.Printf("Updated #%d: %s (%s)\n", c.ID, c.Name, c.Kind)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "expense or income")
	cmd.Flags().IntVar(&order, "order", 0, "sort order")
	return cmd
}

func categoriesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category; its expenses move to Other",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCategoryID(args[0])
			if err != nil {
				return err
			}

			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireOnline(app); err != nil {
				return err
			}

			res, err := app.API.DeleteCategory(cmd.Context(), id)
			if err != nil {
				return err
			}
			// The server rewrote the ledger; fetch its copy before anything is pushed.
			if err := app.Sync.PullCloud(cmd.Context()); err != nil {
				return fmt.Errorf("deleted, but refreshing the ledger failed: %w", err)
			}
			fmt.Printf("Deleted #%d; %d transaction(s) moved to #%d\n", id, res.Reassigned, res.ReassignedTo)
			return nil
		},
	}
}

func parseCategoryID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid category id %q", s)
	}
	return id, nil
}
