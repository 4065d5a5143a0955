package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finsync/client/session"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sign-in and sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			o := app.Overview()
			mode := o.Mode
			if mode == "" {
				mode = "undecided"
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "Mode\t%s\n", mode)
			if o.Email != "" {
				fmt.Fprintf(w, "Account\t%s\n", o.Email)
			}
			fmt.Fprintf(w, "Sync\t%s\n", o.Status)
			fmt.Fprintf(w, "Version\t%d\n", o.Version)
			if !o.UpdatedAt.IsZero() {
				fmt.Fprintf(w, "Updated\t%s\n", o.UpdatedAt.Local().Format(time.RFC1123))
			}
			if !o.ExpiresAt.IsZero() {
				fmt.Fprintf(w, "Session expires\t%s\n", o.ExpiresAt.Local().Format(time.RFC1123))
			}
			fmt.Fprintf(w, "Transactions\t%d\n", o.Transactions)
			fmt.Fprintf(w, "Circuit\t%s\n", o.Breaker)
			if o.LastError != nil {
				fmt.Fprintf(w, "Last error\t%v\n", o.LastError)
			}
			return nil
		},
	}
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Replace the local ledger with the cloud copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireOnline(app); err != nil {
				return err
			}

			if err := app.Sync.PullCloud(cmd.Context()); err != nil {
				return fmt.Errorf("pull: %w", err)
			}
			fmt.Printf("Pulled version %d\n", app.Sync.Version())
			return nil
		},
	}
}

func pushCmd() *cobra.Command {
	var retries int
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push the current ledger now",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireOnline(app); err != nil {
				return err
			}
			if err := requireLedger(app); err != nil {
				return err
			}

			app.Sync.Schedule(app.Finance.Document())
			<-app.Close()
			for i := 0; i < retries && app.Sync.Status() == session.StatusError; i++ {
				logger.Info("Retrying rejected push", zap.Int("attempt", i+1), zap.Error(app.Sync.LastError()))
				if err := app.Sync.Retry(); err != nil {
					break
				}
				<-app.Close()
			}
			return reportSync(app)
		},
	}
	cmd.Flags().IntVar(&retries, "retry", 0, "resend a rejected push up to this many times")
	return cmd
}

func forcePushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force-push",
		Short: "Overwrite the cloud copy with the local ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := requireOnline(app); err != nil {
				return err
			}
			if err := requireLedger(app); err != nil {
				return err
			}

			if err := app.Sync.ForceOverwrite(cmd.Context(), app.Finance.Document()); err != nil {
				return fmt.Errorf("force push: %w", err)
			}
			fmt.Printf("Cloud copy overwritten (version %d)\n", app.Sync.Version())
			return nil
		},
	}
}

// reportSync prints the outcome of a flush
func reportSync(app *session.App) error {
	switch app.Sync.Status() {
	case session.StatusSynced:
		fmt.Printf("Synced (version %d)\n", app.Sync.Version())
		return nil
	case session.StatusOffline:
		if app.Auth.Online() {
			fmt.Println("Server unreachable; changes are saved and will be sent after the next successful pull")
			return nil
		}
		return fmt.Errorf("signed out: the server rejected the session")
	default:
		return fmt.Errorf("sync failed: %v", app.Sync.LastError())
	}
}
