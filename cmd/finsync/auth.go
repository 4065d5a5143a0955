package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	var displayName string
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			password, err := readPassword()
			if err != nil {
				return err
			}

			app, closeApp, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp()

			user, err := app.Auth.Register(ctx, args[0], password, displayName)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Printf("Registered and signed in as %s\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "name", "", "display name")
	return cmd
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in; the cloud ledger replaces the local one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			password, err := readPassword()
			if err != nil {
				return err
			}

			app, closeApp, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp()

			user, err := app.Auth.Login(ctx, args[0], password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if err := app.Sync.Hydrate(ctx); err != nil {
				return fmt.Errorf("signed in, but the first pull failed: %w", err)
			}
			fmt.Printf("Signed in as %s (version %d)\n", user.Email, app.Sync.Version())
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and switch to the local ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			<-app.Close()
			app.Auth.Logout(cmd.Context())
			fmt.Println("Signed out")
			return nil
		},
	}
}

func offlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offline",
		Short: "Use a local ledger without an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			app.Auth.UseOffline(cmd.Context())
			fmt.Println("Using the local ledger; nothing will be synced")
			return nil
		},
	}
}

// readPassword takes FINSYNC_PASSWORD or the first line of stdin
func readPassword() (string, error) {
	if p := os.Getenv("FINSYNC_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
