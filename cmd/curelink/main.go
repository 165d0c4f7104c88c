package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/abhishek0908/curelink/internal/app"
	"github.com/abhishek0908/curelink/internal/auth"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "curelink",
		Short:   "CureLink assistant chat client",
		Long:    "Terminal client for the CureLink assistant: a live chat session with paginated history.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run()
		},
	}

	root.AddCommand(newLoginCmd(), newVerifyCmd(), newLogoutCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and store the session credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			log := app.NewLogger(cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client := auth.NewClient(log, cfg.BaseURL, 0)
			creds, err := client.Login(ctx, args[0])
			if err != nil {
				return err
			}
			if err := auth.Save(cfg.ConfigDir, creds); err != nil {
				return err
			}

			fmt.Printf("Logged in as %s\n", creds.User.UserEmail)
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <email> <otp>",
		Short: "Complete login with a one-time code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			log := app.NewLogger(cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client := auth.NewClient(log, cfg.BaseURL, 0)
			creds, err := client.Verify(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if err := auth.Save(cfg.ConfigDir, creds); err != nil {
				return err
			}

			fmt.Printf("Verified %s\n", creds.User.UserEmail)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			if err := auth.Clear(cfg.ConfigDir); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}
