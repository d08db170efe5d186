// Package cli defines the norte command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/northhybrid/norte/internal/app"
	"github.com/northhybrid/norte/internal/config"
	"github.com/northhybrid/norte/internal/report"
	"github.com/northhybrid/norte/internal/store"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "norte",
		Short: "Norte is the coaching assistant of NORTH Hybrid Club",
	}

	// A local .env is convenient in development. Existing env vars win.
	_ = godotenv.Load()

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newReportCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, Telegram webhook and background services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newReportCommand(logger *slog.Logger) *cobra.Command {
	var period string
	command := &cobra.Command{
		Use:   "report <telegram_id>",
		Short: "Print a training report for one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			sqlStore, err := store.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer sqlStore.Close()
			if err := sqlStore.AutoMigrate(cmd.Context()); err != nil {
				return err
			}

			reports := report.NewService(sqlStore, logger)
			var result report.Report
			switch period {
			case "weekly":
				result, err = reports.Weekly(cmd.Context(), args[0])
			case "monthly":
				result, err = reports.Monthly(cmd.Context(), args[0])
			default:
				return fmt.Errorf("unknown period %q (use weekly or monthly)", period)
			}
			if err != nil {
				return err
			}
			cmd.Println(result.Summary)
			return nil
		},
	}
	command.Flags().StringVar(&period, "period", "weekly", "report period: weekly or monthly")
	return command
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
