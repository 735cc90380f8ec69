// Command crmsync mirrors CRM sales into the local database and serves the
// contract workflow built on top of them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mkoziy/contratos/crmsync/internal/config"
	"github.com/mkoziy/contratos/crmsync/internal/logger"
)

var (
	configPath string

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "crmsync",
	Short: "Synchronize CRM sales and manage contracts",
	Long: `crmsync keeps a local mirror of CRM sales, hides unwanted sales without
deleting them, and drives contracts drafted from those sales.

Configuration is read from crmsync.yaml (current directory or /etc/crmsync),
a .env file and CRMSYNC_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		log, err = logger.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		cmd.SetContext(logger.WithLogger(cmd.Context(), log))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
