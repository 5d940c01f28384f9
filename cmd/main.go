package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xray-profile/app"
	"xray-profile/internal/common"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "xray-profile",
	Short:         "Edit and maintain an Xray client profile",
	Long:          `xray-profile keeps an Xray client document, its geo datasets and its subscriptions in one data directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			return os.Setenv("CONFIG_PATH", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default $CONFIG_PATH or settings.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}

// run builds the application graph and runs fn inside its lifecycle.
// Interrupts cancel the context passed to fn.
func run(cmd *cobra.Command, fn func(context.Context, *app.Application) error) error {
	env := os.Getenv("APP_ENV")
	logger, err := app.NewLogger(env, logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.NewApplication(
		common.WithLogger(logger),
		common.WithEnv(env),
	)
	if err := application.Run(ctx, fn); err != nil {
		logger.Debug("command failed", zap.String("command", cmd.CommandPath()), zap.Error(err))
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
