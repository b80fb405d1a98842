// Package cmd defines and implements the CLI commands for the trafficpeek executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/trafficpeek/internal/api"
	"github.com/JakeFAU/trafficpeek/internal/app"
	"github.com/JakeFAU/trafficpeek/internal/config"
	"github.com/JakeFAU/trafficpeek/internal/logging"
)

// runtimeKeyType is the key for storing loaded settings in the command context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// services is the slice of the application the commands use.
type services struct {
	resolver api.Resolver
	ready    api.ReadyFunc
	close    func(context.Context) error
}

// newServices is the application factory. It's a variable so tests can
// swap in a stub resolver.
var newServices = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*services, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &services{resolver: a.Resolver(), ready: a.Ready, close: a.Close}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "trafficpeek",
		Short: "Estimate website traffic from provider data, rank lists, or a model.",
		Long: `trafficpeek resolves a domain to an estimated traffic profile. It asks a
paid analytics provider first, falls back to a public rank list, and finally
to a closed-form estimate, so every valid domain gets an answer.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLookupCmd())
	cmd.AddCommand(newSnapshotCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	if ctx == nil {
		return nil, errors.New("command context missing")
	}
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
