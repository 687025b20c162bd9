// Package cmd defines and implements the CLI commands for the contentrelay executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/app"
	"github.com/JakeFAU/contentrelay/internal/config"
	"github.com/JakeFAU/contentrelay/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can inject a
// fake browser launcher.
var newApp = func(cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(cfg, logger)
}

// newRootCmd creates and configures the root command. The returned closer
// shuts down whatever application the command built, including when the
// subcommand failed.
func newRootCmd() (*cobra.Command, func(context.Context) error) {
	var (
		cfgFile string
		built   *app.App
	)

	cmd := &cobra.Command{
		Use:   "contentrelay",
		Short: "Fetches transcripts, web pages and social posts from a residential endpoint.",
		Long: `contentrelay fetches third-party content (video transcripts, article pages and
social posts) through a pooled headless browser and external tools, returning
every outcome as a uniform success or classified-error result.`,
		SilenceUsage: true,

		// Builds the application once config is known and before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the CONTENTRELAY_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFetchCmd())

	closer := func(ctx context.Context) error {
		if built == nil {
			return nil
		}
		if err := built.Close(ctx); err != nil {
			return fmt.Errorf("close application: %w", err)
		}
		return nil
	}
	return cmd, closer
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// closeTimeout bounds application teardown after the command returns.
const closeTimeout = 15 * time.Second

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command; the application is torn down on every exit path.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the root command under ctx and always closes the application,
// using a detached context so a cancelled ctx still allows cleanup.
func execute(ctx context.Context, args []string, out io.Writer) error {
	root, closeApp := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if cerr := closeApp(closeCtx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
