package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"aiserver/internal/app"
	"aiserver/internal/config"
	"aiserver/internal/workspace"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runFunc is swapped in tests.
var runFunc = func(ctx context.Context, a *app.App, opts app.Options) error { return a.Run(ctx, opts) }

func newRootCmd(logOut io.Writer) *cobra.Command {
	var opts app.Options
	cmd := &cobra.Command{
		Use:   "aiserver",
		Short: "Load, fine-tune and serve a quantized code model",
		Long: `aiserver prepares its working directories, loads a quantized code model and
a filtered code dataset from the model hub, and optionally fine-tunes the model
and serves GET /generate.

Settings come from the file named by AISERVER_CONFIG and AISERVER_* / HF_*
environment variables.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve()
			log := app.NewLogger(logOut, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				log.Error().Err(err).Msg("An error occurred")
				cleanupTemp(cfg, log)
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// failures are logged by Run; the process still exits 0
			_ = runFunc(ctx, app.New(cfg, log), opts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Train, "train", false, "fine-tune the model on the filtered dataset")
	cmd.Flags().BoolVar(&opts.Serve, "serve", false, "serve GET /generate until interrupted")
	return cmd
}

// cleanupTemp removes the temporary directory when the config could not be
// resolved and Run never got to do it.
func cleanupTemp(cfg config.Config, log zerolog.Logger) {
	root := cfg.Root
	if v := strings.TrimSpace(os.Getenv(config.EnvRoot)); v != "" {
		root = v
	}
	if strings.TrimSpace(root) == "" {
		root = config.Default().Root
	}
	l, err := workspace.Resolve(root)
	if err != nil {
		log.Error().Err(err).Msg("Error cleaning up")
		return
	}
	l.Cleanup(log)
}
