package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/amp-labs/restyle/build"
	"github.com/amp-labs/restyle/cli"
	"github.com/amp-labs/restyle/closer"
	"github.com/amp-labs/restyle/config"
	"github.com/amp-labs/restyle/envutil"
	"github.com/amp-labs/restyle/history"
	"github.com/amp-labs/restyle/logger"
	"github.com/amp-labs/restyle/telemetry"
	"github.com/spf13/cobra"
)

const appName = "restyle"

// app is the state shared by every subcommand. It is filled in by the
// root command's pre-run hook, after flags are parsed.
type app struct {
	src        envutil.Source
	jsonOutput bool

	cfg     *config.Config
	out     *cli.Output
	closers *closer.Closer
}

func newRootCmd(src envutil.Source) *cobra.Command {
	a := &app{src: src, closers: closer.NewCloser()}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Restyle images through a flaky generation endpoint",
		Version:       build.CurrentVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.closers.Close()
		},
	}

	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")

	root.AddCommand(
		newServeCmd(a),
		newGenerateCmd(a),
		newHistoryCmd(a),
		newVersionCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	src, err := config.Source(a.src)
	if err != nil {
		return err
	}

	a.src = src

	otelCfg, err := telemetry.LoadConfig(src, appName)
	if err != nil {
		return err
	}

	provider, err := telemetry.Initialize(cmd.Context(), otelCfg)
	if err != nil {
		return err
	}

	a.closers.AddFunc(func() error {
		return provider.Shutdown(context.WithoutCancel(cmd.Context()))
	})

	// Logs stay off stdout so that they never mix with command output.
	opts := []logger.Option{logger.WithExtraHandler(provider.LogHandler())}
	if !envutil.String(src, "LOG_OUTPUT").HasValue() {
		opts = append(opts, logger.WithOutput(cmd.ErrOrStderr()))
	}

	if _, err := logger.ConfigureLogging(src, appName, opts...); err != nil {
		return err
	}

	a.cfg, err = config.Load(src)
	if err != nil {
		return err
	}

	a.out = cli.NewOutputTo(cmd.OutOrStdout(), cmd.ErrOrStderr(), a.jsonOutput, isTerminal(cmd.OutOrStdout()))

	return nil
}

func (a *app) openHistory(ctx context.Context) (history.Store, error) { //nolint:ireturn
	return history.Open(ctx, history.Config{
		Path:        a.cfg.History.Path,
		DatabaseURL: a.cfg.History.DatabaseURL,
		Limit:       a.cfg.History.Limit,
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && cli.IsTerminal(f)
}

var errNotInteractive = errors.New("not running in a terminal")
