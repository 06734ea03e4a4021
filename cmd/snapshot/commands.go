package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rlscode/athena-snapshop/internal/config"
	"github.com/rlscode/athena-snapshop/internal/logging"
)

// newRootCmd builds the command tree. Flags are seeded from getenv.
func newRootCmd(getenv func(string) string) *cobra.Command {
	var logCloser io.Closer

	root := &cobra.Command{
		Use:           "snapshot",
		Short:         "Load Athena query results into dated warehouse snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	cfg := config.Define(root.PersistentFlags(), getenv)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Finish(getenv); err != nil {
			return err
		}
		c, err := logging.Init(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Stderr: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		logCloser = c
		return nil
	}
	root.PersistentPostRun = func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run every job once now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := requireValid(cmd.ErrOrStderr(), cfg); err != nil {
					return err
				}
				return runOnce(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run jobs on the configured schedule until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := requireValid(cmd.ErrOrStderr(), cfg); err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, cfg)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the configuration and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := requireValid(cmd.ErrOrStderr(), cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
				return nil
			},
		},
		&cobra.Command{
			Use:   "jobs",
			Short: "List the configured jobs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return printJobs(cmd.OutOrStdout(), cfg)
			},
		},
	)
	return root
}

// requireValid prints every issue and fails with status 1 on errors.
func requireValid(w io.Writer, cfg *config.Config) error {
	issues := config.ValidateConfig(cfg)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Error("configuration is invalid")
		return exitCode(1)
	}
	return nil
}

func printJobs(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESTINATION\tTYPED COLUMNS\tQUERY")
	for _, j := range cfg.Jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", j.Name, j.Destination, len(j.ColumnTypes), j.Query)
	}
	return tw.Flush()
}

// runOnce performs a single run. Any failed job yields status 1.
func runOnce(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.coord.Run(ctx)
	if err != nil {
		log.Warnf("run: %v", err)
	}
	if rep.Failed() {
		return exitCode(1)
	}
	return nil
}
