/*
main.go - Front desk console entry point

USAGE:
  enroll                 interactive menu (needs a terminal)
  enroll report occupancy
  enroll report students
  enroll receipt <id>    is the receipt paying for an active enrollment?

FLAGS (override ENROLL_* environment variables):
  --driver, --db, --catalog, --script, --config, --log-file, --verbose

Logs go to --log-file when set; with --verbose and no log file they go to
stderr. Otherwise logging is off so the menu stays readable.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/warp/enrollment-engine/app"
	"github.com/warp/enrollment-engine/cli"
	"github.com/warp/enrollment-engine/config"
	"github.com/warp/enrollment-engine/logging"
)

// isTTY checks if stdin and stdout are attached to a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type options struct {
	v          *viper.Viper
	configFile string
	logFile    string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "enroll",
		Short:         "Tutoring center enrollment console",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTTY() {
				return cmd.Help()
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				console := cli.New(a.Ledger, a.Catalog, a.Validator, os.Stdin, os.Stdout, a.Logger)
				return console.Run(ctx)
			})
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("driver", config.DriverCSV, "store driver: csv, sqlite or memory")
	flags.String("db", "students_registry.csv", "registry file or SQLite database path")
	flags.String("catalog", "", "catalog JSON path (empty: built-in catalog)")
	flags.String("script", "any", "allowed alphabet for names: any or georgian")
	flags.StringVar(&opts.configFile, "config", "", "optional config file")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	opts.v.BindPFlag("STORE_DRIVER", flags.Lookup("driver"))
	opts.v.BindPFlag("STORE_PATH", flags.Lookup("db"))
	opts.v.BindPFlag("CATALOG_PATH", flags.Lookup("catalog"))
	opts.v.BindPFlag("NAME_SCRIPT", flags.Lookup("script"))

	rootCmd.AddCommand(newReportCommand(opts))
	rootCmd.AddCommand(newReceiptCommand(opts))
	return rootCmd
}

func newReportCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print an administrative report",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "occupancy",
		Short: "Active students per course and group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return cli.PrintOccupancy(ctx, cmd.OutOrStdout(), a.Ledger, a.Catalog)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "students",
		Short: "Students with active enrollments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return cli.PrintStudents(ctx, cmd.OutOrStdout(), a.Ledger)
			})
		},
	})
	return cmd
}

func newReceiptCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "receipt <id>",
		Short: "Check whether a receipt pays for an active enrollment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				active, err := a.Ledger.IsReceiptActive(ctx, args[0])
				if err != nil {
					return err
				}
				if active {
					fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("receipt %s is in use by an active enrollment", args[0]))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("receipt %s is free", args[0]))
				}
				return nil
			})
		},
	}
}

// withApp loads configuration, builds the app and runs fn.
func withApp(cmd *cobra.Command, opts *options, fn func(context.Context, *app.App) error) error {
	cfg, err := config.FromViper(opts.v, opts.configFile)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	switch {
	case opts.logFile != "":
		logger, err = logging.NewFile(cfg, opts.logFile)
	case opts.verbose:
		logger, err = logging.New(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}
