package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stoneagemcc/yf-tools/internal/config"
	"github.com/stoneagemcc/yf-tools/internal/logging"
	"github.com/stoneagemcc/yf-tools/pkg/download"
)

func main() {
	v, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, writing partial results...")
		cancel()
	}()

	root := newRootCmd(v, os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed
type app struct {
	v      *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd(v *viper.Viper, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: v, stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "yftools",
		Short: "Bulk downloader for Yahoo Finance market data",
		Long: `yftools downloads daily bars, minute bars, quotes, company details and
screener symbol lists for many symbols at once. Requests are spaced, failed
items are retried in later rounds, and results are written as CSV.

Symbols are given as arguments, separated by spaces, commas, pipes or
semicolons, or read from a CSV file with a "symbol" column.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "", "log level (debug, info, warn, error, off)")
	pf.Bool("log-pretty", false, "human-readable log output")
	pf.Duration("connect-timeout", 0, "connect timeout per request")
	pf.Duration("response-timeout", 0, "response timeout per request")
	pf.Int("max-in-flight", 0, "maximum concurrent requests (0 = unbounded)")
	pf.Int("http-retries", 0, "transport-level retries per request")
	pf.String("user-agent", "", "User-Agent header")
	pf.StringP("output", "o", "-", "output file (- for stdout)")
	pf.StringP("symbols-file", "f", "", `CSV file with a "symbol" column (- for stdin)`)
	pf.Bool("no-progress", false, "disable the progress bar")
	pf.String("metrics-out", "", "write Prometheus metrics in text format to this file")

	for key, flag := range map[string]string{
		"log_level":        "log-level",
		"log_pretty":       "log-pretty",
		"connect_timeout":  "connect-timeout",
		"response_timeout": "response-timeout",
		"max_in_flight":    "max-in-flight",
		"http_retries":     "http-retries",
		"user_agent":       "user-agent",
	} {
		// only fails for a nil flag
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		a.dailyCmd(),
		a.minuteCmd(),
		a.quotesCmd(),
		a.detailsCmd(),
		a.symbolsCmd(),
	)
	return root
}

// setup binds the subcommand's own flags, loads the configuration and
// builds the logger. Flags shared between subcommands bind to the same key,
// so binding happens once the subcommand is known.
func (a *app) setup(cmd *cobra.Command, bindings map[string]string) error {
	for key, flag := range bindings {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	cfg, err := config.FromViper(a.v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	a.log = logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: a.stderr,
	})
	return nil
}

// options maps the configuration onto the shared download options
func (a *app) options(cmd *cobra.Command, spacingKey, retriesKey string) download.Options {
	log := logging.NewLogger("yftools").With().Str("command", cmd.Name()).Logger()

	o := download.Options{
		Spacing:           a.v.GetDuration(spacingKey),
		Retries:           a.v.GetInt(retriesKey),
		ConnectTimeout:    a.cfg.ConnectTimeout,
		ResponseTimeout:   a.cfg.ResponseTimeout,
		MaxInFlight:       a.cfg.MaxInFlight,
		RequestsPerSecond: a.cfg.Limits(),
		HTTPRetries:       a.cfg.HTTPRetries,
		UserAgent:         a.cfg.UserAgent,
		Endpoints:         a.cfg.Endpoints(),
		Logger:            &log,
	}

	if noProgress, _ := cmd.Flags().GetBool("no-progress"); !noProgress {
		o.Progress = newProgressBar(a.stderr, cmd.Name()).Update
	}
	return o
}
