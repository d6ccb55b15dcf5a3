// Command etl builds the song-play star schema from song and event JSON in
// object storage and writes it back as partitioned Parquet, optionally
// loading a SQL warehouse as well.
//
//	etl run --config configs/pipelines/sparkify.json --credentials dl.cfg
//	etl validate --config configs/pipelines/sparkify.yaml
//
// Every flag can also be set through an ETL_<FLAG> environment variable,
// e.g. ETL_METRICS_BACKEND=datadog.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	_ "github.com/ypatankar/datalake/internal/blob/all"
	"github.com/ypatankar/datalake/internal/config"
	"github.com/ypatankar/datalake/internal/metrics"
	"github.com/ypatankar/datalake/internal/metrics/datadog"
	"github.com/ypatankar/datalake/internal/metrics/prompush"
	_ "github.com/ypatankar/datalake/internal/storage/all"
)

// envPrefix prefixes the environment variable of every flag.
const envPrefix = "ETL"

// options holds the resolved command line.
type options struct {
	configPath     string
	credentials    string
	metricsBackend string
	pushGatewayURL string
	datadogAddr    string
	verbose        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCommand builds the etl command tree writing to the given streams.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "etl",
		Short:         "etl - song-play star schema builder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/pipelines/sparkify.json", "pipeline file (.json, .yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "development logging at debug level")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setAllConfig(viper.New(), cmd.Flags(), envPrefix)
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Build the star schema and write it out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), opts, stderr)
		},
	}
	run.Flags().StringVar(&opts.credentials, "credentials", "", "dl.cfg-style INI credentials file; environment variables override it")
	run.Flags().StringVar(&opts.metricsBackend, "metrics-backend", "none", "metrics backend: pushgateway, datadog or none")
	run.Flags().StringVar(&opts.pushGatewayURL, "pushgateway-url", "http://localhost:9091", "Pushgateway base URL")
	run.Flags().StringVar(&opts.datadogAddr, "datadog-addr", "127.0.0.1:8125", "DogStatsD address")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadPipeline(opts.configPath, stdout)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "configuration is valid: %s\n", opts.configPath)
			return nil
		},
	}

	root.AddCommand(run, validate)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root
}

// setAllConfig resolves every flag from, in priority order, the command line,
// the environment (envPrefix_FLAG_NAME) and the flag default.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet, envPrefix string) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		flagErr = f.Value.Set(v.GetString(f.Name))
	})
	return flagErr
}

// loadPipeline decodes and lints a pipeline file, printing every issue to w.
func loadPipeline(path string, w io.Writer) (config.Pipeline, error) {
	p, err := config.Load(path)
	if err != nil {
		return config.Pipeline{}, err
	}
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintln(w, iss.Error())
	}
	if config.HasErrors(issues) {
		return config.Pipeline{}, fmt.Errorf("configuration is invalid: %s", path)
	}
	return p, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runCommand(ctx context.Context, opts *options, stderr io.Writer) error {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pl, err := loadPipeline(opts.configPath, stderr)
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(opts.credentials)
	if err != nil {
		return err
	}

	flush := setupMetrics(opts, pl.Job, logger)
	defer flush()

	start := time.Now()
	if _, err := runPipeline(ctx, pl, creds, logger); err != nil {
		logger.Error("run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	logger.Info("run completed", zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))
	return nil
}

// setupMetrics installs the chosen metrics backend and returns the function
// that flushes it at exit. An unusable backend leaves metrics disabled.
func setupMetrics(opts *options, job string, logger *zap.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch opts.metricsBackend {
	case "pushgateway":
		b, err = prompush.NewBackend(job, opts.pushGatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       opts.datadogAddr,
			Namespace:  "datalake.",
			GlobalTags: []string{"job:" + job},
		})
	case "", "none":
		logger.Debug("metrics disabled")
		return func() {}
	default:
		logger.Warn("unknown metrics backend; metrics disabled", zap.String("backend", opts.metricsBackend))
		return func() {}
	}
	if err != nil {
		logger.Warn("metrics backend unavailable; metrics disabled", zap.String("backend", opts.metricsBackend), zap.Error(err))
		return func() {}
	}
	metrics.SetBackend(b)
	logger.Info("metrics enabled", zap.String("backend", opts.metricsBackend))
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Warn("metrics flush failed", zap.Error(err))
		}
	}
}
