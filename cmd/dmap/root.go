package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pkg.jsn.cam/dmap/internal/config"
	"pkg.jsn.cam/dmap/internal/logger"
	"pkg.jsn.cam/dmap/pkg/apps"
	"pkg.jsn.cam/dmap/pkg/dmap"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
	"pkg.jsn.cam/dmap/pkg/storage"
)

type rootOptions struct {
	app        string
	configPath string
	input      string
	output     string
	params     map[string]string
	chunkSize  int
	threads    int
	maxRetries int
	logLevel   string
	progress   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dmap <true|false> <listen-addr> <addr>...",
		Short: "Distributed data-parallel map",
		Long: `dmap runs an element-wise map over its input across a fixed set of
worker processes. Start every worker, then the master:

` + dmap.Usage("dmap"),
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := dmap.ParseArgs(args)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), dmap.Usage(cmd.Root().Name()))
				return err
			}
			return run(cmd, exec, opts)
		},
	}

	cmd.CompletionOptions.DisableDefaultCmd = true

	f := cmd.Flags()
	f.StringVarP(&opts.app, "app", "a", "uppercase", "application to run (see 'dmap apps')")
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	f.StringVarP(&opts.input, "input", "i", "-", "input file of the master, - for stdin")
	f.StringVarP(&opts.output, "output", "o", "-", "output file of the master, - for stdout")
	f.StringToStringVarP(&opts.params, "param", "p", nil, "application parameter key=value, repeatable")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "elements per chunk, 0 for static scheduling")
	f.IntVarP(&opts.threads, "threads", "t", 0, "worker pool size, 0 for all CPUs")
	f.IntVar(&opts.maxRetries, "max-retries", 0, "connection attempts per destination")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&opts.progress, "progress", false, "show a progress bar on the master's stderr")

	cmd.AddCommand(newAppsCmd())

	return cmd
}

// loadConfig layers flags that were set explicitly over the file and
// environment.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	overrides := make(map[string]string)
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("chunk-size", "scheduler.chunk_size", strconv.Itoa(opts.chunkSize))
	set("threads", "executor.parallelism", strconv.Itoa(opts.threads))
	set("max-retries", "transport.max_retries", strconv.Itoa(opts.maxRetries))
	set("log-level", "logging.level", opts.logLevel)

	cfg, err := config.NewLoader().
		WithConfigPath(opts.configPath).
		WithOverrides(overrides).
		Load()
	if err != nil {
		return nil, err
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func run(cmd *cobra.Command, exec dmap.Exec, opts *rootOptions) error {
	app, err := apps.Get(opts.app)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	role := "worker"
	if exec.IsMaster {
		role = "master"
	}
	log = log.With(zap.String("role", role), zap.String("app", opts.app))

	var store *storage.RunStore
	if exec.IsMaster {
		store, err = storage.OpenRunStore(cfg.Storage.Backend, cfg.Storage.Path)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}
	}

	codec, err := protocol.CodecByName(cfg.Transport.Codec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := dmap.Params{
		Input:  opts.input,
		Output: opts.output,
		Values: opts.params,
		Options: dmap.Options{
			ChunkSize:   cfg.Scheduler.ChunkSize,
			Parallelism: cfg.Executor.Parallelism,
			MaxRetries:  cfg.Transport.MaxRetries,
			QueueSize:   cfg.Transport.QueueSize,
			Codec:       codec,
			Logger:      log,
			Store:       store,
		},
	}.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout())

	if exec.IsMaster && opts.progress {
		bar := newProgressReporter(cmd.ErrOrStderr())
		defer bar.finish()
		params.Options.Progress = bar.report
	}

	log.Info("starting", zap.Stringer("exec", exec))

	if err := app.Run(ctx, exec, params); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted")
		}
		return err
	}

	return nil
}
