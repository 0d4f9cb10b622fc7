package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/schollz/progressbar/v3"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/sreekanth370/lakeferry/internal/config"
	"github.com/sreekanth370/lakeferry/internal/logging"
	"github.com/sreekanth370/lakeferry/internal/progress"
	"github.com/sreekanth370/lakeferry/pkg/transfer"
)

// commonFlags registers the flags shared by the transfer commands.
func commonFlags(fs *flag.FlagSet) (cfgPath *string, override *config.Config) {
	override = &config.Config{}
	cfgPath = fs.String("config", "", "Path to YAML config file")
	fs.StringVar(&override.Store, "store", "", "Store bucket URL (e.g. s3://bucket?region=us-east-1)")
	fs.IntVar(&override.Workers, "workers", 0, "Number of parallel transfer workers")
	fs.Func("chunk-size", "Chunk size (e.g. 256MB)", func(v string) error {
		size, err := config.ParseBytes(v)
		if err != nil {
			return err
		}
		override.ChunkSize = size
		return nil
	})
	fs.Func("buffer-size", "Copy buffer size (e.g. 4MB)", func(v string) error {
		size, err := config.ParseBytes(v)
		if err != nil {
			return err
		}
		override.BufferSize = int(size)
		return nil
	})
	fs.IntVar(&override.Retries, "retries", 0, "Per-chunk attempt budget")
	fs.StringVar(&override.RegistryPath, "registry", "", "Job registry path")
	fs.BoolVar(&override.Progress, "progress", false, "Show a progress bar")
	fs.StringVar(&override.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&override.LogFormat, "log-format", "", "Log format (text, json)")
	return cfgPath, override
}

// loadConfig resolves configuration: defaults, then file, then env, then
// command-line overrides.
func loadConfig(cfgPath string, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		fileCfg, err := config.LoadFromFile(cfgPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	cfg = cfg.Merge(override)
	return cfg, cfg.Validate()
}

// newLogger builds the command logger from resolved configuration.
func newLogger(cfg config.Config) *slog.Logger {
	var opts []logging.Option
	if cfg.LogFormat == "json" {
		opts = append(opts, logging.WithJSON())
	}
	return logging.New("lakeferry", cfg.LogLevel, opts...)
}

// openStore opens the configured bucket URL as a transfer.Store.
func openStore(ctx context.Context, bucketURL string) (transfer.Store, *blob.Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", bucketURL, err)
	}
	return transfer.NewBlobStore(bucket), bucket, nil
}

// openRegistry opens the job registry at the configured path, falling back
// to the per-user default location.
func openRegistry(path string) (*transfer.Registry, error) {
	if path == "" {
		p, err := transfer.DefaultRegistryPath()
		if err != nil {
			return nil, fmt.Errorf("resolve registry path: %w", err)
		}
		path = p
	}
	return transfer.NewRegistry(path), nil
}

// localFS returns the local filesystem collaborator rooted at /.
func localFS() billy.Filesystem {
	return osfs.New("/")
}

// absLocal resolves a local path to absolute slash form for use with the
// root-anchored filesystem.
func absLocal(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(abs), nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. Workers stop
// dispatching new chunks; in-flight chunks finish and the job stays
// resumable.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[lakeferry] Received interrupt, letting in-flight chunks finish...")
		cancel()
	}()

	return ctx, cancel
}

// jobOutput is what a finished chunk feeds: the interactive bar or the
// logging tracker, whichever runJob set up. Both are resolved through
// pointers so commands can plan first, size the output from the plan, and
// only then run.
type jobOutput struct {
	bar     *progressbar.ProgressBar
	tracker *progress.Tracker
}

// baseOptions converts resolved configuration into job options.
func baseOptions(cfg config.Config, reg *transfer.Registry, out *jobOutput) []transfer.Option {
	return []transfer.Option{
		transfer.WithThreads(cfg.Workers),
		transfer.WithChunkSize(cfg.ChunkSize),
		transfer.WithBufferSize(cfg.BufferSize),
		transfer.WithRetries(cfg.Retries),
		transfer.WithSaveInterval(cfg.SaveInterval),
		transfer.WithRegistry(reg),
		transfer.WithPlanOnly(),
		transfer.WithProgressFunc(func(c *transfer.Chunk) {
			if out.bar != nil {
				_ = out.bar.Add64(c.Length)
			}
			if out.tracker != nil {
				out.tracker.Add(c.Length)
			}
		}),
	}
}

// runJob starts a planned job with an optional progress bar and reports the
// outcome. Without a bar, throughput goes to the logger instead.
func runJob(ctx context.Context, job *transfer.Job, cfg config.Config, log *slog.Logger, out *jobOutput, desc string) int {
	if cfg.Progress {
		out.bar = progressbar.DefaultBytes(job.TotalBytes(), desc)
	} else {
		out.tracker = progress.NewTracker(log, job.TotalBytes(), job.Remaining(), 0)
		out.tracker.Start()
	}

	err := job.Run(ctx)
	if out.tracker != nil {
		out.tracker.Stop()
	}
	if out.bar != nil {
		_ = out.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if remaining := job.Remaining(); remaining > 0 {
		fmt.Fprintf(os.Stderr, "[lakeferry] %d chunks remaining, resume with: lakeferry resume -id %s\n",
			remaining, job.Fingerprint())
		return ExitIncomplete
	}
	if err != nil {
		return ExitGeneralError
	}
	fmt.Fprintf(os.Stderr, "[lakeferry] Transferred %d files (%s)\n",
		len(job.Pairs()), config.FormatBytes(job.TotalBytes()))
	return ExitSuccess
}
