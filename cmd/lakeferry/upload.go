package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sreekanth370/lakeferry/pkg/transfer"
)

func runUpload(args []string) int {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)

	src := fs.String("src", "", "Local source path, directory or pattern (required)")
	dest := fs.String("dest", "", "Remote destination path (required)")
	plan := fs.Bool("plan", false, "Resolve the file list without transferring")
	cfgPath, override := commonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: lakeferry upload [options]

Transfer a local file, directory tree or wildcard-matched file set to the
remote store. Each chunk is staged as a temporary object and merged into the
final object once the whole file is uploaded, so readers never observe a
partially written destination.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *src == "" || *dest == "" {
		fmt.Fprintln(os.Stderr, "Error: -src and -dest are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*cfgPath, *override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	log := newLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	store, bucket, err := openStore(ctx, cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	reg, err := openRegistry(cfg.RegistryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	localSrc, err := absLocal(*src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	var out jobOutput
	job, err := transfer.Upload(ctx, store, localFS(), localSrc, *dest,
		baseOptions(cfg, reg, &out)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, transfer.ErrNotFound) {
			return ExitNotFound
		}
		return ExitStorageError
	}

	log.Info("upload planned",
		"job", job.Fingerprint(),
		"files", len(job.Pairs()),
		"bytes", job.TotalBytes(),
		"workers", cfg.Workers,
	)

	if *plan {
		for _, p := range job.Pairs() {
			fmt.Printf("%s\t%s\t%d\n", p.Local, p.Remote, p.Size)
		}
		return ExitSuccess
	}

	return runJob(ctx, job, cfg, log, &out, "uploading")
}
