package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/sreekanth370/lakeferry/pkg/transfer"
)

func runJobs(args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)

	registry := fs.String("registry", "", "Job registry path")
	forget := fs.String("forget", "", "Remove the registry entry for this job id")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: lakeferry jobs [options]

List resumable transfers recorded in the job registry, or forget one.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	reg, err := openRegistry(*registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	if *forget != "" {
		if err := reg.Save(*forget, transfer.Record{}, false); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		return ExitSuccess
	}

	records, err := reg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	if len(records) == 0 {
		fmt.Println("No resumable jobs.")
		return ExitSuccess
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := records[id]
		fmt.Printf("%s  %-8s  %s -> %s  (%d/%d chunks remaining, saved %s)\n",
			id, rec.Direction, rec.Source, rec.Dest,
			rec.Remaining(), len(rec.Chunks),
			rec.SavedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return ExitSuccess
}

func runResume(args []string) int {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)

	id := fs.String("id", "", "Job fingerprint to resume (required)")
	cfgPath, override := commonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: lakeferry resume [options]

Resume an interrupted transfer from its registry entry. Only chunks not yet
finished are transferred; a failed upload merge is retried without
re-uploading parts.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *id == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
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

	var out jobOutput
	job, err := transfer.Resume(ctx, store, localFS(), *id, reg,
		baseOptions(cfg, reg, &out)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, transfer.ErrNotFound) {
			return ExitNotFound
		}
		return ExitGeneralError
	}

	return runJob(ctx, job, cfg, log, &out, "resuming")
}
