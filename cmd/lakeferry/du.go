package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/sreekanth370/lakeferry/internal/config"
	"github.com/sreekanth370/lakeferry/pkg/transfer"
)

func runDU(args []string) int {
	fs := flag.NewFlagSet("du", flag.ExitOnError)

	p := fs.String("path", "", "Remote path to report usage for")
	deep := fs.Bool("deep", false, "Report every file instead of immediate children")
	cfgPath, override := commonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: lakeferry du [options]

Report byte usage under a remote path, with a per-path breakdown and a
grand total.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*cfgPath, *override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, bucket, err := openStore(ctx, cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	usage, err := store.Usage(ctx, *p, *deep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	paths := make([]string, 0, len(usage))
	for up := range usage {
		paths = append(paths, up)
	}
	sort.Strings(paths)

	for _, up := range paths {
		fmt.Printf("%12d  %s\n", usage[up], up)
	}
	fmt.Printf("%12d  total (%s)\n",
		transfer.UsageTotal(usage), config.FormatBytes(transfer.UsageTotal(usage)))
	return ExitSuccess
}
