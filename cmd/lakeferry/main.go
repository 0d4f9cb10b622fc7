package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitNotFound     = 3
	ExitStorageError = 4
	ExitIncomplete   = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "download":
		return runDownload(cmdArgs)
	case "upload":
		return runUpload(cmdArgs)
	case "resume":
		return runResume(cmdArgs)
	case "jobs":
		return runJobs(cmdArgs)
	case "du":
		return runDU(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: lakeferry <command> [options]

Commands:
  download  Transfer files from the remote store to the local filesystem
  upload    Transfer files from the local filesystem to the remote store
  resume    Resume an interrupted transfer by job fingerprint
  jobs      List or forget resumable transfers in the job registry
  du        Report byte usage under a remote path

Run 'lakeferry <command> -h' for command-specific help.`)
}
