package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "consume":
		return runConsume(args[1:])
	case "enrich":
		return runEnrich(args[1:])
	case "detect":
		return runDetect(args[1:])
	case "digest":
		return runDigest(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "scout CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  scout <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health   Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  consume  Follow the recent-change stream and persist accepted events")
	fmt.Fprintln(os.Stderr, "  enrich   Fetch diffs for pending events and update term counters")
	fmt.Fprintln(os.Stderr, "  detect   Score the last complete hour against baselines")
	fmt.Fprintln(os.Stderr, "  digest   Select, dedupe, and emit a markdown digest of detections")
	fmt.Fprintln(os.Stderr, "  serve    Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"scout <command> -h\" for command-specific flags.")
}
