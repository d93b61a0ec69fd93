// Command crawler runs the Hacker News ingestion crawler: a single
// invocation bootstraps the job queue (if needed), reclaims any chunks
// stranded by a previous crash, populates the queue on first run, and
// launches the worker pool, exiting once every chunk is completed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgFlags crawlFlags

	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Crawl the Hacker News item API into a Postgres-backed store",
		Long: `crawler ingests every item from the Hacker News Firebase API into a
relational store, tracking progress in a durable job queue so a crashed or
restarted run resumes instead of starting over.

A bare invocation with no flags crawls the full public item range using
sane concurrency defaults; override individual settings via flags,
HN_-prefixed environment variables, or an hnquarry.toml config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, cfgFlags)
		},
	}

	cfgFlags.register(cmd)
	return cmd
}
