package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalfeed/curator/internal/pipeline"
)

var (
	runSources      []string
	runSkipScrape   bool
	runSkipClassify bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: scrape, aggregate, classify, digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sources, err := parseSources(runSources)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, pipeline.RunOptions{
			Sources:      sources,
			SkipScrape:   runSkipScrape,
			SkipClassify: runSkipClassify,
		})
		if result != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(result)
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runSources, "sources", nil, "sources to scrape (default all)")
	runCmd.Flags().BoolVar(&runSkipScrape, "skip-scrape", false, "reuse raw artifacts instead of scraping")
	runCmd.Flags().BoolVar(&runSkipClassify, "skip-filter", false, "reuse the classified artifact instead of calling the LLM")
	rootCmd.AddCommand(runCmd)
}
