package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalfeed/curator/internal/model"
)

var scrapeSources []string

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch raw records and write per-source raw artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sources, err := parseSources(scrapeSources)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			sources = model.AllSources()
		}

		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		records, failed, err := env.Pipeline.Scrape(ctx, sources)
		if err != nil {
			return err
		}
		zap.L().Info("scrape finished",
			zap.Int("records", records),
			zap.Strings("failed_sources", failed),
		)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeSources, "sources", nil, "sources to scrape (default all)")
	rootCmd.AddCommand(scrapeCmd)
}
