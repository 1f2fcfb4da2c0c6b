package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var aggregateSources []string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Normalize raw artifacts into the combined artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sources, err := parseSources(aggregateSources)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		items, skipped, err := env.Pipeline.Aggregate(ctx, sources)
		if err != nil {
			return err
		}
		zap.L().Info("aggregate finished",
			zap.Int("items", len(items)),
			zap.Int("skipped_records", skipped),
		)
		return nil
	},
}

func init() {
	aggregateCmd.Flags().StringSliceVar(&aggregateSources, "sources", nil, "sources to aggregate (default all)")
	rootCmd.AddCommand(aggregateCmd)
}
