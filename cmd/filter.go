package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var filterNoDigest bool

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Classify the combined artifact as news or chatter",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Classify(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("filter finished",
			zap.Int("news", result.NewsCount),
			zap.Int("chatter", result.ChatterCount),
			zap.Int("fail_safe", result.FailSafe),
		)

		if filterNoDigest {
			return nil
		}
		path, d, err := env.Pipeline.Digest(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("digest written", zap.String("path", path), zap.Int("news", d.NewsCount))
		return nil
	},
}

func init() {
	filterCmd.Flags().BoolVar(&filterNoDigest, "no-digest", false, "skip digest generation after classifying")
	rootCmd.AddCommand(filterCmd)
}
