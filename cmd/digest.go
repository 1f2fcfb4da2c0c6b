package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Render the markdown digest from the classified artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		path, d, err := env.Pipeline.Digest(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("digest written", zap.String("path", path), zap.Int("news", d.NewsCount))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(digestCmd)
}
