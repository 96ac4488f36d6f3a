package main

import (
	"github.com/hyperjump/fmrank/internal/trainer"
	"github.com/spf13/cobra"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run [--quiet] -- <train|predict> [args...]",
		Short: "Pass a command line through to the xLearn train or predict binary",
		Long: `Runs the configured train binary when the first argument is "train",
otherwise the predict binary. The remaining arguments are passed through unchanged.`,
		Example: `  fmrank run -- train ./small_train.txt -s 0 -m model.out
  fmrank run --quiet -- predict ./small_test.txt model.out`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(root)
			if err != nil {
				return err
			}
			defer logger.Sync()
			runner := trainer.NewRunner(cfg.Trainer.TrainBinary, cfg.Trainer.PredictBinary,
				trainer.WithLogger(logger),
				trainer.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
			)
			return runner.Run(cmd.Context(), args, quiet || cfg.Trainer.Quiet)
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "discard the binary's standard output")
	return cmd
}
