// Command rankdemo runs a toy sampling loop on top of
// every coordination component: interrupt consensus,
// diverged sampling, lattice all-reduce, rank-scoped
// progress output and periodic checkpoints.
//
// Run it in-process with --local N, or as one process per
// rank with --rank and --addrs (or RANKCOORD_RANK and
// RANKCOORD_ADDRS).
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "rankdemo",
		Short:        "Run a toy distributed sampling loop",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return launch(cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("rank", 0, "rank of this process")
	flags.StringSlice("addrs", nil, "listen address of every rank, in rank order")
	flags.Int("local", 0, "run this many ranks in-process instead of over TCP")
	flags.Int("steps", 100, "number of sampling steps")
	flags.Int("rows", 2, "lattice rows")
	flags.Int("cols", 2, "lattice columns")
	flags.Int("block", 4, "side length of each lattice block")
	flags.Int("samples", 64, "samples per rank per step")
	flags.Uint64("seed", 1, "initial synchronized seed")
	flags.String("checkpoint", "", "checkpoint path (disabled if empty)")
	flags.Int("checkpoint-every", 10, "steps between checkpoints")
	flags.Duration("connect-timeout", defaultConnectTimeout, "time allowed to connect the group")
	flags.String("log-level", "info", "log level")

	v.SetEnvPrefix("rankcoord")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	return cmd
}
