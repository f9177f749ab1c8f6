package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "mango",
		Short:         "Sync version-control objects and refs to a blob store and a ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $MANGO_CONFIG, ./mango.toml, ./.mango/config.toml)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "abort the command after this long (0 = no deadline)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newRefsCmd(opts))
	root.AddCommand(newHasCmd(opts))
	root.AddCommand(newCatObjectCmd(opts))
	root.AddCommand(newHashObjectCmd())
	root.AddCommand(newPushCmd(opts))
	root.AddCommand(newReceiveCmd(opts))
	root.AddCommand(newSnapshotsCmd(opts))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mango "+version)
		},
	}
}
