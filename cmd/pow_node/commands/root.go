package commands

import (
	"fmt"
	"os"

	"powchain/util/log"

	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "pow_node",
	Short: "Run a proof-of-work chain node",
	Long:  `pow_node keeps a proof-of-work ledger, mines on it and exports its metrics.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("logLevel")
		if level == "" {
			return nil
		}
		return setLogLevel(level)
	},
}

func setLogLevel(s string) error {
	level, err := log.ParseLevel(s)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	return nil
}

func init() {
	RootCmd.PersistentFlags().StringP("home", "H", ".", "directory holding config.toml")
	RootCmd.PersistentFlags().StringP("logLevel", "l", "", "override the configured log level (error|warn|info|debug)")

	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true

	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(blockCmd)
	RootCmd.AddCommand(balanceCmd)
	RootCmd.AddCommand(statusCmd)
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %v\n", err)
		os.Exit(1)
	}
}
