package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"powchain/cfg"
	"powchain/node"
	"powchain/util/log"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node until interrupted",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().Bool("mine", false, "enable mining regardless of the config")
}

func runNode(cmd *cobra.Command, args []string) error {
	home, _ := cmd.Flags().GetString("home")
	config, err := cfg.LoadConfig(filepath.Join(home, cfg.DEFAULT_CONFIG_FILE))
	if err != nil {
		return err
	}
	if mine, _ := cmd.Flags().GetBool("mine"); mine {
		config.Mining.Enabled = true
	}
	if level, _ := cmd.Flags().GetString("logLevel"); level == "" {
		if err := setLogLevel(config.LogLevel); err != nil {
			return err
		}
	}

	logger := log.New(os.Stderr)
	n, err := node.NewNode(config, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return n.Run(ctx)
}
