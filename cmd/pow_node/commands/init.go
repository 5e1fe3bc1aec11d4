package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"powchain/cfg"
	"powchain/chain"
	"powchain/ec"
	"powchain/genesis"

	"github.com/spf13/cobra"
)

const payoutKeyFile = "payout.key"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config and a new genesis document",
	Long: `init creates the home directory with config.toml, mines a genesis block
paying to a freshly generated key and stores that key in payout.key.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().String("chain-id", "powchain", "chain identifier")
	initCmd.Flags().String("message", "", "text embedded in the genesis coinbase")
	initCmd.Flags().Bool("regtest", false, "use trivial difficulty and a short retarget window")
}

func runInit(cmd *cobra.Command, args []string) error {
	home, _ := cmd.Flags().GetString("home")
	chainId, _ := cmd.Flags().GetString("chain-id")
	message, _ := cmd.Flags().GetString("message")
	regtest, _ := cmd.Flags().GetBool("regtest")

	cfgFile, err := cfg.EnsureRoot(home)
	if err != nil {
		return err
	}
	config, err := cfg.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if _, err := os.Stat(config.GenesisFile); err == nil {
		return fmt.Errorf("genesis file %s already exists", config.GenesisFile)
	}

	params := chain.DefaultChainParams()
	if regtest {
		params = chain.RegtestChainParams()
	}

	key := ec.NewPrivKey()
	doc := genesis.NewDocument(chainId, key.PubKey(), params)
	doc.Message = message
	if err := doc.ValidateAndComplete(); err != nil {
		return err
	}
	blk, err := doc.Seal(cmd.Context())
	if err != nil {
		return err
	}
	if err := doc.SaveAs(config.GenesisFile); err != nil {
		return err
	}
	keyFile := filepath.Join(home, payoutKeyFile)
	if err := os.WriteFile(keyFile, []byte(key.String()+"\n"), 0600); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "genesis %s written to %s\n", blk.Hash(), config.GenesisFile)
	fmt.Fprintf(cmd.OutOrStdout(), "payout key written to %s\n", keyFile)
	return nil
}
