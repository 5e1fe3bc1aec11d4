package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"powchain/block"
	"powchain/blockchain"
	"powchain/cfg"
	"powchain/consensus"
	"powchain/db"
	"powchain/ec"
	"powchain/genesis"
	"powchain/store"

	"github.com/spf13/cobra"
)

// The query commands open the local store directly. LevelDB allows one
// process at a time, so the node has to be stopped.

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Query blocks of the local chain",
	Long:  `Commands to query blocks stored by a stopped node.`,
}

var blockGetCmd = &cobra.Command{
	Use:   "get [hash_or_height]",
	Short: "Get a single block by hash or height",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockGet,
}

var blockCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of blocks on the active branch",
	Args:  cobra.NoArgs,
	RunE:  runBlockCount,
}

var balanceCmd = &cobra.Command{
	Use:   "balance [pubkey]",
	Short: "Sum the unspent outputs paying to a hex public key",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the tip and totals of the local chain",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	blockCmd.AddCommand(blockGetCmd)
	blockCmd.AddCommand(blockCountCmd)
}

func openChain(cmd *cobra.Command) (*blockchain.Blockchain, func(), error) {
	home, _ := cmd.Flags().GetString("home")
	config, err := cfg.LoadConfig(filepath.Join(home, cfg.DEFAULT_CONFIG_FILE))
	if err != nil {
		return nil, nil, err
	}
	doc, err := genesis.DocumentFromFile(config.GenesisFile)
	if err != nil {
		return nil, nil, err
	}
	kvdb, err := db.Open(config.DbBackend, config.DbPath, config.DbCache, config.DbHandles)
	if err != nil {
		return nil, nil, err
	}
	st := store.NewKvStore(kvdb)

	verifier := ec.Secp256k1Verifier{}
	bc, err := blockchain.NewBlockchain(st, doc, consensus.NewProofOfWork(verifier), verifier)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return bc, st.Close, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type blockInfo struct {
	Hash         ec.Hash256
	Height       uint64
	PrevHash     ec.Hash256
	MerkleRoot   ec.Hash256
	Timestamp    int64
	Bits         string
	Nonce        uint64
	Size         int
	Transactions []ec.Hash256
}

func newBlockInfo(blk *block.Block) *blockInfo {
	return &blockInfo{
		Hash:         blk.Hash(),
		Height:       blk.Height,
		PrevHash:     blk.PrevHash,
		MerkleRoot:   blk.MerkleRoot,
		Timestamp:    blk.Timestamp,
		Bits:         fmt.Sprintf("%08x", blk.Bits),
		Nonce:        blk.Nonce,
		Size:         blk.Size(),
		Transactions: blk.Transactions.Hashes(),
	}
}

func runBlockGet(cmd *cobra.Command, args []string) error {
	bc, closeFn, err := openChain(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	var blk *block.Block
	if height, perr := strconv.ParseUint(args[0], 10, 64); perr == nil {
		blk, err = bc.BlockByHeight(height)
		if err != nil {
			return err
		}
	} else {
		hash, herr := ec.HexToHash256(args[0])
		if herr != nil {
			return fmt.Errorf("%q is neither a height nor a block hash", args[0])
		}
		var ok bool
		if blk, ok = bc.KnownBlock(hash); !ok {
			return fmt.Errorf("block %s not found", hash.Short())
		}
	}
	return printJSON(cmd, newBlockInfo(blk))
}

func runBlockCount(cmd *cobra.Command, args []string) error {
	bc, closeFn, err := openChain(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Fprintln(cmd.OutOrStdout(), bc.Height()+1)
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	pub, err := ec.HexToPubKey(args[0])
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	bc, closeFn, err := openChain(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Fprintln(cmd.OutOrStdout(), bc.Balance(pub[:]))
	return nil
}

type chainStatus struct {
	ChainId   string
	Genesis   ec.Hash256
	Height    uint64
	Tip       ec.Hash256
	TipTime   int64
	Bits      string
	TotalWork string
	Utxos     int
}

func runStatus(cmd *cobra.Command, args []string) error {
	bc, closeFn, err := openChain(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	g, err := bc.BlockByHeight(0)
	if err != nil {
		return err
	}
	cst := bc.State()
	return printJSON(cmd, &chainStatus{
		ChainId:   cst.ChainId,
		Genesis:   g.Hash(),
		Height:    cst.Height,
		Tip:       cst.TipHash,
		TipTime:   cst.TipTime,
		Bits:      fmt.Sprintf("%08x", cst.Bits),
		TotalWork: cst.Work.String(),
		Utxos:     bc.UtxoCount(),
	})
}
