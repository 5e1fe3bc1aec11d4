package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"powchain/cfg"
	"powchain/ec"
	"powchain/genesis"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	_, err = root.ExecuteC()
	return buf.String(), err
}

func TestRootCmd(t *testing.T) {
	output, err := executeCommand(RootCmd, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "pow_node")

	_, err = executeCommand(RootCmd, "version", "--logLevel", "loud")
	assert.ErrorContains(t, err, "unknown level")
}

func TestInitWritesGenesis(t *testing.T) {
	home := t.TempDir()
	output, err := executeCommand(RootCmd, "init", "-l", "error", "--home", home, "--regtest", "--chain-id", "cmd-test")
	require.NoError(t, err)
	assert.Contains(t, output, "genesis")

	config, err := cfg.LoadConfig(filepath.Join(home, cfg.DEFAULT_CONFIG_FILE))
	require.NoError(t, err)
	doc, err := genesis.DocumentFromFile(config.GenesisFile)
	require.NoError(t, err)
	assert.Equal(t, "cmd-test", doc.ChainId)
	assert.FileExists(t, filepath.Join(home, payoutKeyFile))

	// a second init refuses to replace the chain
	_, err = executeCommand(RootCmd, "init", "-l", "error", "--home", home, "--regtest")
	assert.Error(t, err)
}

func TestQueryCommands(t *testing.T) {
	home := t.TempDir()
	_, err := executeCommand(RootCmd, "init", "-l", "error", "--home", home, "--regtest", "--chain-id", "query-test")
	require.NoError(t, err)

	config, err := cfg.LoadConfig(filepath.Join(home, cfg.DEFAULT_CONFIG_FILE))
	require.NoError(t, err)
	doc, err := genesis.DocumentFromFile(config.GenesisFile)
	require.NoError(t, err)

	output, err := executeCommand(RootCmd, "block", "count", "--home", home)
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(output))

	output, err = executeCommand(RootCmd, "block", "get", "0", "--home", home)
	require.NoError(t, err)
	var byHeight blockInfo
	require.NoError(t, json.Unmarshal([]byte(output), &byHeight))
	assert.Equal(t, uint64(0), byHeight.Height)
	assert.Len(t, byHeight.Transactions, 1)

	output, err = executeCommand(RootCmd, "block", "get", byHeight.Hash.String(), "--home", home)
	require.NoError(t, err)
	var byHash blockInfo
	require.NoError(t, json.Unmarshal([]byte(output), &byHash))
	assert.Equal(t, byHeight, byHash)

	_, err = executeCommand(RootCmd, "block", "get", "7", "--home", home)
	assert.Error(t, err)
	_, err = executeCommand(RootCmd, "block", "get", "not-a-hash", "--home", home)
	assert.Error(t, err)

	bz, err := os.ReadFile(filepath.Join(home, payoutKeyFile))
	require.NoError(t, err)
	key, err := ec.HexToPrivKey(strings.TrimSpace(string(bz)))
	require.NoError(t, err)
	pub := key.PubKey()

	output, err = executeCommand(RootCmd, "balance", pub.String(), "--home", home)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatUint(doc.ChainParams.Reward(0), 10), strings.TrimSpace(output))

	otherKey := ec.NewPrivKey()
	other := otherKey.PubKey()
	output, err = executeCommand(RootCmd, "balance", other.String(), "--home", home)
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(output))

	_, err = executeCommand(RootCmd, "balance", "zz", "--home", home)
	assert.Error(t, err)

	output, err = executeCommand(RootCmd, "status", "--home", home)
	require.NoError(t, err)
	var status chainStatus
	require.NoError(t, json.Unmarshal([]byte(output), &status))
	assert.Equal(t, "query-test", status.ChainId)
	assert.Equal(t, uint64(0), status.Height)
	assert.Equal(t, byHeight.Hash, status.Genesis)
	assert.Equal(t, status.Genesis, status.Tip)
	assert.Equal(t, 1, status.Utxos)
}
