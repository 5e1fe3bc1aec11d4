package cfg

import (
	"bytes"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const _DEFAULT_DATA_DIR = "data"

const (
	DEFAULT_CONFIG_FILE  = "config.toml"
	DEFAULT_GENESIS_FILE = "genesis.json"
)

type Config struct {
	BaseConfig

	Mining  *MiningConfig
	TrxPool *TrxPoolConfig
	Metrics *MetricsConfig
}

type BaseConfig struct {
	RootDir string `toml:"-"`

	GenesisFile string

	DbBackend string

	DbPath string

	DbCache int

	DbHandles int

	LogLevel string
}

type MiningConfig struct {
	Enabled bool

	// PayoutPubKey is the hex compressed public key the coinbase pays to.
	PayoutPubKey string

	// MaxBlockTrxs caps pooled transactions per candidate, 0 means the chain limit.
	MaxBlockTrxs int
}

type TrxPoolConfig struct {
	Recheck   bool
	Broadcast bool
	Size      int
	CacheSize int
}

type MetricsConfig struct {
	Enabled    bool
	ListenAddr string
	Namespace  string
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		GenesisFile: DEFAULT_GENESIS_FILE,
		DbBackend:   "leveldb",
		DbPath:      _DEFAULT_DATA_DIR,
		DbCache:     64,
		DbHandles:   64,
		LogLevel:    "info",
	}
}

func DefaultMiningConfig() *MiningConfig {
	return &MiningConfig{
		Enabled:      false,
		MaxBlockTrxs: 0,
	}
}

func DefaultTrxPoolConfig() *TrxPoolConfig {
	config := &TrxPoolConfig{
		Recheck:   true,
		Broadcast: true,
		Size:      100000,
		CacheSize: 100000,
	}
	return config
}

func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:    false,
		ListenAddr: "127.0.0.1:9464",
		Namespace:  "powchain",
	}
}

func DefaultConfig() *Config {
	config := &Config{BaseConfig: DefaultBaseConfig()}
	config.Mining = DefaultMiningConfig()
	config.TrxPool = DefaultTrxPoolConfig()
	config.Metrics = DefaultMetricsConfig()
	return config
}

// TestConfig keeps everything in memory and mines nothing by default.
func TestConfig() *Config {
	config := DefaultConfig()
	config.DbBackend = "memdb"
	config.DbPath = ""
	config.LogLevel = "error"
	config.TrxPool.Size = 1000
	config.TrxPool.CacheSize = 1000
	return config
}

func adjustPath(dir string, path *string) bool {
	if len(*path) == 0 {
		return false
	}

	if filepath.IsAbs(*path) {
		return false
	}

	*path = filepath.Join(dir, *path)
	return true
}

// LoadConfig reads a TOML file. Missing sections keep their defaults and
// relative paths are resolved against the directory of the file.
func LoadConfig(pathname string) (*Config, error) {
	bz, err := ioutil.ReadFile(pathname)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	_, err = toml.Decode(string(bz), config)
	if err != nil {
		return nil, err
	}

	configDir := path.Dir(pathname)
	config.RootDir = configDir
	if configDir != "." {
		adjustPath(configDir, &config.GenesisFile)
		adjustPath(configDir, &config.DbPath)
	}
	return config, nil
}

// SaveAs writes the config in TOML.
func (config *Config) SaveAs(pathname string) error {
	b := &bytes.Buffer{}
	enc := toml.NewEncoder(b)
	enc.Indent = ""
	if err := enc.Encode(config); err != nil {
		return err
	}
	return ioutil.WriteFile(pathname, b.Bytes(), 0644)
}

// EnsureRoot creates dir if needed and writes a default config unless one exists.
func EnsureRoot(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	pathname := filepath.Join(dir, DEFAULT_CONFIG_FILE)
	if _, err := os.Stat(pathname); err == nil {
		return pathname, nil
	}
	return pathname, DefaultConfig().SaveAs(pathname)
}
