package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store node ledgers, account
	// files and the registry
	DatadirKey = "DATA_DIR_PATH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// APIPortKey is the port where the REST monitoring interface will listen on
	APIPortKey = "API_PORT"
	// MnemonicKey is the mnemonic accounts are derived from. Empty means a
	// fresh one is generated per start
	MnemonicKey = "MNEMONIC"
	// NodeReadyAttemptsKey is the number of readiness probes before a node
	// start is declared timed out
	NodeReadyAttemptsKey = "NODE_READY_ATTEMPTS"
	// NodeReadyIntervalKey is the delay in milliseconds between readiness probes
	NodeReadyIntervalKey = "NODE_READY_INTERVAL"
	// FundingRateKey is the number of funding requests per second sent to a node
	FundingRateKey = "FUNDING_RATE"

	// BitcoinBinaryKey is the bitcoind executable to launch, looked up in PATH
	// when not absolute
	BitcoinBinaryKey = "BITCOIN_BINARY"
	// BitcoinRPCPortKey is the regtest JSON-RPC port
	BitcoinRPCPortKey = "BITCOIN_RPC_PORT"
	// BitcoinP2PPortKey is the regtest peer-to-peer port
	BitcoinP2PPortKey = "BITCOIN_P2P_PORT"
	// BitcoinRPCUserKey is the JSON-RPC username
	BitcoinRPCUserKey = "BITCOIN_RPC_USER"
	// BitcoinRPCPassKey is the JSON-RPC password
	BitcoinRPCPassKey = "BITCOIN_RPC_PASS"
	// BitcoinAccountsKey is the number of accounts derived and funded on start
	BitcoinAccountsKey = "BITCOIN_ACCOUNTS"
	// BitcoinBalanceKey is the BTC balance funded to each account on start
	BitcoinBalanceKey = "BITCOIN_BALANCE"

	// SolanaBinaryKey is the solana-test-validator executable to launch
	SolanaBinaryKey = "SOLANA_BINARY"
	// SolanaRPCPortKey is the validator JSON-RPC port
	SolanaRPCPortKey = "SOLANA_RPC_PORT"
	// SolanaAccountsKey is the number of accounts derived and funded on start
	SolanaAccountsKey = "SOLANA_ACCOUNTS"
	// SolanaBalanceKey is the SOL balance airdropped to each account on start
	SolanaBalanceKey = "SOLANA_BALANCE"

	RegistryLocation  = "registry"
	InstancesLocation = "instances"

	accountsFilename = "accounts.json"
	infoFilename     = "instance.json"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("chainforge", false)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("FORGE")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(APIPortKey, 3001)
	vip.SetDefault(NodeReadyAttemptsKey, 60)
	vip.SetDefault(NodeReadyIntervalKey, 500)
	vip.SetDefault(FundingRateKey, 10)

	vip.SetDefault(BitcoinBinaryKey, "bitcoind")
	vip.SetDefault(BitcoinRPCPortKey, 18443)
	vip.SetDefault(BitcoinP2PPortKey, 18444)
	vip.SetDefault(BitcoinRPCUserKey, "chainforge")
	vip.SetDefault(BitcoinRPCPassKey, "chainforge")
	vip.SetDefault(BitcoinAccountsKey, 10)
	vip.SetDefault(BitcoinBalanceKey, 10.0)

	vip.SetDefault(SolanaBinaryKey, "solana-test-validator")
	vip.SetDefault(SolanaRPCPortKey, 8899)
	vip.SetDefault(SolanaAccountsKey, 10)
	vip.SetDefault(SolanaBalanceKey, 100.0)

	if err := validate(); err != nil {
		log.WithError(err).Panic("error while validating config")
	}

	if err := initDatadir(); err != nil {
		log.WithError(err).Panic("error while creating datadir")
	}
}

//GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

//GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

//GetFloat ...
func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

//GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the give key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetMnemonic returns the configured mnemonic, nil when unset
func GetMnemonic() []string {
	var mnemonic []string
	if vip.GetString(MnemonicKey) != "" {
		mnemonic = strings.Split(vip.GetString(MnemonicKey), " ")
	}

	return mnemonic
}

// GetNodeReadyInterval returns the readiness probe delay as a duration
func GetNodeReadyInterval() time.Duration {
	return time.Duration(GetInt(NodeReadyIntervalKey)) * time.Millisecond
}

// RegistryDir is where the badger node registry lives
func RegistryDir() string {
	return filepath.Join(GetDatadir(), RegistryLocation)
}

// InstanceDir is the working directory of one (chain, instance) pair,
// holding its ledger, account file and instance info
func InstanceDir(chain, instanceID string) string {
	return filepath.Join(GetDatadir(), InstancesLocation, chain, instanceID)
}

// AccountsFile is the path of an instance's persisted account set
func AccountsFile(chain, instanceID string) string {
	return filepath.Join(InstanceDir(chain, instanceID), accountsFilename)
}

// InstanceInfoFile is the path of an instance's connection info
func InstanceInfoFile(chain, instanceID string) string {
	return filepath.Join(InstanceDir(chain, instanceID), infoFilename)
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	if port := GetInt(APIPortKey); port <= 0 || port > 65535 {
		return fmt.Errorf("api port must be in range [1, 65535]")
	}

	if GetInt(NodeReadyAttemptsKey) <= 0 {
		return fmt.Errorf("node ready attempts must be a positive number")
	}
	if GetInt(NodeReadyIntervalKey) <= 0 {
		return fmt.Errorf("node ready interval must be a positive number of milliseconds")
	}
	if GetInt(FundingRateKey) <= 0 {
		return fmt.Errorf("funding rate must be a positive number of requests per second")
	}

	return nil
}

func initDatadir() error {
	if err := makeDirectoryIfNotExists(RegistryDir()); err != nil {
		return err
	}
	return makeDirectoryIfNotExists(
		filepath.Join(GetDatadir(), InstancesLocation),
	)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
