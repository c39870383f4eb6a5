package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/chainforge/forged/config"
	"github.com/chainforge/forged/internal/chains/bitcoin"
	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/infrastructure/supervisor"
)

var (
	bitcoinCommand = cli.Command{
		Name:    "bitcoin",
		Aliases: []string{"btc"},
		Usage:   "manage local bitcoin regtest nodes",
		Subcommands: []*cli.Command{
			bitcoinStartCmd, bitcoinStopCmd, bitcoinAccountsCmd,
			bitcoinFundCmd, bitcoinMineCmd, bitcoinStatusCmd,
			bitcoinConfigCmd,
		},
	}

	bitcoinStartCmd = &cli.Command{
		Name:  "start",
		Usage: "start a regtest node with pre-funded accounts",
		Flags: []cli.Flag{
			instanceFlag(),
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "human-readable name for the instance",
			},
			&cli.UintFlag{
				Name:    "accounts",
				Aliases: []string{"a"},
				Usage:   "number of accounts to derive and fund",
				Value:   uint(config.GetInt(config.BitcoinAccountsKey)),
			},
			&cli.Float64Flag{
				Name:    "balance",
				Aliases: []string{"b"},
				Usage:   "initial balance of each account in BTC",
				Value:   config.GetFloat(config.BitcoinBalanceKey),
			},
			&cli.IntFlag{
				Name:  "rpc-port",
				Usage: "JSON-RPC port of the node",
				Value: config.GetInt(config.BitcoinRPCPortKey),
			},
			&cli.IntFlag{
				Name:  "p2p-port",
				Usage: "P2P network port of the node",
				Value: config.GetInt(config.BitcoinP2PPortKey),
			},
			&cli.StringFlag{
				Name:    "mnemonic",
				Aliases: []string{"m"},
				Usage:   "mnemonic phrase for account derivation, generated when omitted",
			},
			&cli.StringFlag{
				Name:  "rpc-user",
				Usage: "JSON-RPC username",
				Value: config.GetString(config.BitcoinRPCUserKey),
			},
			&cli.StringFlag{
				Name:  "rpc-pass",
				Usage: "JSON-RPC password",
				Value: config.GetString(config.BitcoinRPCPassKey),
			},
		},
		Action: bitcoinStartAction,
	}

	bitcoinStopCmd = &cli.Command{
		Name:   "stop",
		Usage:  "mark a node stopped in the registry",
		Flags:  []cli.Flag{instanceFlag()},
		Action: bitcoinStopAction,
	}

	bitcoinAccountsCmd = &cli.Command{
		Name:   "accounts",
		Usage:  "list the derived accounts with their balances",
		Flags:  []cli.Flag{instanceFlag(), jsonFlag()},
		Action: bitcoinAccountsAction,
	}

	bitcoinFundCmd = &cli.Command{
		Name:      "fund",
		Usage:     "send BTC from the node wallet to an address",
		ArgsUsage: "<address> <amount>",
		Flags:     []cli.Flag{instanceFlag()},
		Action:    bitcoinFundAction,
	}

	bitcoinMineCmd = &cli.Command{
		Name:  "mine",
		Usage: "mine blocks",
		Flags: []cli.Flag{
			instanceFlag(),
			&cli.UintFlag{
				Name:    "blocks",
				Aliases: []string{"b"},
				Usage:   "number of blocks to mine",
				Value:   1,
			},
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "coinbase reward address, a fresh wallet address when omitted",
			},
		},
		Action: bitcoinMineAction,
	}

	bitcoinStatusCmd = &cli.Command{
		Name:   "status",
		Usage:  "show the instance configuration and reachability",
		Flags:  []cli.Flag{instanceFlag()},
		Action: bitcoinStatusAction,
	}

	bitcoinConfigCmd = &cli.Command{
		Name:   "config",
		Usage:  "show the effective configuration for bitcoin nodes",
		Flags:  []cli.Flag{jsonFlag()},
		Action: bitcoinConfigAction,
	}
)

func instanceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "instance",
		Aliases: []string{"i"},
		Usage:   "instance ID, allows running multiple isolated nodes",
		Value:   "default",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "print as JSON instead of a table",
	}
}

func bitcoinStartAction(ctx *cli.Context) error {
	instanceID := ctx.String("instance")
	name := ctx.String("name")
	if err := validateNames(instanceID, name); err != nil {
		return err
	}

	var mnemonic []string
	if m := ctx.String("mnemonic"); m != "" {
		mnemonic = strings.Fields(m)
	} else {
		mnemonic = config.GetMnemonic()
	}

	accountStore, infoStore := newStores()
	provider, err := bitcoin.NewProvider(bitcoin.Config{
		InstanceID:     instanceID,
		Name:           name,
		Binary:         config.GetString(config.BitcoinBinaryKey),
		RPCPort:        ctx.Int("rpc-port"),
		P2PPort:        ctx.Int("p2p-port"),
		RPCUser:        ctx.String("rpc-user"),
		RPCPass:        ctx.String("rpc-pass"),
		Accounts:       uint32(ctx.Uint("accounts")),
		InitialBalance: ctx.Float64("balance"),
		Mnemonic:       mnemonic,
		InstanceDir:    config.InstanceDir(domain.ChainBitcoin.String(), instanceID),
		ReadyAttempts:  config.GetInt(config.NodeReadyAttemptsKey),
		ReadyInterval:  config.GetNodeReadyInterval(),
		FundingRate:    config.GetInt(config.FundingRateKey),
	}, supervisor.New(), accountStore, infoStore)
	if err != nil {
		return err
	}

	node, err := provider.Start(ctx.Context)
	if err != nil {
		return err
	}
	registerNode(*node)

	printNodeBanner(*node)
	if accounts, err := provider.Accounts(ctx.Context); err == nil {
		if err := printAccounts(accounts, "BTC", false); err != nil {
			return err
		}
	}

	waitForInterrupt()

	if err := provider.Stop(ctx.Context); err != nil {
		return err
	}
	markNodeStopped(node.ID)
	fmt.Printf("node '%s' stopped, instance data retained\n", instanceID)
	return nil
}

func bitcoinStopAction(ctx *cli.Context) error {
	instanceID := ctx.String("instance")

	markNodeStopped(domain.NodeID(domain.ChainBitcoin, instanceID))
	fmt.Printf(
		"instance '%s' marked as stopped\n"+
			"press Ctrl+C in the terminal running 'forge bitcoin start --instance %s' "+
			"to terminate the node\n",
		instanceID, instanceID,
	)
	return nil
}

func bitcoinAccountsAction(ctx *cli.Context) error {
	instanceID := ctx.String("instance")
	accountStore, _ := newStores()

	accounts, err := accountStore.Load(domain.ChainBitcoin, instanceID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Printf(
			"no accounts found for instance '%s', run "+
				"'forge bitcoin start --instance %s' first\n",
			instanceID, instanceID,
		)
		return nil
	}

	stale := true
	if client, err := bitcoinClient(instanceID); err == nil {
		defer client.Close()
		if client.Ready(ctx.Context) {
			if err := client.RefreshBalances(ctx.Context, accounts); err == nil {
				stale = false
				if err := accountStore.Save(
					domain.ChainBitcoin, instanceID, accounts,
				); err != nil {
					fmt.Printf("warning: could not save refreshed balances: %v\n", err)
				}
			}
		}
	}

	if err := printAccounts(accounts, "BTC", ctx.Bool("json")); err != nil {
		return err
	}
	if stale && !ctx.Bool("json") {
		fmt.Println("\nnode not reachable, balances shown are from the last refresh")
	}
	return nil
}

func bitcoinFundAction(ctx *cli.Context) error {
	address, amount, err := addressAmountArgs(ctx)
	if err != nil {
		return err
	}

	client, err := bitcoinClient(ctx.String("instance"))
	if err != nil {
		return err
	}
	defer client.Close()
	if !client.Ready(ctx.Context) {
		return fmt.Errorf(
			"%w: start it with 'forge bitcoin start --instance %s'",
			domain.ErrNotRunning, ctx.String("instance"),
		)
	}

	txid, err := client.Fund(ctx.Context, address, amount)
	if err != nil {
		return err
	}
	fmt.Printf("sent %v BTC to %s\n  txid: %s\n", amount, address, txid)

	if balance, err := client.AddressBalance(ctx.Context, address); err == nil {
		fmt.Printf("  new balance: %v BTC\n", balance)
	}
	return nil
}

func bitcoinMineAction(ctx *cli.Context) error {
	client, err := bitcoinClient(ctx.String("instance"))
	if err != nil {
		return err
	}
	defer client.Close()
	if !client.Ready(ctx.Context) {
		return fmt.Errorf(
			"%w: start it with 'forge bitcoin start --instance %s'",
			domain.ErrNotRunning, ctx.String("instance"),
		)
	}

	blocks, err := client.Mine(
		ctx.Context, uint32(ctx.Uint("blocks")), ctx.String("address"),
	)
	if err != nil {
		return err
	}

	fmt.Printf("mined %d block(s)\n", len(blocks))
	for i, hash := range blocks {
		fmt.Printf("  block %d: %s\n", i+1, hash)
	}
	if height, err := client.BlockCount(ctx.Context); err == nil {
		fmt.Printf("  current height: %d\n", height)
	}
	return nil
}

func bitcoinStatusAction(ctx *cli.Context) error {
	instanceID := ctx.String("instance")
	_, infoStore := newStores()

	info, err := infoStore.Load(domain.ChainBitcoin, instanceID)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Printf("instance '%s' has never been started\n", instanceID)
		return nil
	}

	reachable := false
	if client, err := bitcoinClient(instanceID); err == nil {
		defer client.Close()
		reachable = client.Ready(ctx.Context)
	}

	fmt.Printf("instance:  %s\n", info.InstanceID)
	fmt.Printf("rpc url:   %s\n", info.RPCURL)
	fmt.Printf("rpc port:  %d\n", info.RPCPort)
	fmt.Printf("p2p port:  %d\n", info.P2PPort)
	fmt.Printf("reachable: %v\n", reachable)
	return nil
}

func bitcoinConfigAction(ctx *cli.Context) error {
	keys := append(sharedConfigKeys(),
		config.BitcoinBinaryKey,
		config.BitcoinRPCPortKey,
		config.BitcoinP2PPortKey,
		config.BitcoinRPCUserKey,
		config.BitcoinRPCPassKey,
		config.BitcoinAccountsKey,
		config.BitcoinBalanceKey,
	)
	return printConfig(keys, ctx.Bool("json"))
}

func bitcoinClient(instanceID string) (*bitcoin.NodeClient, error) {
	_, infoStore := newStores()
	info, err := infoStore.Load(domain.ChainBitcoin, instanceID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf(
			"%w: no instance info for '%s', start it with "+
				"'forge bitcoin start --instance %s'",
			domain.ErrNotRunning, instanceID, instanceID,
		)
	}
	return bitcoin.NewNodeClient(info, config.GetInt(config.FundingRateKey))
}

func addressAmountArgs(ctx *cli.Context) (string, float64, error) {
	if ctx.NArg() != 2 {
		return "", 0, fmt.Errorf(
			"%w: expected <address> <amount> arguments", domain.ErrConfig,
		)
	}
	address := ctx.Args().Get(0)
	amount, err := strconv.ParseFloat(ctx.Args().Get(1), 64)
	if err != nil || amount <= 0 {
		return "", 0, fmt.Errorf(
			"%w: invalid amount %q", domain.ErrConfig, ctx.Args().Get(1),
		)
	}
	return address, amount, nil
}
