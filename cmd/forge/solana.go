package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/chainforge/forged/config"
	"github.com/chainforge/forged/internal/chains/solana"
	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/infrastructure/supervisor"
)

var (
	solanaCommand = cli.Command{
		Name:    "solana",
		Aliases: []string{"sol"},
		Usage:   "manage local solana test validators",
		Subcommands: []*cli.Command{
			solanaStartCmd, solanaStopCmd, solanaAccountsCmd,
			solanaFundCmd, solanaStatusCmd, solanaConfigCmd,
		},
	}

	solanaStartCmd = &cli.Command{
		Name:  "start",
		Usage: "start a test validator with pre-funded accounts",
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
				Value:   uint(config.GetInt(config.SolanaAccountsKey)),
			},
			&cli.Float64Flag{
				Name:    "balance",
				Aliases: []string{"b"},
				Usage:   "initial balance of each account in SOL",
				Value:   config.GetFloat(config.SolanaBalanceKey),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "JSON-RPC port of the validator",
				Value:   config.GetInt(config.SolanaRPCPortKey),
			},
			&cli.StringFlag{
				Name:    "mnemonic",
				Aliases: []string{"m"},
				Usage:   "mnemonic phrase for account derivation, generated when omitted",
			},
		},
		Action: solanaStartAction,
	}

	solanaStopCmd = &cli.Command{
		Name:   "stop",
		Usage:  "mark a validator stopped in the registry",
		Flags:  []cli.Flag{instanceFlag()},
		Action: solanaStopAction,
	}

	solanaAccountsCmd = &cli.Command{
		Name:   "accounts",
		Usage:  "list the derived accounts with their balances",
		Flags:  []cli.Flag{instanceFlag(), jsonFlag()},
		Action: solanaAccountsAction,
	}

	solanaFundCmd = &cli.Command{
		Name:      "fund",
		Usage:     "airdrop SOL to an address",
		ArgsUsage: "<address> <amount>",
		Flags:     []cli.Flag{instanceFlag()},
		Action:    solanaFundAction,
	}

	solanaStatusCmd = &cli.Command{
		Name:   "status",
		Usage:  "show the instance configuration and reachability",
		Flags:  []cli.Flag{instanceFlag()},
		Action: solanaStatusAction,
	}

	solanaConfigCmd = &cli.Command{
		Name:   "config",
		Usage:  "show the effective configuration for solana validators",
		Flags:  []cli.Flag{jsonFlag()},
		Action: solanaConfigAction,
	}
)

func solanaStartAction(ctx *cli.Context) error {
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
	provider, err := solana.NewProvider(solana.Config{
		InstanceID:     instanceID,
		Name:           name,
		Binary:         config.GetString(config.SolanaBinaryKey),
		RPCPort:        ctx.Int("port"),
		Accounts:       uint32(ctx.Uint("accounts")),
		InitialBalance: ctx.Float64("balance"),
		Mnemonic:       mnemonic,
		InstanceDir:    config.InstanceDir(domain.ChainSolana.String(), instanceID),
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
		if err := printAccounts(accounts, "SOL", false); err != nil {
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

func solanaStopAction(ctx *cli.Context) error {
	instanceID := ctx.String("instance")

	markNodeStopped(domain.NodeID(domain.ChainSolana, instanceID))
	fmt.Printf(
		"instance '%s' marked as stopped\n"+
			"press Ctrl+C in the terminal running 'forge solana start --instance %s' "+
			"to terminate the validator\n",
		instanceID, instanceID,
	)
	return nil
}

func solanaAccountsAction(ctx *cli.Context) error {
	instanceID := ctx.String("instance")
	accountStore, _ := newStores()

	accounts, err := accountStore.Load(domain.ChainSolana, instanceID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Printf(
			"no accounts found for instance '%s', run "+
				"'forge solana start --instance %s' first\n",
			instanceID, instanceID,
		)
		return nil
	}

	stale := true
	if client, err := solanaClient(instanceID); err == nil {
		defer client.Close()
		if client.Ready(ctx.Context) {
			if err := client.RefreshBalances(ctx.Context, accounts); err == nil {
				stale = false
				if err := accountStore.Save(
					domain.ChainSolana, instanceID, accounts,
				); err != nil {
					fmt.Printf("warning: could not save refreshed balances: %v\n", err)
				}
			}
		}
	}

	if err := printAccounts(accounts, "SOL", ctx.Bool("json")); err != nil {
		return err
	}
	if stale && !ctx.Bool("json") {
		fmt.Println("\nvalidator not reachable, balances shown are from the last refresh")
	}
	return nil
}

func solanaFundAction(ctx *cli.Context) error {
	address, amount, err := addressAmountArgs(ctx)
	if err != nil {
		return err
	}

	client, err := solanaClient(ctx.String("instance"))
	if err != nil {
		return err
	}
	defer client.Close()
	if !client.Ready(ctx.Context) {
		return fmt.Errorf(
			"%w: start it with 'forge solana start --instance %s'",
			domain.ErrNotRunning, ctx.String("instance"),
		)
	}

	signature, err := client.Fund(ctx.Context, address, amount)
	if err != nil {
		return err
	}
	fmt.Printf("airdropped %v SOL to %s\n  signature: %s\n", amount, address, signature)

	if balance, err := client.Balance(ctx.Context, address); err == nil {
		fmt.Printf("  new balance: %v SOL\n", balance)
	}
	return nil
}

func solanaStatusAction(ctx *cli.Context) error {
	instanceID := ctx.String("instance")
	_, infoStore := newStores()

	info, err := infoStore.Load(domain.ChainSolana, instanceID)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Printf("instance '%s' has never been started\n", instanceID)
		return nil
	}

	version := ""
	if client, err := solanaClient(instanceID); err == nil {
		defer client.Close()
		if v, err := client.Version(ctx.Context); err == nil {
			version = v
		}
	}

	fmt.Printf("instance:    %s\n", info.InstanceID)
	fmt.Printf("rpc url:     %s\n", info.RPCURL)
	fmt.Printf("rpc port:    %d\n", info.RPCPort)
	fmt.Printf("faucet port: %d\n", info.FaucetPort)
	if version != "" {
		fmt.Printf("reachable:   true (validator %s)\n", version)
	} else {
		fmt.Printf("reachable:   false\n")
	}
	return nil
}

func solanaConfigAction(ctx *cli.Context) error {
	keys := append(sharedConfigKeys(),
		config.SolanaBinaryKey,
		config.SolanaRPCPortKey,
		config.SolanaAccountsKey,
		config.SolanaBalanceKey,
	)
	return printConfig(keys, ctx.Bool("json"))
}

func solanaClient(instanceID string) (*solana.NodeClient, error) {
	_, infoStore := newStores()
	info, err := infoStore.Load(domain.ChainSolana, instanceID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf(
			"%w: no instance info for '%s', start it with "+
				"'forge solana start --instance %s'",
			domain.ErrNotRunning, instanceID, instanceID,
		)
	}
	return solana.NewNodeClient(
		info.RPCURL, config.GetInt(config.FundingRateKey),
	), nil
}
