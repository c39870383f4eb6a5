package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/config"
	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
	"github.com/chainforge/forged/internal/infrastructure/storage/dbbadger"
	"github.com/chainforge/forged/internal/infrastructure/storage/filestore"
)

func newStores() (ports.AccountStore, *filestore.InstanceInfoStore) {
	instancesDir := filepath.Join(config.GetDatadir(), config.InstancesLocation)
	return filestore.NewAccountStore(instancesDir),
		filestore.NewInstanceInfoStore(instancesDir)
}

// registerNode records a started node in the shared registry. The
// registry may be locked by a running daemon, the node itself is
// unaffected when that happens.
func registerNode(node domain.NodeInstance) {
	withRegistry(func(registry ports.NodeRegistry) error {
		return registry.Upsert(node)
	})
}

func markNodeStopped(nodeID string) {
	withRegistry(func(registry ports.NodeRegistry) error {
		if err := registry.UpdateStatus(nodeID, domain.StatusStopping); err != nil {
			return err
		}
		return registry.UpdateStatus(nodeID, domain.StatusStopped)
	})
}

func withRegistry(fn func(ports.NodeRegistry) error) {
	registry, err := dbbadger.NewNodeRegistry(config.RegistryDir(), nil)
	if err != nil {
		log.WithError(err).Warn(
			"could not open the node registry, skipping registry update",
		)
		return
	}
	defer registry.Close()

	if err := fn(registry); err != nil {
		log.WithError(err).Warn("could not update the node registry")
	}
}

func waitForInterrupt() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	fmt.Println()
}

func printAccounts(accounts domain.AccountSet, unit string, asJSON bool) error {
	if asJSON {
		buf, err := json.MarshalIndent(accounts, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(buf))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "Index\tAddress\tBalance (%s)\n", unit)
	for _, account := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%.8f\n", account.Index, account.Address, account.Balance)
	}
	return w.Flush()
}

// sharedConfigKeys are the settings every chain command reads,
// regardless of which node it operates.
func sharedConfigKeys() []string {
	return []string{
		config.DatadirKey,
		config.LogLevelKey,
		config.APIPortKey,
		config.NodeReadyAttemptsKey,
		config.NodeReadyIntervalKey,
		config.FundingRateKey,
	}
}

// printConfig renders the effective value of each key, after defaults
// and environment overrides have been applied.
func printConfig(keys []string, asJSON bool) error {
	if asJSON {
		values := make(map[string]string, len(keys))
		for _, key := range keys {
			values[key] = config.GetString(key)
		}
		buf, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(buf))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "Key\tValue\n")
	for _, key := range keys {
		fmt.Fprintf(w, "%s\t%s\n", key, config.GetString(key))
	}
	return w.Flush()
}

func printNodeBanner(node domain.NodeInstance) {
	fmt.Printf("%s node '%s' is ready\n", node.Chain, node.DisplayName())
	fmt.Printf("  RPC endpoint: %s\n", node.RPCURL)
	fmt.Printf(
		"  Run 'forge %s accounts --instance %s' in another terminal to see your accounts\n",
		node.Chain, node.InstanceID,
	)
	fmt.Println("  Keep this terminal open to keep the node running, Ctrl+C stops it")
	fmt.Println()
}

func validateNames(instanceID, name string) error {
	if err := domain.ValidateInstanceName(instanceID); err != nil {
		return fmt.Errorf("invalid instance name: %w", err)
	}
	if name != "" {
		if err := domain.ValidateInstanceName(name); err != nil {
			return fmt.Errorf(
				"invalid display name: %w (try %q)",
				err, domain.SanitizeInstanceName(name),
			)
		}
	}
	return nil
}
