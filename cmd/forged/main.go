package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/config"
	"github.com/chainforge/forged/internal/chains/bitcoin"
	"github.com/chainforge/forged/internal/chains/solana"
	"github.com/chainforge/forged/internal/core/application"
	"github.com/chainforge/forged/internal/core/domain"
	"github.com/chainforge/forged/internal/core/ports"
	"github.com/chainforge/forged/internal/infrastructure/storage/dbbadger"
	"github.com/chainforge/forged/internal/infrastructure/storage/filestore"
	httpinterface "github.com/chainforge/forged/internal/interfaces/http"
)

func main() {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	registry, err := dbbadger.NewNodeRegistry(config.RegistryDir(), nil)
	if err != nil {
		log.WithError(err).Panic("error while opening node registry")
	}
	defer registry.Close()

	instancesDir := filepath.Join(config.GetDatadir(), config.InstancesLocation)
	accountStore := filestore.NewAccountStore(instancesDir)
	infoStore := filestore.NewInstanceInfoStore(instancesDir)

	operatorSvc := application.NewOperatorService(
		registry, accountStore, newClientFactory(infoStore),
	)

	addr := fmt.Sprintf(":%d", config.GetInt(config.APIPortKey))
	apiServer := httpinterface.NewServer(addr, operatorSvc)

	go func() {
		if err := apiServer.ListenAndServe(); err != nil {
			log.WithError(err).Panic("error while serving monitoring API")
		}
	}()

	log.Debug("daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	if err := apiServer.Shutdown(); err != nil {
		log.WithError(err).Warn("error while shutting down monitoring API")
	}
	log.Debug("exiting")
}

// newClientFactory attaches RPC clients to nodes launched by CLI
// sessions, using the connection material they persisted on disk.
func newClientFactory(infoStore *filestore.InstanceInfoStore) application.ClientFactory {
	fundingRate := config.GetInt(config.FundingRateKey)

	return func(node *domain.NodeInstance) (ports.NodeClient, error) {
		switch node.Chain {
		case domain.ChainBitcoin:
			info, err := infoStore.Load(node.Chain, node.InstanceID)
			if err != nil {
				return nil, err
			}
			if info == nil {
				return nil, fmt.Errorf(
					"%w: no instance info for node %s", domain.ErrNotRunning, node.ID,
				)
			}
			return bitcoin.NewNodeClient(info, fundingRate)
		case domain.ChainSolana:
			return solana.NewNodeClient(node.RPCURL, fundingRate), nil
		default:
			return nil, fmt.Errorf("%w: unknown chain %q", domain.ErrConfig, node.Chain)
		}
	}
}
