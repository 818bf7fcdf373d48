package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tradesignals/broker-gateway/src/brokers/ameritrade"
	"github.com/tradesignals/broker-gateway/src/governor"
	"github.com/tradesignals/broker-gateway/src/logger"
	"github.com/tradesignals/broker-gateway/src/refresher"
	"github.com/tradesignals/broker-gateway/src/store"
	"github.com/tradesignals/broker-gateway/src/utils"
	"github.com/tradesignals/broker-gateway/src/vault"
)

var (
	interval   time.Duration
	lookahead  time.Duration
	limitsPath string
)

var rootCmd = &cobra.Command{
	Use:   "refresher",
	Short: "Runs the OAuth token refresh daemon",
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(); err != nil {
			log.Fatalf("refresher: %v", err)
		}
	},
}

func run() error {
	if err := utils.InitEnvironmentVariables(); err != nil {
		return err
	}

	logger.SetupLogger()

	vaultSvc, err := vault.NewVaultFromEnv()
	if err != nil {
		return err
	}

	limits := governor.DefaultConfig()
	if limitsPath != "" {
		limits, err = governor.LoadConfig(limitsPath)
		if err != nil {
			return err
		}
	}

	gov := governor.New(limits)
	credStore := store.NewInMemoryCredentialStore()

	refreshers := map[string]refresher.TokenRefresher{
		ameritrade.BrokerKey: ameritrade.NewAdapter(vaultSvc, gov, "refresher"),
	}

	wg := &sync.WaitGroup{}
	coordinator := refresher.NewCoordinator(wg, credStore, refreshers, interval, lookahead)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator.Start(ctx)

	log.WithFields(log.Fields{"interval": interval, "lookahead": lookahead}).Info("token refresh daemon started")

	<-ctx.Done()
	wg.Wait()

	log.Info("token refresh daemon stopped")

	return nil
}

func main() {
	rootCmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "scan interval between refresh cycles")
	rootCmd.Flags().DurationVar(&lookahead, "lookahead", 15*time.Minute, "refresh tokens expiring within this window")
	rootCmd.Flags().StringVar(&limitsPath, "limits", "", "path to the per-broker rate limit yaml table")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
