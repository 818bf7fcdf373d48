package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tradesignals/broker-gateway/src/brokers"
	"github.com/tradesignals/broker-gateway/src/brokers/binance"
	"github.com/tradesignals/broker-gateway/src/governor"
	"github.com/tradesignals/broker-gateway/src/logger"
	"github.com/tradesignals/broker-gateway/src/models"
	"github.com/tradesignals/broker-gateway/src/utils"
	"github.com/tradesignals/broker-gateway/src/vault"
)

var (
	userID   string
	currency string
	testnet  bool
)

// fetch_balance is an operator tool: connect with the keys from the
// environment and print the normalized balance and positions.
var rootCmd = &cobra.Command{
	Use:   "fetch_balance",
	Short: "Fetches the normalized account balance from Binance",
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(); err != nil {
			log.Fatalf("fetch_balance: %v", err)
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

	apiKey, err := utils.GetEnv("BINANCE_API_KEY")
	if err != nil {
		return err
	}

	apiSecret, err := utils.GetEnv("BINANCE_API_SECRET")
	if err != nil {
		return err
	}

	payload, err := vaultSvc.EncryptJSON(&models.APIKeySecret{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	if err != nil {
		return err
	}

	environment := models.EnvironmentLive
	if testnet {
		environment = models.EnvironmentSandbox
	}

	cred := &models.BrokerCredential{
		UserID:      userID,
		BrokerKey:   binance.BrokerKey,
		Method:      models.AuthMethodAPIKeySecret,
		Payload:     *payload,
		Environment: environment,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var adapter brokers.BrokerAdapter = binance.NewAdapter(vaultSvc, governor.New(nil), userID)

	if _, err := adapter.Connect(ctx, cred); err != nil {
		return err
	}

	defer adapter.Disconnect(ctx)

	balance, err := adapter.GetBalance(ctx, currency)
	if err != nil {
		return err
	}

	positions, err := adapter.GetPositions(ctx)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(map[string]interface{}{
		"balance":   balance,
		"positions": positions,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, string(output))

	return nil
}

func main() {
	rootCmd.Flags().StringVar(&userID, "user", "operator", "user id used for rate limit accounting")
	rootCmd.Flags().StringVar(&currency, "currency", "USDT", "balance currency")
	rootCmd.Flags().BoolVar(&testnet, "testnet", false, "connect to the testnet environment")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
