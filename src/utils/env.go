package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const DEV_ENV_FILENAME = ".env.development"
const PROD_ENV_FILENAME = ".env.production"

// SandboxOverrideEnv is the explicit operator escape hatch that allows
// sandbox/testnet connections while running in production.
const SandboxOverrideEnv = "ALLOW_SANDBOX_IN_PRODUCTION"

func InitEnvironmentVariables() error {
	// Hosted environments inject config directly and don't ship .env files
	if os.Getenv("ENV") == "production" {
		log.Info("Running in production environment")
		return nil
	}

	envFile := DEV_ENV_FILENAME
	if os.Getenv("GO_ENV") == "production" {
		envFile = PROD_ENV_FILENAME
	}

	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		envFile = filepath.Join(dir, envFile)
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		log.Warnf("no %s file found, relying on process environment", envFile)
		return nil
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load %s file: %v", envFile, err)
	}

	return nil
}

func IsProductionEnv() bool {
	return os.Getenv("ENV") == "production" || os.Getenv("GO_ENV") == "production"
}

func SandboxOverrideSet() bool {
	return os.Getenv(SandboxOverrideEnv) == "true"
}

func GetEnv(name string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("%s environment variable not set", name)
	}

	return value, nil
}
