package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Venue credentials are supplied through the environment (or a .env file)
// so the trading core never handles raw key material.

type BackpackCredentials struct {
	PublicKey string
	SecretKey string
}

type LighterCredentials struct {
	PrivateKey   string
	AccountIndex int
	APIKeyIndex  int
}

func BackpackCredentialsFromEnv() (BackpackCredentials, error) {
	creds := BackpackCredentials{
		PublicKey: strings.TrimSpace(os.Getenv("BACKPACK_PUBLIC_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("BACKPACK_SECRET_KEY")),
	}
	if creds.PublicKey == "" {
		return BackpackCredentials{}, errors.New("BACKPACK_PUBLIC_KEY is required")
	}
	if creds.SecretKey == "" {
		return BackpackCredentials{}, errors.New("BACKPACK_SECRET_KEY is required")
	}
	return creds, nil
}

func LighterCredentialsFromEnv() (LighterCredentials, error) {
	creds := LighterCredentials{
		PrivateKey: strings.TrimSpace(os.Getenv("API_KEY_PRIVATE_KEY")),
	}
	if creds.PrivateKey == "" {
		return LighterCredentials{}, errors.New("API_KEY_PRIVATE_KEY is required")
	}
	accountIndex, err := envInt("LIGHTER_ACCOUNT_INDEX")
	if err != nil {
		return LighterCredentials{}, err
	}
	apiKeyIndex, err := envInt("LIGHTER_API_KEY_INDEX")
	if err != nil {
		return LighterCredentials{}, err
	}
	creds.AccountIndex = accountIndex
	creds.APIKeyIndex = apiKeyIndex
	return creds, nil
}

func envInt(key string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, errors.New(key + " is required")
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return val, nil
}
