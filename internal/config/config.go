// Package config loads process configuration from the environment, with
// optional .env file support for local operation.
package config

import (
	"errors"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config is everything the server needs from its environment.
type Config struct {
	// WaveURL is the upstream GraphQL endpoint.
	WaveURL string
	// WaveAuthorization is sent verbatim in the Authorization header.
	WaveAuthorization string
	// ConsolePassword gates the console login. Optional; when empty the
	// console runs unauthenticated (useful for local development only).
	ConsolePassword string
	// Port the HTTP server listens on.
	Port string
}

const defaultWaveURL = "https://api.wave.ppds.com/graphql"

// Load reads configuration from the environment. When envFile is non-empty
// it is loaded first; a missing file is not an error so deployments can
// rely on real environment variables alone.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
			log.Printf("[WARN] Env file %s not found, using process environment", envFile)
		}
	}

	cfg := Config{
		WaveURL:           getenv("WAVE_API_URL", defaultWaveURL),
		WaveAuthorization: os.Getenv("WAVE_API_KEY"),
		ConsolePassword:   os.Getenv("CONSOLE_PASSWORD"),
		Port:              getenv("PORT", "8080"),
	}
	if cfg.WaveAuthorization == "" {
		return Config{}, errors.New("WAVE_API_KEY is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
