// Package config loads engine and service configuration from the
// environment, splitting required credentials (requireEnv) from defaulted
// tunables (getEnvOrDefault).
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Config holds everything read from the environment at process start.
type Config struct {
	DatabaseURL    string // optional; empty disables Postgres persistence
	ListenAddr     string
	APIAuthToken   string
	SnapshotDir    string // file-based persistence fallback, used when DatabaseURL is empty
	TenantIdleTTLS int

	Defaults models.DiscoveryOpts
}

// Load reads .env (if present, a local development convenience) then
// environment variables into a Config, applying sane defaults for every
// tunable.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, continuing with process environment")
	}

	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ListenAddr:     getEnvOrDefault("LISTEN_ADDR", ":8080"),
		APIAuthToken:   os.Getenv("API_AUTH_TOKEN"),
		SnapshotDir:    getEnvOrDefault("SNAPSHOT_DIR", "./data/snapshots"),
		TenantIdleTTLS: getEnvIntOrDefault("TENANT_IDLE_TTL_S", 3600),
		Defaults: models.DiscoveryOpts{
			MaxDepth:             getEnvIntOrDefault("MAX_DEPTH", 10),
			MinQualityScore:      getEnvFloatOrDefault("MIN_QUALITY_SCORE", 0),
			MaxResults:           getEnvIntOrDefault("MAX_RESULTS", 1000),
			TimeoutMS:            getEnvIntOrDefault("TIMEOUT_MS", 30000),
			MaxCommunitySize:     getEnvIntOrDefault("MAX_COMMUNITY_SIZE", 500),
			MaxCyclesPerSCC:      getEnvIntOrDefault("MAX_CYCLES_PER_SCC", 10000),
			BloomCapacity:        uint(getEnvIntOrDefault("BLOOM_CAPACITY", 1_000_000)),
			BloomFPR:             getEnvFloatOrDefault("BLOOM_FPR", 0.001),
			ParallelWorkers:      getEnvIntOrDefault("PARALLEL_WORKERS", 0), // 0 => runtime.NumCPU()
			EnableBundling:       os.Getenv("ENABLE_BUNDLING") == "true",
			EnableCrossCommunity: os.Getenv("ENABLE_CROSS_COMMUNITY") == "true",
		},
	}

	return cfg
}

// requireEnv is fatal if a credential-shaped variable is unset. Not used
// for DatabaseURL since persistence is an optional collaborator here (see
// cmd/discoveryd/main.go).
func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("Required environment variable %s is not set", key)
	}
	return v
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Warning: invalid int for %s=%q, using default %d", key, v, fallback)
	}
	return fallback
}

func getEnvFloatOrDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid float for %s=%q, using default %.4f", key, v, fallback)
	}
	return fallback
}
