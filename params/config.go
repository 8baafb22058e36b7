package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Ledger struct {
	// Controller is the single privileged identity allowed to advance
	// order status. Hex address, set once at startup.
	Controller string
	// DBPath is the pebble directory. Empty means in-memory only.
	DBPath string
}

type API struct {
	Addr string
}

type P2P struct {
	// Enabled turns on the gossipsub notification publisher.
	Enabled    bool
	ListenAddr string
	Bootstrap  []string
}

type Config struct {
	Ledger  Ledger
	API     API
	P2P     P2P
	LogFile string
}

func Default() Config {
	return Config{
		Ledger: Ledger{
			Controller: "0x0000000000000000000000000000000000000001",
			DBPath:     "data/ledger.db",
		},
		API:     API{Addr: ":8080"},
		P2P:     P2P{Enabled: false, ListenAddr: "/ip4/0.0.0.0/tcp/9000"},
		LogFile: "data/ledgerd.log",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("LEDGER_CONTROLLER"); v != "" {
		cfg.Ledger.Controller = v
	}
	if v := os.Getenv("LEDGER_DB_PATH"); v != "" {
		cfg.Ledger.DBPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("P2P_ENABLED"); v != "" {
		cfg.P2P.Enabled = v == "true"
	}
	if v := os.Getenv("P2P_LISTEN"); v != "" {
		cfg.P2P.ListenAddr = v
	}
	if v := os.Getenv("P2P_BOOTSTRAP"); v != "" {
		// Example: "/ip4/1.2.3.4/tcp/9000/p2p/Qm...,/ip4/..."
		cfg.P2P.Bootstrap = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	return cfg
}
