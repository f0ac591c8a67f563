package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Node struct {
	// AuctionDB and LedgerDB are pebble database paths. Empty paths run
	// the engine fully in memory (devnet, tests).
	AuctionDB string
	LedgerDB  string

	// Admin is the hex address initialized as the engine admin.
	Admin string

	// EngineAddress is the engine's custody account.
	EngineAddress string

	LogFile string

	// Devnet seeds in-memory collaborators (NFT, token, bank, feeds)
	// so the node is usable without a chain integration.
	Devnet bool
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Config struct {
	Node Node
	API  API
}

func Default() Config {
	return Config{
		Node: Node{
			AuctionDB:     "data/auctions.db",
			LedgerDB:      "data/refunds.db",
			Admin:         "0x0000000000000000000000000000000000000001",
			EngineAddress: "0x00000000000000000000000000000000000A0C71",
			LogFile:       "data/auctiond.log",
			Devnet:        true,
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv("AUCTION_DB"); v != "" {
		cfg.Node.AuctionDB = v
	}
	if v := os.Getenv("LEDGER_DB"); v != "" {
		cfg.Node.LedgerDB = v
	}
	if v := os.Getenv("ADMIN_ADDRESS"); v != "" {
		cfg.Node.Admin = v
	}
	if v := os.Getenv("ENGINE_ADDRESS"); v != "" {
		cfg.Node.EngineAddress = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("DEVNET"); v != "" {
		cfg.Node.Devnet = v == "true"
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = strings.Split(v, ",")
	}

	return cfg
}
