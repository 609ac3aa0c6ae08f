package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	EntropyEthereum = "ethereum"
	EntropyCometBFT = "cometbft"
	EntropyLocal    = "local"
)

type Config struct {
	Port      int
	LogLevel  string
	LogPretty bool

	HouseEdge float64
	MinBet    float64
	MaxBet    float64
	MaxProfit float64

	CrashBettingTime     time.Duration
	CrashTickInterval    time.Duration
	CrashGrowthRate      float64
	CrashInterRoundDelay time.Duration
	CoinflipWindow       time.Duration
	JackpotWindow        time.Duration
	HistoryLimit         int

	EntropyProvider string
	EntropyRPCURL   string
	EntropyTimeout  time.Duration

	SettlementMaxRetries    int
	SettlementRetryInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DB Database
}

type Database struct {
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	Schema   string
}

// URL builds the postgres connection string used by pgx and the migrator
func (d Database) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Name, d.Schema)
}

func Load() Config {
	return Config{
		Port:      GetEnvAsInt("PORT", 8080),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogPretty: GetEnvAsBool("LOG_PRETTY", false),

		HouseEdge: GetEnvAsFloat("HOUSE_EDGE", 0.01),
		MinBet:    GetEnvAsFloat("MIN_BET", 0.10),
		MaxBet:    GetEnvAsFloat("MAX_BET", 10000),
		MaxProfit: GetEnvAsFloat("MAX_PROFIT", 10000),

		CrashBettingTime:     GetEnvAsDuration("CRASH_BETTING_TIME", 10*time.Second),
		CrashTickInterval:    GetEnvAsDuration("CRASH_TICK_INTERVAL", 100*time.Millisecond),
		CrashGrowthRate:      GetEnvAsFloat("CRASH_GROWTH_RATE", 0.06),
		CrashInterRoundDelay: GetEnvAsDuration("CRASH_INTER_ROUND_DELAY", 3*time.Second),
		CoinflipWindow:       GetEnvAsDuration("COINFLIP_WINDOW", 20*time.Second),
		JackpotWindow:        GetEnvAsDuration("JACKPOT_WINDOW", 30*time.Second),
		HistoryLimit:         GetEnvAsInt("HISTORY_LIMIT", 50),

		EntropyProvider: strings.ToLower(GetEnv("ENTROPY_PROVIDER", EntropyEthereum)),
		EntropyRPCURL:   GetEnv("ENTROPY_RPC_URL", "https://cloudflare-eth.com"),
		EntropyTimeout:  GetEnvAsDuration("ENTROPY_TIMEOUT", 3*time.Second),

		SettlementMaxRetries:    GetEnvAsInt("SETTLEMENT_MAX_RETRIES", 10),
		SettlementRetryInterval: GetEnvAsDuration("SETTLEMENT_RETRY_INTERVAL", 500*time.Millisecond),

		RedisAddr:     GetEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvAsInt("REDIS_DB", 0),

		DB: Database{
			Host:     GetEnv("BLUEPRINT_DB_HOST", "localhost"),
			Port:     GetEnv("BLUEPRINT_DB_PORT", "5432"),
			Name:     GetEnv("BLUEPRINT_DB_DATABASE", "crashdb"),
			Username: GetEnv("BLUEPRINT_DB_USERNAME", "postgres"),
			Password: GetEnv("BLUEPRINT_DB_PASSWORD", "postgres"),
			Schema:   GetEnv("BLUEPRINT_DB_SCHEMA", "public"),
		},
	}
}

// String masks credentials
func (c Config) String() string {
	return fmt.Sprintf("port=%d edge=%.4f entropy=%s(%s) redis=%s db=%s@%s:%s/%s",
		c.Port, c.HouseEdge, c.EntropyProvider, c.EntropyRPCURL,
		c.RedisAddr, c.DB.Username, c.DB.Host, c.DB.Port, c.DB.Name)
}

func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func GetEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func GetEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func GetEnvAsBool(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "":
		return defaultVal
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// GetEnvAsDuration accepts Go durations ("250ms") or plain seconds ("5")
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}
