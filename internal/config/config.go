package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"matchbook/internal/common"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Symbol is one tradable instrument.
type Symbol struct {
	Name     string
	TickSize decimal.Decimal
}

type Engine struct {
	Workers         int
	QueueSize       int
	SelfTradePolicy string
	MaxFillsPerPass int
	TradeLogSize    int
}

type Feed struct {
	Interval time.Duration
	// StartPrices seeds the development random walk feed.
	StartPrices map[string]decimal.Decimal
}

type Monitor struct {
	Addr           string
	Interval       time.Duration
	AllowedOrigins []string
}

type Journal struct {
	Dir  string // Empty disables the journal.
	Sync bool
}

type Log struct {
	Level  string
	Pretty bool
}

type Sim struct {
	OrdersPerSec int // Zero disables the simulator.
}

type Config struct {
	Symbols []Symbol
	Engine  Engine
	Feed    Feed
	Monitor Monitor
	Journal Journal
	Log     Log
	Sim     Sim
}

func Default() Config {
	return Config{
		Symbols: []Symbol{
			{Name: "AAPL", TickSize: common.DefaultTickSize},
			{Name: "GOOGL", TickSize: common.DefaultTickSize},
		},
		Engine: Engine{
			Workers:         10,
			QueueSize:       100,
			SelfTradePolicy: "allow",
			TradeLogSize:    10_000,
		},
		Feed: Feed{
			Interval:    3 * time.Second,
			StartPrices: map[string]decimal.Decimal{},
		},
		Monitor: Monitor{
			Addr:           "0.0.0.0:9001",
			Interval:       10 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Log: Log{Level: "info"},
	}
}

// SymbolNames lists the configured symbols.
func (c Config) SymbolNames() []string {
	names := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		names[i] = s.Name
	}
	return names
}

// TickSizes maps each symbol to its tick size.
func (c Config) TickSizes() map[string]decimal.Decimal {
	ticks := make(map[string]decimal.Decimal, len(c.Symbols))
	for _, s := range c.Symbols {
		ticks[s.Name] = s.TickSize
	}
	return ticks
}

// StartPrice returns the feed seed price of a symbol, 100 if none is set.
func (c Config) StartPrice(symbol string) decimal.Decimal {
	if price, ok := c.Feed.StartPrices[symbol]; ok {
		return price
	}
	return decimal.NewFromInt(100)
}

// LoadFromEnv loads configuration from a .env file (if it exists) and the
// environment. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// The .env file is optional.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	var err error
	if v := os.Getenv("SYMBOLS"); v != "" {
		if cfg.Symbols, err = parseSymbols(v, os.Getenv("TICK_SIZE")); err != nil {
			return cfg, err
		}
	} else if v := os.Getenv("TICK_SIZE"); v != "" {
		tick, err := parseTick(v)
		if err != nil {
			return cfg, err
		}
		for i := range cfg.Symbols {
			cfg.Symbols[i].TickSize = tick
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"WORKERS", &cfg.Engine.Workers},
		{"QUEUE_SIZE", &cfg.Engine.QueueSize},
		{"MAX_FILLS_PER_PASS", &cfg.Engine.MaxFillsPerPass},
		{"TRADE_LOG_SIZE", &cfg.Engine.TradeLogSize},
		{"SIM_ORDERS_PER_SEC", &cfg.Sim.OrdersPerSec},
	}
	for _, i := range ints {
		if err := envInt(i.key, i.dst); err != nil {
			return cfg, err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TICKER_INTERVAL_MS", &cfg.Feed.Interval},
		{"MONITOR_INTERVAL_MS", &cfg.Monitor.Interval},
	}
	for _, d := range durations {
		if err := envMillis(d.key, d.dst); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("FEED_PRICES"); v != "" {
		if cfg.Feed.StartPrices, err = parsePrices(v); err != nil {
			return cfg, err
		}
	}

	cfg.Engine.SelfTradePolicy = getEnv("SELF_TRADE_POLICY", cfg.Engine.SelfTradePolicy)
	cfg.Monitor.Addr = getEnv("HTTP_ADDR", cfg.Monitor.Addr)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Monitor.AllowedOrigins = splitList(v)
	}
	cfg.Journal.Dir = getEnv("JOURNAL_DIR", cfg.Journal.Dir)
	cfg.Journal.Sync = os.Getenv("JOURNAL_SYNC") == "true"
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Pretty = os.Getenv("LOG_PRETTY") == "true"

	return cfg, nil
}

// parseSymbols reads "AAPL,GOOGL:0.05". Symbols without a tick use
// defaultTick, or common.DefaultTickSize when that is empty too.
func parseSymbols(v, defaultTick string) ([]Symbol, error) {
	fallback := common.DefaultTickSize
	if defaultTick != "" {
		tick, err := parseTick(defaultTick)
		if err != nil {
			return nil, err
		}
		fallback = tick
	}

	var symbols []Symbol
	seen := make(map[string]bool)
	for _, entry := range splitList(v) {
		name, rawTick, hasTick := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, "/ ") {
			return nil, fmt.Errorf("invalid symbol %q in SYMBOLS", entry)
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		tick := fallback
		if hasTick {
			var err error
			if tick, err = parseTick(rawTick); err != nil {
				return nil, err
			}
		}
		symbols = append(symbols, Symbol{Name: name, TickSize: tick})
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("SYMBOLS lists no symbols")
	}
	return symbols, nil
}

func parseTick(v string) (decimal.Decimal, error) {
	tick, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid tick size %q: %w", v, err)
	}
	if !tick.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("invalid tick size %q: %w", v, common.ErrInvalidTickSize)
	}
	return tick, nil
}

// parsePrices reads "AAPL=190.10,GOOGL=140.5".
func parsePrices(v string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	for _, entry := range splitList(v) {
		symbol, raw, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid FEED_PRICES entry %q", entry)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("invalid FEED_PRICES price %q", entry)
		}
		prices[strings.TrimSpace(symbol)] = price
	}
	return prices, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	*dst = n
	return nil
}

func envMillis(key string, dst *time.Duration) error {
	var ms int
	if err := envInt(key, &ms); err != nil {
		return err
	}
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
