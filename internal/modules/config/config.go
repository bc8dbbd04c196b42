package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"

	primaryKeyENV      = "BYBIT_API_KEY"
	primarySecretENV   = "BYBIT_API_SECRET"
	secondaryKeyENV    = "BYBIT2_API_KEY"
	secondarySecretENV = "BYBIT2_API_SECRET"
)

type Account struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB string `yaml:"db_dsn"`

	// Основной и (опционально) второй аккаунт — второй участвует
	// только в /panic_all
	Primary   Account `yaml:"primary"`
	Secondary Account `yaml:"secondary"`

	// Таблицы аллокаций в процентах.
	// Вход: [рынок, лимитка1, лимитка2]; тейки: [TP1..TP4].
	EntryAllocPct []float64 `yaml:"entry_alloc_pct"`
	TPAllocPct    []float64 `yaml:"tp_alloc_pct"`

	PollInterval   time.Duration `yaml:"poll_interval"`   // интервал опроса монитора
	SettleDelay    time.Duration `yaml:"settle_delay"`    // пауза после market до чтения позиции
	BreakevenTP1   bool          `yaml:"breakeven_tp1"`   // SL в безубыток после TP1
	PanicCooldown  time.Duration `yaml:"panic_cooldown"`  // кулдаун между /panic
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"` // окно подтверждения /panic

	// Символы для ws-кеша последней цены
	WatchSymbols []string `yaml:"watch_symbols"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		EntryAllocPct: []float64{50, 25, 25},
		TPAllocPct:    []float64{73, 1, 1, 23},

		PollInterval:   durationFromEnv("POLL_INTERVAL", "60s"),
		SettleDelay:    durationFromEnv("SETTLE_DELAY", "2s"),
		BreakevenTP1:   boolFromEnv("BREAKEVEN_TP1", true),
		PanicCooldown:  durationFromEnv("PANIC_COOLDOWN", "5m"),
		ConfirmTimeout: durationFromEnv("CONFIRM_TIMEOUT", "30s"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if v := os.Getenv(primaryKeyENV); v != "" {
		config.Primary.APIKey = v
	}
	if v := os.Getenv(primarySecretENV); v != "" {
		config.Primary.APISecret = v
	}
	if v := os.Getenv(secondaryKeyENV); v != "" {
		config.Secondary.APIKey = v
	}
	if v := os.Getenv(secondarySecretENV); v != "" {
		config.Secondary.APISecret = v
	}

	warnAllocations("entry_alloc_pct", config.EntryAllocPct)
	warnAllocations("tp_alloc_pct", config.TPAllocPct)

	return &config, nil
}

// warnAllocations: сумма долей > 100 — конфигурация подозрительная,
// но процесс не валим: исполнитель всё равно режет объёмы по шагу и минимумам.
func warnAllocations(name string, pct []float64) {
	var sum float64
	for _, p := range pct {
		sum += p
	}
	if sum > 100+1e-9 {
		log.Printf("WARN: %s sums to %.2f%% (> 100%%)", name, sum)
	}
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
