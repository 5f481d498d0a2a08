package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Exchange ExchangeConfig
	Engine   EngineConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// ExchangeConfig - настройки биржевого клиента
type ExchangeConfig struct {
	BaseURL   string // REST endpoint
	WSBaseURL string // WebSocket endpoint для потоков цен

	// Учётные данные по умолчанию. В production поставляются внешним
	// keystore per-credential, этот блок - для single-tenant запуска.
	APIKey    string
	SecretKey string

	RequestTimeout time.Duration // таймаут одного REST запроса
	RateLimit      float64       // запросов в секунду
	RateBurst      float64       // burst ёмкость
}

// EngineConfig - настройки торгового движка
type EngineConfig struct {
	// Исполнение ордеров
	OrderTimeout     time.Duration // таймаут исполнения пакета интентов
	LegDelay         time.Duration // пауза между ногами хеджа одного символа
	MaxSymbolWorkers int           // параллельных символов в пакете
	MaxRetries       int           // попыток при rate-limit ответах

	// Пакет изменения плеча
	LeverageSyncLimit int // до этого размера пакет исполняется синхронно

	// Фид цен
	PriceStaleAfter  time.Duration // цена старше порога считается недоступной
	FeedInitialDelay time.Duration // начальная задержка переподключения потока
	FeedMaxDelay     time.Duration // максимальная задержка переподключения
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из .env файла (если есть) и переменных окружения
func Load() (*Config, error) {
	// .env необязателен: в контейнере конфигурация приходит из окружения
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "gridbot"),
			User:     getEnv("DB_USER", "gridbot"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Exchange: ExchangeConfig{
			BaseURL:        getEnv("EXCHANGE_BASE_URL", "https://fapi.binance.com"),
			WSBaseURL:      getEnv("EXCHANGE_WS_URL", "wss://fstream.binance.com/ws"),
			APIKey:         getEnv("EXCHANGE_API_KEY", ""),
			SecretKey:      getEnv("EXCHANGE_SECRET_KEY", ""),
			RequestTimeout: getEnvAsDuration("EXCHANGE_TIMEOUT", 10*time.Second),
			RateLimit:      getEnvAsFloat("EXCHANGE_RATE_LIMIT", 10),
			RateBurst:      getEnvAsFloat("EXCHANGE_RATE_BURST", 20),
		},
		Engine: EngineConfig{
			OrderTimeout:      getEnvAsDuration("ORDER_TIMEOUT", 30*time.Second),
			LegDelay:          getEnvAsDuration("LEG_DELAY", 200*time.Millisecond),
			MaxSymbolWorkers:  getEnvAsInt("MAX_SYMBOL_WORKERS", 4),
			MaxRetries:        getEnvAsInt("MAX_RETRIES", 3),
			LeverageSyncLimit: getEnvAsInt("LEVERAGE_SYNC_LIMIT", 5),
			PriceStaleAfter:   getEnvAsDuration("PRICE_STALE_AFTER", 30*time.Second),
			FeedInitialDelay:  getEnvAsDuration("FEED_RECONNECT_DELAY", 2*time.Second),
			FeedMaxDelay:      getEnvAsDuration("FEED_RECONNECT_MAX_DELAY", 32*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет числовые диапазоны
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Exchange.RequestTimeout <= 0 {
		return fmt.Errorf("EXCHANGE_TIMEOUT must be positive")
	}
	if c.Engine.MaxSymbolWorkers < 1 {
		return fmt.Errorf("MAX_SYMBOL_WORKERS must be >= 1")
	}
	if c.Engine.LeverageSyncLimit < 1 {
		return fmt.Errorf("LEVERAGE_SYNC_LIMIT must be >= 1")
	}
	if c.Engine.PriceStaleAfter <= 0 {
		return fmt.Errorf("PRICE_STALE_AFTER must be positive")
	}
	return nil
}

// ============ Хелперы чтения окружения ============

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}
