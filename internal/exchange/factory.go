package exchange

import (
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"gridbot/internal/config"
)

// Factory выдаёт биржевые клиенты по учётным данным.
//
// Клиенты кэшируются по API ключу: у каждого аккаунта свой rate limiter,
// HTTP connection pool общий на процесс.
type Factory interface {
	// Client возвращает клиент, привязанный к учётным данным
	Client(creds Credentials) (Client, error)

	// MarketData возвращает клиент публичных данных (свечи) без подписи
	MarketData() Client

	// OpenTickerStream открывает поток цен символа
	OpenTickerStream(symbol string, onTick func(Tick)) (io.Closer, error)
}

// BinanceFactory - фабрика клиентов Binance USDT-M futures
type BinanceFactory struct {
	cfg config.ExchangeConfig
	log *zap.Logger

	mu      sync.Mutex
	clients map[string]*Binance
}

// NewBinanceFactory создаёт фабрику
func NewBinanceFactory(cfg config.ExchangeConfig, log *zap.Logger) *BinanceFactory {
	return &BinanceFactory{
		cfg:     cfg,
		log:     log,
		clients: make(map[string]*Binance),
	}
}

// Client возвращает (кэшированный) клиент для учётных данных
func (f *BinanceFactory) Client(creds Credentials) (Client, error) {
	if creds.Empty() {
		// Классифицируется как credential ошибка: пакет операций
		// с этим аккаунтом обрывается целиком
		return nil, &ExchangeError{
			Exchange:   "binance",
			Code:       -2014,
			Message:    "credentials are not set",
			HTTPStatus: http.StatusUnauthorized,
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[creds.APIKey]; ok {
		return client, nil
	}

	client := NewBinance(f.cfg, creds)
	f.clients[creds.APIKey] = client
	return client, nil
}

// MarketData возвращает клиент без учётных данных (public endpoints)
func (f *BinanceFactory) MarketData() Client {
	return NewBinance(f.cfg, Credentials{})
}

// OpenTickerStream открывает WS поток цен символа
func (f *BinanceFactory) OpenTickerStream(symbol string, onTick func(Tick)) (io.Closer, error) {
	streamCfg := DefaultStreamConfig(f.cfg.WSBaseURL)
	return OpenMarketStream(streamCfg, symbol, onTick, f.log), nil
}
