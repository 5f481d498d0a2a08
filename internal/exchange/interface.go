package exchange

import (
	"context"
	"time"

	"gridbot/internal/models"
)

// Credentials - пара ключей биржевого аккаунта.
//
// Поставляется внешним keystore на каждый вызов, здесь не хранится
// и не шифруется.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Empty возвращает true если ключи не заданы
func (c Credentials) Empty() bool {
	return c.APIKey == "" || c.SecretKey == ""
}

// Client определяет унифицированный интерфейс перпетуальной биржи.
//
// Клиент привязан к учётным данным при создании (см. Factory).
// Все вызовы ограничены таймаутом через context.
type Client interface {
	// Name возвращает имя биржи
	Name() string

	// PlaceOrder размещает ордер
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// CancelOrder отменяет ордер
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetOpenPositions возвращает открытые позиции аккаунта
	GetOpenPositions(ctx context.Context) ([]*Position, error)

	// GetBalance возвращает баланс фьючерсного аккаунта в USDT
	GetBalance(ctx context.Context) (float64, error)

	// SetLeverage устанавливает плечо для символа
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SetMarginType устанавливает тип маржи (cross/isolated)
	SetMarginType(ctx context.Context, symbol, marginType string) error

	// GetKlines возвращает исторические свечи
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// ServerTime возвращает время биржи
	ServerTime(ctx context.Context) (time.Time, error)
}

// OrderRequest - параметры размещения ордера
type OrderRequest struct {
	Symbol        string
	Side          string // BUY, SELL
	PositionSide  string // LONG, SHORT (hedge mode)
	Type          string // MARKET
	Quantity      float64
	ReduceOnly    bool   // только уменьшение позиции
	ClientOrderID string // идемпотентный идентификатор
}

// Order представляет размещённый ордер
type Order struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	PositionSide  string    `json:"position_side"`
	Status        string    `json:"status"`
	ExecutedQty   float64   `json:"executed_qty"`
	AvgPrice      float64   `json:"avg_price"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Position представляет открытую позицию
type Position struct {
	Symbol        string  `json:"symbol"`
	PositionSide  string  `json:"position_side"` // LONG, SHORT
	Amount        float64 `json:"amount"`        // абсолютный размер
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	Leverage      int     `json:"leverage"`
}

// Стороны ордера
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Стороны позиции (hedge mode)
const (
	PositionLong  = "LONG"
	PositionShort = "SHORT"
)

// Типы ордеров
const (
	OrderTypeMarket = "MARKET"
)

// Tick - одно обновление цены из потока
type Tick struct {
	Symbol string
	Price  float64
	At     time.Time
}
