package models

import "time"

// GridStrategy представляет конфигурацию сеточной стратегии
//
// Одна активная (не удалённая) стратегия на пару (credential_key, symbol).
// Создаётся через StrategyService.Create, изменяется только через
// update/pause/resume, удаляется мягко (история сделок сохраняется).
type GridStrategy struct {
	ID            int64  `json:"id" db:"id"`
	CredentialKey string `json:"credential_key" db:"credential_key"` // идентификатор владельца во внешнем keystore
	Symbol        string `json:"symbol" db:"symbol"`                 // BTCUSDT
	ExchangeType  string `json:"exchange_type" db:"exchange_type"`   // binance
	PositionSide  string `json:"position_side" db:"position_side"`   // long, short, both

	// Геометрия сетки
	GridPriceDiff float64 `json:"grid_price_diff" db:"grid_price_diff"` // шаг сетки в ценовых единицах
	GridTradeQty  float64 `json:"grid_trade_qty" db:"grid_trade_qty"`   // единый объём на ордер

	// Раздельные объёмы для ног (имеют приоритет над GridTradeQty,
	// если хотя бы один из четырёх задан)
	LongOpenQty   float64 `json:"long_open_qty" db:"long_open_qty"`
	LongCloseQty  float64 `json:"long_close_qty" db:"long_close_qty"`
	ShortOpenQty  float64 `json:"short_open_qty" db:"short_open_qty"`
	ShortCloseQty float64 `json:"short_close_qty" db:"short_close_qty"`

	// Ограничения на открытую позицию (на каждую сторону)
	MaxOpenQty float64 `json:"max_open_qty" db:"max_open_qty"`
	MinOpenQty float64 `json:"min_open_qty" db:"min_open_qty"`

	// Коэффициент демпфирования повторного входа после убыточного
	// закрытия (0 < k <= 1, 1 = без демпфирования)
	FallPrevention float64 `json:"fall_prevention" db:"fall_prevention"`

	PollingIntervalSec int `json:"polling_interval_sec" db:"polling_interval_sec"` // период тика

	PricePrecision int `json:"price_precision" db:"price_precision"` // знаков после запятой в цене
	QtyPrecision   int `json:"qty_precision" db:"qty_precision"`     // знаков после запятой в объёме

	Leverage   int    `json:"leverage" db:"leverage"`       // плечо 1..125
	MarginType string `json:"margin_type" db:"margin_type"` // cross, isolated

	// Риск-лимиты (0 = отключено)
	StopLossPrice   float64 `json:"stop_loss_price" db:"stop_loss_price"`
	TakeProfitPrice float64 `json:"take_profit_price" db:"take_profit_price"`

	// Жёсткие ценовые границы: выход за них останавливает стратегию (0 = отключено)
	UpperLimitPrice float64 `json:"upper_limit_price" db:"upper_limit_price"`
	LowerLimitPrice float64 `json:"lower_limit_price" db:"lower_limit_price"`

	// Условия паузы относительно цены открытия (0 = отключено):
	// цена выше PauseAbovePrice или ниже PauseBelowPrice ставит стратегию
	// на паузу, возврат внутрь коридора снимает её
	PauseAbovePrice float64 `json:"pause_above_price" db:"pause_above_price"`
	PauseBelowPrice float64 `json:"pause_below_price" db:"pause_below_price"`

	// Reduce-only уклон при движении цены против чистой стороны сетки
	PriorityCloseOnTrend bool `json:"priority_close_on_trend" db:"priority_close_on_trend"`

	Status string `json:"status" db:"status"` // RUNNING, PAUSED, STOPPED, DELETED

	// Runtime-якоря (заполняются движком на первом тике)
	OpenPrice      float64 `json:"open_price" db:"open_price"`           // цена первого тика
	ReferencePrice float64 `json:"reference_price" db:"reference_price"` // опорная цена сетки

	Deleted   bool      `json:"-" db:"deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Статусы стратегии (state machine)
const (
	StatusCreated = "CREATED" // переходный, сразу продвигается в RUNNING
	StatusRunning = "RUNNING" // тики исполняются
	StatusPaused  = "PAUSED"  // тики приходят, интенты не эмитятся
	StatusStopped = "STOPPED" // терминальный, требуется пересоздание
	StatusDeleted = "DELETED" // терминальный, история сохраняется
)

// Политика сторон позиции
const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
	PositionSideBoth  = "both"
)

// Типы маржи
const (
	MarginTypeCross    = "cross"
	MarginTypeIsolated = "isolated"
)

// Направления сделки
const (
	DirectionOpen  = "open"
	DirectionClose = "close"
)

// Границы плеча биржи
const (
	MinLeverage = 1
	MaxLeverage = 125
)

// TickInterval возвращает период тика стратегии
func (s *GridStrategy) TickInterval() time.Duration {
	if s.PollingIntervalSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.PollingIntervalSec) * time.Second
}

// HasSplitQuantities возвращает true если задан хотя бы один раздельный объём
func (s *GridStrategy) HasSplitQuantities() bool {
	return s.LongOpenQty > 0 || s.LongCloseQty > 0 || s.ShortOpenQty > 0 || s.ShortCloseQty > 0
}

// LegQuantity возвращает объём для ноги (сторона + направление).
//
// Раздельные объёмы имеют приоритет: если задан хотя бы один из четырёх,
// используются только они (незаданные ноги получают 0 и не торгуются).
// Иначе все ноги получают GridTradeQty.
func (s *GridStrategy) LegQuantity(side, direction string) float64 {
	if !s.HasSplitQuantities() {
		return s.GridTradeQty
	}
	switch {
	case side == PositionSideLong && direction == DirectionOpen:
		return s.LongOpenQty
	case side == PositionSideLong && direction == DirectionClose:
		return s.LongCloseQty
	case side == PositionSideShort && direction == DirectionOpen:
		return s.ShortOpenQty
	case side == PositionSideShort && direction == DirectionClose:
		return s.ShortCloseQty
	}
	return 0
}

// TradesLong возвращает true если политика допускает длинные ноги
func (s *GridStrategy) TradesLong() bool {
	return s.PositionSide == PositionSideLong || s.PositionSide == PositionSideBoth
}

// TradesShort возвращает true если политика допускает короткие ноги
func (s *GridStrategy) TradesShort() bool {
	return s.PositionSide == PositionSideShort || s.PositionSide == PositionSideBoth
}
