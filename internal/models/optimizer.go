package models

import "time"

// Цели оптимизации параметров сетки
const (
	OptimizeTargetProfit   = "profit"   // максимум уровней в границах объёма
	OptimizeTargetCost     = "cost"     // минимум ордеров
	OptimizeTargetBoundary = "boundary" // смещение к внешней границе против пробоя
)

// OptimizeRequest - запрос на расчёт геометрии сетки
type OptimizeRequest struct {
	Symbol          string  `json:"symbol"`
	Interval        string  `json:"interval"`      // интервал свечей: 1h, 4h, 1d
	TotalCapital    float64 `json:"total_capital"` // бюджет в USDT
	Target          string  `json:"target"`        // profit, cost, boundary
	MinTradeValue   float64 `json:"min_trade_value"`
	MaxTradeValue   float64 `json:"max_trade_value"`
	BoundaryDefense bool    `json:"boundary_defense"` // расширить границы против пробоя
}

// OptimizeResult - рассчитанная геометрия сетки.
//
// Гарантии: GridSpacing > 0, GridNumber >= 1,
// GridNumber * TradeValue <= TotalCapital запроса.
type OptimizeResult struct {
	GridSpacing float64 `json:"grid_spacing"`
	GridNumber  int     `json:"grid_number"`
	TradeValue  float64 `json:"trade_value"`
	UpperBound  float64 `json:"upper_bound"`
	LowerBound  float64 `json:"lower_bound"`
}

// Candle представляет историческую свечу
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}
