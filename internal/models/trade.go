package models

import "time"

// GridTradeHistory представляет неизменяемую запись об исполненной сделке.
//
// Append-only: после вставки не обновляется. StrategyID - мягкая ссылка,
// запись переживает удаление стратегии (аудит).
type GridTradeHistory struct {
	ID           int64      `json:"id" db:"id"`
	StrategyID   int64      `json:"strategy_id" db:"strategy_id"`
	Symbol       string     `json:"symbol" db:"symbol"`
	PositionSide string     `json:"position_side" db:"position_side"` // long, short
	Direction    string     `json:"direction" db:"direction"`         // open, close
	EntryTime    time.Time  `json:"entry_time" db:"entry_time"`
	ExitTime     *time.Time `json:"exit_time,omitempty" db:"exit_time"` // только для close
	Price        float64    `json:"price" db:"price"`
	Quantity     float64    `json:"quantity" db:"quantity"`
	RealizedPnl  float64    `json:"realized_pnl" db:"realized_pnl"`
	Remark       string     `json:"remark,omitempty" db:"remark"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
