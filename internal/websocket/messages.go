package websocket

import (
	"time"

	"gridbot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeStrategyUpdate - изменение состояния стратегии.
	// Отправляется при переходах статуса (пауза, риск-стоп) и при
	// сдвиге опорной цены сетки.
	MessageTypeStrategyUpdate MessageType = "strategyUpdate"

	// MessageTypeTradeExecuted - исполненный ордер сетки.
	// Отправляется после записи сделки в историю.
	MessageTypeTradeExecuted MessageType = "tradeExecuted"
)

// StrategyUpdateMessage - сообщение об изменении стратегии
type StrategyUpdateMessage struct {
	Type       MessageType         `json:"type"`
	StrategyID int64               `json:"strategy_id"`
	Timestamp  time.Time           `json:"timestamp"`
	Data       *StrategyUpdateData `json:"data"`
}

// StrategyUpdateData - данные обновления стратегии.
// Поля-указатели опциональны: статусное событие не несёт цен,
// сдвиг опорной цены не несёт статуса.
type StrategyUpdateData struct {
	Status         string   `json:"status,omitempty"`
	OpenPrice      *float64 `json:"open_price,omitempty"`
	ReferencePrice *float64 `json:"reference_price,omitempty"`
}

// TradeMessage - сообщение об исполненной сделке
type TradeMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      *TradeData  `json:"data"`
}

// TradeData - данные сделки для клиента
type TradeData struct {
	StrategyID   int64   `json:"strategy_id"`
	Symbol       string  `json:"symbol"`
	PositionSide string  `json:"position_side"`
	Direction    string  `json:"direction"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	RealizedPnl  float64 `json:"realized_pnl"`
	Remark       string  `json:"remark,omitempty"`
}

// NewStatusMessage собирает событие смены статуса
func NewStatusMessage(strategyID int64, status string) *StrategyUpdateMessage {
	return &StrategyUpdateMessage{
		Type:       MessageTypeStrategyUpdate,
		StrategyID: strategyID,
		Timestamp:  time.Now().UTC(),
		Data:       &StrategyUpdateData{Status: status},
	}
}

// NewReferenceMessage собирает событие сдвига опорной цены
func NewReferenceMessage(strategyID int64, openPrice, referencePrice float64) *StrategyUpdateMessage {
	return &StrategyUpdateMessage{
		Type:       MessageTypeStrategyUpdate,
		StrategyID: strategyID,
		Timestamp:  time.Now().UTC(),
		Data: &StrategyUpdateData{
			OpenPrice:      &openPrice,
			ReferencePrice: &referencePrice,
		},
	}
}

// NewTradeMessage собирает событие исполненной сделки
func NewTradeMessage(trade *models.GridTradeHistory) *TradeMessage {
	return &TradeMessage{
		Type:      MessageTypeTradeExecuted,
		Timestamp: time.Now().UTC(),
		Data: &TradeData{
			StrategyID:   trade.StrategyID,
			Symbol:       trade.Symbol,
			PositionSide: trade.PositionSide,
			Direction:    trade.Direction,
			Price:        trade.Price,
			Quantity:     trade.Quantity,
			RealizedPnl:  trade.RealizedPnl,
			Remark:       trade.Remark,
		},
	}
}
