package websocket

import (
	"gridbot/internal/bot"
	"gridbot/internal/models"
)

// Декораторы хранилищ: движок пишет в БД как обычно, hub получает
// событие после успешной записи. Ошибки записи события не порождают.

// StrategyEvents оборачивает StrategyStore трансляцией изменений в hub
type StrategyEvents struct {
	inner bot.StrategyStore
	hub   *Hub
}

// NewStrategyEvents создает декоратор над хранилищем стратегий
func NewStrategyEvents(inner bot.StrategyStore, hub *Hub) *StrategyEvents {
	return &StrategyEvents{inner: inner, hub: hub}
}

func (s *StrategyEvents) UpdateStatus(id int64, status string) error {
	if err := s.inner.UpdateStatus(id, status); err != nil {
		return err
	}
	s.hub.BroadcastStrategyStatus(id, status)
	return nil
}

func (s *StrategyEvents) UpdateReferencePrice(id int64, openPrice, referencePrice float64) error {
	if err := s.inner.UpdateReferencePrice(id, openPrice, referencePrice); err != nil {
		return err
	}
	s.hub.BroadcastReferenceShift(id, openPrice, referencePrice)
	return nil
}

func (s *StrategyEvents) ListActive() ([]*models.GridStrategy, error) {
	return s.inner.ListActive()
}

// TradeEvents оборачивает HistoryStore трансляцией сделок в hub
type TradeEvents struct {
	inner bot.HistoryStore
	hub   *Hub
}

// NewTradeEvents создает декоратор над хранилищем истории
func NewTradeEvents(inner bot.HistoryStore, hub *Hub) *TradeEvents {
	return &TradeEvents{inner: inner, hub: hub}
}

func (t *TradeEvents) Insert(h *models.GridTradeHistory) error {
	if err := t.inner.Insert(h); err != nil {
		return err
	}
	t.hub.Broadcast(NewTradeMessage(h))
	return nil
}

// Проверка соответствия интерфейсам движка
var (
	_ bot.StrategyStore = (*StrategyEvents)(nil)
	_ bot.HistoryStore  = (*TradeEvents)(nil)
)
