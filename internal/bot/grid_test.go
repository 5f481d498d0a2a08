package bot

import (
	"testing"

	"gridbot/internal/models"
)

func gridStrategy() *models.GridStrategy {
	return &models.GridStrategy{
		Symbol:         "BTCUSDT",
		PositionSide:   models.PositionSideBoth,
		GridPriceDiff:  50,
		GridTradeQty:   10,
		MaxOpenQty:     100,
		QtyPrecision:   3,
		Status:         models.StatusRunning,
		ReferencePrice: 50000,
	}
}

func findIntent(intents []OrderIntent, side, direction string) *OrderIntent {
	for i := range intents {
		if intents[i].PositionSide == side && intents[i].Direction == direction {
			return &intents[i]
		}
	}
	return nil
}

// Первый тик: опорной цены нет - якорим сетку и открываем стартовую пару
func TestPlanTickFirstTick(t *testing.T) {
	s := gridStrategy()
	s.ReferencePrice = 0

	plan := planTick(s, 50000, Exposure{}, 0)

	if plan.NextReference != 50000 {
		t.Errorf("NextReference = %v, want 50000", plan.NextReference)
	}
	if len(plan.Intents) != 2 {
		t.Fatalf("intents = %d, want 2", len(plan.Intents))
	}
	longOpen := findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen)
	shortOpen := findIntent(plan.Intents, models.PositionSideShort, models.DirectionOpen)
	if longOpen == nil || shortOpen == nil {
		t.Fatalf("ожидалась пара открытий long+short, получено %+v", plan.Intents)
	}
	if longOpen.Quantity != 10 || shortOpen.Quantity != 10 {
		t.Errorf("объёмы %v/%v, want 10/10", longOpen.Quantity, shortOpen.Quantity)
	}
}

func TestPlanTickNoMovement(t *testing.T) {
	s := gridStrategy()

	// Сдвиг меньше шага сетки - тик пустой
	plan := planTick(s, 50049, Exposure{Long: 10, Short: 10}, 0)

	if len(plan.Intents) != 0 {
		t.Errorf("intents = %+v, ожидался пустой план", plan.Intents)
	}
	if plan.NextReference != 0 {
		t.Errorf("NextReference = %v, опорная цена не должна сдвигаться", plan.NextReference)
	}
}

func TestPlanTickPriceFell(t *testing.T) {
	s := gridStrategy()

	plan := planTick(s, 49950, Exposure{Long: 10, Short: 10}, 0)

	// Падение: открытие лонга + закрытие шорта
	longOpen := findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen)
	shortClose := findIntent(plan.Intents, models.PositionSideShort, models.DirectionClose)
	if longOpen == nil || shortClose == nil {
		t.Fatalf("ожидались long-open и short-close, получено %+v", plan.Intents)
	}
	if !shortClose.ReduceOnly {
		t.Error("закрывающее намерение должно быть reduce-only")
	}
	if plan.NextReference != 49950 {
		t.Errorf("NextReference = %v, want 49950", plan.NextReference)
	}
}

func TestPlanTickPriceRose(t *testing.T) {
	s := gridStrategy()

	plan := planTick(s, 50100, Exposure{Long: 10, Short: 10}, 0)

	// Рост на два шага: открытие шорта + закрытие лонга
	shortOpen := findIntent(plan.Intents, models.PositionSideShort, models.DirectionOpen)
	longClose := findIntent(plan.Intents, models.PositionSideLong, models.DirectionClose)
	if shortOpen == nil || longClose == nil {
		t.Fatalf("ожидались short-open и long-close, получено %+v", plan.Intents)
	}
	if plan.NextReference != 50100 {
		t.Errorf("NextReference = %v, want 50100", plan.NextReference)
	}
}

func TestPlanTickSplitQuantities(t *testing.T) {
	s := gridStrategy()
	s.LongOpenQty = 5
	s.ShortCloseQty = 3
	// ShortOpenQty и LongCloseQty не заданы - эти ноги не торгуются

	plan := planTick(s, 49950, Exposure{Long: 0, Short: 10}, 0)

	longOpen := findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen)
	shortClose := findIntent(plan.Intents, models.PositionSideShort, models.DirectionClose)
	if longOpen == nil || longOpen.Quantity != 5 {
		t.Errorf("long-open = %+v, want qty 5", longOpen)
	}
	if shortClose == nil || shortClose.Quantity != 3 {
		t.Errorf("short-close = %+v, want qty 3", shortClose)
	}

	// Рост: short-open не задан, long-close не задан - план пустой
	plan = planTick(s, 50050, Exposure{Long: 10, Short: 10}, 0)
	if len(plan.Intents) != 0 {
		t.Errorf("intents = %+v, незаданные ноги не должны торговаться", plan.Intents)
	}
}

func TestPlanTickMaxOpenClamp(t *testing.T) {
	s := gridStrategy()
	s.MaxOpenQty = 15

	// Открыто 10 из 15: открытие урезается до 5
	plan := planTick(s, 49950, Exposure{Long: 10, Short: 0}, 0)
	longOpen := findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen)
	if longOpen == nil || longOpen.Quantity != 5 {
		t.Errorf("long-open = %+v, want qty 5 (урезано лимитом)", longOpen)
	}

	// Лимит исчерпан: открытия нет
	plan = planTick(s, 49950, Exposure{Long: 15, Short: 0}, 0)
	if findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen) != nil {
		t.Error("открытие при исчерпанном лимите позиции")
	}
}

func TestPlanTickMinOpenQty(t *testing.T) {
	s := gridStrategy()
	s.MaxOpenQty = 12
	s.MinOpenQty = 5

	// Остаток лимита 2 меньше минимального объёма - намерение отбрасывается
	plan := planTick(s, 49950, Exposure{Long: 10, Short: 0}, 0)
	if findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen) != nil {
		t.Error("открытие меньше минимального объёма")
	}
}

func TestPlanTickFallPrevention(t *testing.T) {
	s := gridStrategy()
	s.FallPrevention = 0.5

	// Одно убыточное закрытие: объём открытия демпфируется вдвое
	plan := planTick(s, 49950, Exposure{}, 1)
	longOpen := findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen)
	if longOpen == nil || longOpen.Quantity != 5 {
		t.Errorf("long-open = %+v, want qty 5 после демпфирования", longOpen)
	}

	// Два подряд: четверть
	plan = planTick(s, 49950, Exposure{}, 2)
	longOpen = findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen)
	if longOpen == nil || longOpen.Quantity != 2.5 {
		t.Errorf("long-open = %+v, want qty 2.5", longOpen)
	}

	// Без коэффициента демпфирования нет
	s.FallPrevention = 0
	plan = planTick(s, 49950, Exposure{}, 3)
	longOpen = findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen)
	if longOpen == nil || longOpen.Quantity != 10 {
		t.Errorf("long-open = %+v, want qty 10 без демпфирования", longOpen)
	}
}

func TestPlanTickPriorityClose(t *testing.T) {
	s := gridStrategy()
	s.PriorityCloseOnTrend = true

	// Падение против нетто-лонга: только закрытия
	plan := planTick(s, 49950, Exposure{Long: 30, Short: 10}, 0)
	if findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen) != nil {
		t.Error("открытие при тренде против нетто-лонга")
	}
	if findIntent(plan.Intents, models.PositionSideShort, models.DirectionClose) == nil {
		t.Error("закрытие шорта должно остаться")
	}

	// Падение по нетто-шорту: открытия разрешены
	plan = planTick(s, 49950, Exposure{Long: 10, Short: 30}, 0)
	if findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen) == nil {
		t.Error("открытие должно быть разрешено при тренде по нетто-стороне")
	}
}

func TestPlanTickPositionSidePolicy(t *testing.T) {
	s := gridStrategy()
	s.PositionSide = models.PositionSideLong

	// Политика long-only: короткие ноги не эмитятся
	plan := planTick(s, 49950, Exposure{Long: 10, Short: 10}, 0)
	if findIntent(plan.Intents, models.PositionSideShort, models.DirectionClose) != nil {
		t.Error("закрытие шорта при политике long-only")
	}
	if findIntent(plan.Intents, models.PositionSideLong, models.DirectionOpen) == nil {
		t.Error("открытие лонга должно присутствовать")
	}
}

func TestPlanTickCloseCappedByPosition(t *testing.T) {
	s := gridStrategy()

	// Позиция меньше объёма закрытия - закрываем сколько есть
	plan := planTick(s, 49950, Exposure{Long: 0, Short: 4}, 0)
	shortClose := findIntent(plan.Intents, models.PositionSideShort, models.DirectionClose)
	if shortClose == nil || shortClose.Quantity != 4 {
		t.Errorf("short-close = %+v, want qty 4", shortClose)
	}

	// Пустая позиция - закрытия нет
	plan = planTick(s, 49950, Exposure{Long: 0, Short: 0}, 0)
	if findIntent(plan.Intents, models.PositionSideShort, models.DirectionClose) != nil {
		t.Error("закрытие пустой позиции")
	}
}
