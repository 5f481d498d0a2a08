package bot

import (
	"gridbot/internal/models"
	"gridbot/pkg/utils"
)

// OrderIntent - намерение выставить ордер, результат планирования тика
type OrderIntent struct {
	Symbol       string  `json:"symbol"`
	PositionSide string  `json:"position_side"` // LONG, SHORT
	Direction    string  `json:"direction"`     // open, close
	Quantity     float64 `json:"quantity"`
	Percentage   float64 `json:"percentage,omitempty"` // для закрытия долей позиции
	ReduceOnly   bool    `json:"reduce_only"`
}

// Exposure - текущий размер позиций по сторонам (абсолютные значения)
type Exposure struct {
	Long  float64
	Short float64
}

// Net возвращает нетто-направление: >0 лонг, <0 шорт
func (e Exposure) Net() float64 {
	return e.Long - e.Short
}

// TickPlan - результат планирования одного тика
type TickPlan struct {
	Intents []OrderIntent
	// Новая опорная цена; 0 если сетка не сдвинулась
	NextReference float64
}

// planTick вычисляет намерения ордеров для текущей цены.
//
// Чистая функция: состояние стратегии и позиций приходит снаружи,
// побочных эффектов нет. Опорная цена стратегии - последний
// отработанный уровень сетки; сдвиг цены на полный шаг и более
// порождает парные намерения:
//
//	цена упала  - открытие лонга (покупка внизу) + закрытие шорта
//	цена выросла - открытие шорта (продажа вверху) + закрытие лонга
//
// lossStreak - число убыточных закрытий подряд, деформирует размер
// открытия через коэффициент защиты от падения.
func planTick(s *models.GridStrategy, price float64, exp Exposure, lossStreak int) TickPlan {
	if s.GridPriceDiff <= 0 || price <= 0 {
		return TickPlan{}
	}

	// Первый тик: опорной цены ещё нет. Якорим сетку на текущей цене
	// и открываем стартовую хеджированную пару.
	if s.ReferencePrice <= 0 {
		return TickPlan{
			Intents:       initialPair(s),
			NextReference: price,
		}
	}

	steps := utils.GridSteps(s.ReferencePrice, price, s.GridPriceDiff)
	if steps == 0 {
		return TickPlan{}
	}

	priceFell := steps < 0

	var intents []OrderIntent

	// Открывающая нога: лонг при падении, шорт при росте
	if !suppressOpens(s, exp, priceFell) {
		if priceFell && s.TradesLong() {
			if intent, ok := openIntent(s, models.PositionSideLong, exp.Long, lossStreak); ok {
				intents = append(intents, intent)
			}
		}
		if !priceFell && s.TradesShort() {
			if intent, ok := openIntent(s, models.PositionSideShort, exp.Short, lossStreak); ok {
				intents = append(intents, intent)
			}
		}
	}

	// Закрывающая нога: фиксация прибыли противоположной стороны
	if priceFell && s.TradesShort() {
		if intent, ok := closeIntent(s, models.PositionSideShort, exp.Short); ok {
			intents = append(intents, intent)
		}
	}
	if !priceFell && s.TradesLong() {
		if intent, ok := closeIntent(s, models.PositionSideLong, exp.Long); ok {
			intents = append(intents, intent)
		}
	}

	return TickPlan{
		Intents:       intents,
		NextReference: utils.NearestGridLevel(s.ReferencePrice, price, s.GridPriceDiff),
	}
}

// initialPair - стартовые открытия обеих сторон согласно политике стратегии
func initialPair(s *models.GridStrategy) []OrderIntent {
	var intents []OrderIntent
	if s.TradesLong() {
		if intent, ok := openIntent(s, models.PositionSideLong, 0, 0); ok {
			intents = append(intents, intent)
		}
	}
	if s.TradesShort() {
		if intent, ok := openIntent(s, models.PositionSideShort, 0, 0); ok {
			intents = append(intents, intent)
		}
	}
	return intents
}

// suppressOpens - приоритетное закрытие: тренд против нетто-стороны
// сетки переводит тик в режим только-закрытие
func suppressOpens(s *models.GridStrategy, exp Exposure, priceFell bool) bool {
	if !s.PriorityCloseOnTrend {
		return false
	}
	net := exp.Net()
	// Падение против нетто-лонга либо рост против нетто-шорта
	return (priceFell && net > 0) || (!priceFell && net < 0)
}

// openIntent строит открывающее намерение с учётом лимитов позиции
// и коэффициента защиты от падения
func openIntent(s *models.GridStrategy, side string, current float64, lossStreak int) (OrderIntent, bool) {
	qty := s.LegQuantity(side, models.DirectionOpen)
	if qty <= 0 {
		return OrderIntent{}, false
	}

	// Серия убыточных закрытий сжимает размер повторного входа
	if lossStreak > 0 && s.FallPrevention > 0 && s.FallPrevention < 1 {
		for i := 0; i < lossStreak; i++ {
			qty *= s.FallPrevention
		}
	}

	qty = utils.ClampQuantity(qty, current, s.MaxOpenQty)
	qty = utils.RoundToPrecision(qty, s.QtyPrecision)
	if qty <= 0 || (s.MinOpenQty > 0 && qty < s.MinOpenQty) {
		return OrderIntent{}, false
	}

	return OrderIntent{
		Symbol:       s.Symbol,
		PositionSide: side,
		Direction:    models.DirectionOpen,
		Quantity:     qty,
	}, true
}

// closeIntent строит закрывающее намерение, не превышающее текущую позицию
func closeIntent(s *models.GridStrategy, side string, current float64) (OrderIntent, bool) {
	if current <= 0 {
		return OrderIntent{}, false
	}

	qty := s.LegQuantity(side, models.DirectionClose)
	if qty <= 0 {
		return OrderIntent{}, false
	}
	if qty > current {
		qty = current
	}

	qty = utils.RoundToPrecision(qty, s.QtyPrecision)
	if qty <= 0 {
		return OrderIntent{}, false
	}

	return OrderIntent{
		Symbol:       s.Symbol,
		PositionSide: side,
		Direction:    models.DirectionClose,
		Quantity:     qty,
		ReduceOnly:   true,
	}, true
}
