package utils

// math.go - математические утилиты для сеточной торговли
//
// Все функции чистые, без побочных эффектов. Округление шагов цены и
// объёма идёт через decimal: float64-арифметика на мелких шагах
// (0.001 и ниже) теряет точность и биржа отклоняет такие значения.

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundToStep округляет значение ВНИЗ до ближайшего кратного step.
//
// Округление вниз безопасно для торговли: не превышаем доступные средства
// и лимит позиции. Если step <= 0, возвращает исходное значение.
//
// Примеры:
//   - RoundToStep(0.123456, 0.001) = 0.123
//   - RoundToStep(1.999, 0.01) = 1.99
func RoundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	f, _ := v.Div(s).Floor().Mul(s).Float64()
	return f
}

// RoundToPrecision округляет значение вниз до precision знаков после запятой.
//
// Используется для приведения цены/объёма к точности символа перед
// отправкой на биржу. Отрицательная precision трактуется как 0.
func RoundToPrecision(value float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	f, _ := decimal.NewFromFloat(value).RoundFloor(int32(precision)).Float64()
	return f
}

// GridSteps возвращает количество полных шагов сетки между ценами.
//
// Знак показывает направление: > 0 цена выросла, < 0 упала.
// При spacing <= 0 возвращает 0 (защита от деления на ноль).
func GridSteps(reference, price, spacing float64) int {
	if spacing <= 0 {
		return 0
	}
	return int(math.Trunc((price - reference) / spacing))
}

// NearestGridLevel возвращает ближайший к price уровень сетки,
// построенной от reference с шагом spacing.
func NearestGridLevel(reference, price, spacing float64) float64 {
	if spacing <= 0 {
		return reference
	}
	steps := math.Round((price - reference) / spacing)
	return reference + steps*spacing
}

// ClampQuantity ограничивает объём ордера так, чтобы открытая позиция
// осталась в пределах [0, maxOpen].
//
// current - текущая открытая позиция стороны, qty - желаемый объём.
// Возвращает урезанный объём (может быть 0).
func ClampQuantity(qty, current, maxOpen float64) float64 {
	if qty <= 0 {
		return 0
	}
	if maxOpen > 0 && current+qty > maxOpen {
		qty = maxOpen - current
	}
	if qty < 0 {
		return 0
	}
	return qty
}
