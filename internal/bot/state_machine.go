package bot

import "gridbot/internal/models"

// ValidTransitions определяет допустимые переходы между состояниями стратегии
var ValidTransitions = map[string][]string{
	models.StatusCreated: {models.StatusRunning, models.StatusDeleted},
	models.StatusRunning: {models.StatusPaused, models.StatusStopped, models.StatusDeleted},
	models.StatusPaused:  {models.StatusRunning, models.StatusStopped, models.StatusDeleted},
	models.StatusStopped: {models.StatusDeleted}, // Остановленная стратегия не возобновляется
	models.StatusDeleted: {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание состояния для UI
func StatusInfo(s string) string {
	switch s {
	case models.StatusCreated:
		return "Стратегия создана (ожидание запуска)"
	case models.StatusRunning:
		return "Сетка торгуется"
	case models.StatusPaused:
		return "Торговля приостановлена (ценовая зона паузы)"
	case models.StatusStopped:
		return "Стратегия остановлена"
	case models.StatusDeleted:
		return "Стратегия удалена"
	default:
		return "Неизвестное состояние"
	}
}

// IsActive возвращает true если стратегия занимает слот исполнения
func IsActive(s string) bool {
	return s == models.StatusRunning || s == models.StatusPaused
}

// RiskAction - действие по итогам проверки рисков на тике
type RiskAction int

const (
	// RiskNone - условия в норме, тик продолжается
	RiskNone RiskAction = iota
	// RiskStop - выход цены за границы диапазона: остановка без закрытия
	RiskStop
	// RiskStopAndClose - стоп-лосс или тейк-профит: остановка и закрытие всех позиций
	RiskStopAndClose
	// RiskPause - цена в зоне паузы: тики пропускаются, стратегия активна
	RiskPause
	// RiskResume - цена вернулась из зоны паузы
	RiskResume
)

func (a RiskAction) String() string {
	switch a {
	case RiskStop:
		return "stop"
	case RiskStopAndClose:
		return "stop_and_close"
	case RiskPause:
		return "pause"
	case RiskResume:
		return "resume"
	default:
		return "none"
	}
}

// EvaluateRisk проверяет защитные условия стратегии для текущей цены.
//
// Порядок проверки фиксирован: границы диапазона, затем SL/TP,
// затем зона паузы. Срабатывает первое выполненное условие.
func EvaluateRisk(s *models.GridStrategy, price float64) RiskAction {
	// Выход за границы диапазона - остановка, позиции не трогаем
	if s.UpperLimitPrice > 0 && price >= s.UpperLimitPrice {
		return RiskStop
	}
	if s.LowerLimitPrice > 0 && price <= s.LowerLimitPrice {
		return RiskStop
	}

	// Стоп-лосс / тейк-профит - остановка с закрытием позиций
	if s.StopLossPrice > 0 && price <= s.StopLossPrice {
		return RiskStopAndClose
	}
	if s.TakeProfitPrice > 0 && price >= s.TakeProfitPrice {
		return RiskStopAndClose
	}

	// Зона паузы: выше верхнего или ниже нижнего порога торговля замирает,
	// возврат внутрь зоны возобновляет её автоматически. Без настроенных
	// порогов возобновления нет: PAUSED без зоны - ручная пауза.
	hasPauseBand := s.PauseAbovePrice > 0 || s.PauseBelowPrice > 0
	inPauseZone := (s.PauseAbovePrice > 0 && price >= s.PauseAbovePrice) ||
		(s.PauseBelowPrice > 0 && price <= s.PauseBelowPrice)

	switch {
	case inPauseZone && s.Status == models.StatusRunning:
		return RiskPause
	case hasPauseBand && !inPauseZone && s.Status == models.StatusPaused:
		return RiskResume
	}

	return RiskNone
}
