package bot

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gridbot/internal/models"
	"gridbot/pkg/utils"
)

// Ошибки оптимизатора
var (
	ErrInvalidBudget   = errors.New("некорректные параметры бюджета")
	ErrDataUnavailable = errors.New("исторические данные недоступны")
)

// Лимиты подбора параметров
const (
	optimizerLookback  = 500  // свечей истории для оценки диапазона
	optimizerMaxGrids  = 200  // верхний предел числа уровней сетки
	boundaryWidenRatio = 0.25 // расширение диапазона при защите границ
)

// CandleSource поставляет исторические свечи (exchange.Client без подписи)
type CandleSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

// OptimizeParams подбирает параметры сетки под бюджет и целевой режим.
//
// Диапазон берётся из истории свечей (high/low за lookback), дальше
// целевой режим определяет компромисс между числом уровней и объёмом
// на уровень. Инварианты результата: шаг > 0, уровней >= 1,
// уровней * объём <= капитал.
func OptimizeParams(ctx context.Context, source CandleSource, req models.OptimizeRequest) (*models.OptimizeResult, error) {
	if err := validateOptimizeRequest(req); err != nil {
		return nil, err
	}

	interval := req.Interval
	if interval == "" {
		interval = "1h"
	}

	candles, err := source.GetKlines(ctx, req.Symbol, interval, optimizerLookback)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if len(candles) == 0 {
		return nil, ErrDataUnavailable
	}

	high, low := priceBand(candles)
	if high <= low {
		return nil, ErrDataUnavailable
	}

	result := planGrid(req, high, low)
	return result, nil
}

// validateOptimizeRequest проверяет бюджетные ограничения запроса
func validateOptimizeRequest(req models.OptimizeRequest) error {
	if err := utils.ValidateSymbol(req.Symbol); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBudget, err)
	}
	if req.TotalCapital <= 0 {
		return fmt.Errorf("%w: total capital must be positive", ErrInvalidBudget)
	}
	if req.MinTradeValue <= 0 || req.MaxTradeValue <= 0 {
		return fmt.Errorf("%w: trade value bounds must be positive", ErrInvalidBudget)
	}
	if req.MinTradeValue > req.MaxTradeValue {
		return fmt.Errorf("%w: min trade value exceeds max", ErrInvalidBudget)
	}
	if req.MinTradeValue > req.TotalCapital {
		return fmt.Errorf("%w: min trade value exceeds total capital", ErrInvalidBudget)
	}
	switch req.Target {
	case models.OptimizeTargetProfit, models.OptimizeTargetCost, models.OptimizeTargetBoundary, "":
	default:
		return fmt.Errorf("%w: unknown target %q", ErrInvalidBudget, req.Target)
	}
	return nil
}

// priceBand возвращает диапазон high/low по свечам
func priceBand(candles []models.Candle) (high, low float64) {
	low = math.MaxFloat64
	for _, c := range candles {
		if c.High > high {
			high = c.High
		}
		if c.Low > 0 && c.Low < low {
			low = c.Low
		}
	}
	if low == math.MaxFloat64 {
		low = 0
	}
	return high, low
}

// planGrid распределяет капитал по уровням согласно целевому режиму
func planGrid(req models.OptimizeRequest, high, low float64) *models.OptimizeResult {
	upper, lower := high, low

	var tradeValue float64
	switch req.Target {
	case models.OptimizeTargetCost:
		// Минимум сделок: максимальный объём на уровень
		tradeValue = req.MaxTradeValue
	case models.OptimizeTargetBoundary:
		// Защита границ: диапазон расширяется, объём средний
		span := high - low
		upper = high + span*boundaryWidenRatio
		lower = low - span*boundaryWidenRatio
		if lower < 0 {
			lower = low * (1 - boundaryWidenRatio)
		}
		tradeValue = (req.MinTradeValue + req.MaxTradeValue) / 2
	default:
		// Профит: максимум уровней, минимальный объём на уровень
		tradeValue = req.MinTradeValue
	}

	gridNumber := int(req.TotalCapital / tradeValue)
	if gridNumber < 1 {
		gridNumber = 1
		tradeValue = req.TotalCapital
	}
	if gridNumber > optimizerMaxGrids {
		gridNumber = optimizerMaxGrids
	}

	// Капитал не превышается: уровней * объём <= капитал
	for gridNumber > 1 && float64(gridNumber)*tradeValue > req.TotalCapital {
		gridNumber--
	}

	spacing := (upper - lower) / float64(gridNumber)

	return &models.OptimizeResult{
		GridSpacing: spacing,
		GridNumber:  gridNumber,
		TradeValue:  tradeValue,
		UpperBound:  upper,
		LowerBound:  lower,
	}
}
