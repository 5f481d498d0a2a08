package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/models"
	"gridbot/pkg/retry"
)

// Ошибки исполнителя
var (
	ErrNoIntents        = errors.New("пустой пакет намерений")
	ErrBatchAborted     = errors.New("пакет прерван ошибкой учётных данных")
	ErrInvalidLeverage  = errors.New("плечо вне диапазона 1..125")
	ErrInvalidCloseMode = errors.New("неизвестный режим закрытия")
)

// CloseMode - режим вычисления объёма закрытия
type CloseMode string

const (
	// CloseByAmount - объём задан в котируемой валюте (USDT), пересчёт по цене
	CloseByAmount CloseMode = "amount"
	// CloseByQuantity - объём задан в базовой валюте как есть
	CloseByQuantity CloseMode = "quantity"
	// CloseByPercentage - доля живой позиции на момент вызова
	CloseByPercentage CloseMode = "percentage"
)

// OrderResult - итог одного намерения в пакете
type OrderResult struct {
	Symbol       string  `json:"symbol"`
	PositionSide string  `json:"position_side"`
	Direction    string  `json:"direction"`
	Success      bool    `json:"success"`
	OrderID      string  `json:"order_id,omitempty"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// BatchSummary - агрегат пакета: возвращается всегда, даже при
// частичном отказе
type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// BatchResult - результаты пакета с агрегатом
type BatchResult struct {
	Results []OrderResult `json:"results"`
	Summary BatchSummary  `json:"summary"`
}

// LeverageSetting - одно изменение плеча в пакете
type LeverageSetting struct {
	Symbol   string `json:"symbol"`
	Leverage int    `json:"leverage"`
}

// LeverageResult - итог одного изменения плеча
type LeverageResult struct {
	Symbol  string `json:"symbol"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// LeverageReport - отчёт пакета изменения плеча.
// Accepted=true означает асинхронное исполнение без поштучных результатов.
type LeverageReport struct {
	Accepted    bool             `json:"accepted"`
	Results     []LeverageResult `json:"results,omitempty"`
	SuccessRate string           `json:"success_rate,omitempty"`
}

// HedgeImbalance - символ с односторонней (сломанной) позицией хеджа
type HedgeImbalance struct {
	Symbol   string  `json:"symbol"`
	LongQty  float64 `json:"long_qty"`
	ShortQty float64 `json:"short_qty"`
	OpenSide string  `json:"open_side"` // сторона с ненулевой позицией
}

// HedgeExecutor превращает намерения в биржевые вызовы.
//
// Изоляция отказов: отклонение одного символа не прерывает остальные,
// rate-limit ответы повторяются с backoff, ошибка учётных данных
// обрывает весь пакет (все позиции пакета на одном аккаунте).
type HedgeExecutor struct {
	factory exchange.Factory
	cfg     config.EngineConfig
	log     *zap.Logger
}

// NewHedgeExecutor создаёт исполнитель
func NewHedgeExecutor(factory exchange.Factory, cfg config.EngineConfig, log *zap.Logger) *HedgeExecutor {
	return &HedgeExecutor{factory: factory, cfg: cfg, log: log}
}

// BuildPositions исполняет пакет открывающих намерений.
//
// Символы исполняются параллельно (ограниченный пул), ноги одного
// символа последовательно с межзапросной паузой.
func (e *HedgeExecutor) BuildPositions(ctx context.Context, creds exchange.Credentials, intents []OrderIntent) (*BatchResult, error) {
	return e.executeBatch(ctx, creds, intents, nil)
}

// ClosePositions исполняет пакет закрывающих намерений.
//
// В режиме percentage объём вычисляется от живой позиции на момент
// вызова, в режиме amount - от котируемой стоимости по текущей цене.
func (e *HedgeExecutor) ClosePositions(ctx context.Context, creds exchange.Credentials, intents []OrderIntent, mode CloseMode) (*BatchResult, error) {
	switch mode {
	case CloseByAmount, CloseByQuantity, CloseByPercentage, "":
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCloseMode, mode)
	}

	client, err := e.factory.Client(creds)
	if err != nil {
		return nil, err
	}

	resolved := make([]OrderIntent, 0, len(intents))
	if mode == CloseByPercentage || mode == CloseByAmount {
		positions, err := client.GetOpenPositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve close quantities: %w", err)
		}
		for _, intent := range intents {
			qty, ok := resolveCloseQuantity(intent, mode, positions)
			if !ok {
				continue
			}
			intent.Quantity = qty
			intent.ReduceOnly = true
			resolved = append(resolved, intent)
		}
	} else {
		for _, intent := range intents {
			intent.ReduceOnly = true
			resolved = append(resolved, intent)
		}
	}

	return e.executeBatch(ctx, creds, resolved, client)
}

// resolveCloseQuantity пересчитывает объём закрытия из живой позиции
func resolveCloseQuantity(intent OrderIntent, mode CloseMode, positions []*exchange.Position) (float64, bool) {
	var pos *exchange.Position
	wantSide := exchangePositionSide(intent.PositionSide)
	for _, p := range positions {
		if p.Symbol == intent.Symbol && p.PositionSide == wantSide {
			pos = p
			break
		}
	}
	if pos == nil || pos.Amount <= 0 {
		return 0, false
	}

	switch mode {
	case CloseByPercentage:
		pct := intent.Percentage
		if pct <= 0 || pct > 100 {
			return 0, false
		}
		return pos.Amount * pct / 100, true
	case CloseByAmount:
		// intent.Quantity трактуется как стоимость в USDT
		if pos.MarkPrice <= 0 {
			return 0, false
		}
		qty := intent.Quantity / pos.MarkPrice
		if qty > pos.Amount {
			qty = pos.Amount
		}
		return qty, qty > 0
	}
	return 0, false
}

// executeBatch - общий цикл исполнения пакета.
//
// client может быть nil: тогда он строится из creds.
func (e *HedgeExecutor) executeBatch(ctx context.Context, creds exchange.Credentials, intents []OrderIntent, client exchange.Client) (*BatchResult, error) {
	if len(intents) == 0 {
		return nil, ErrNoIntents
	}

	if client == nil {
		var err error
		client, err = e.factory.Client(creds)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.orderTimeout())
	defer cancel()

	// Группировка по символу: ноги одного символа последовательны
	groups := make(map[string][]OrderIntent)
	var symbols []string
	for _, intent := range intents {
		if _, ok := groups[intent.Symbol]; !ok {
			symbols = append(symbols, intent.Symbol)
		}
		groups[intent.Symbol] = append(groups[intent.Symbol], intent)
	}

	var (
		mu      sync.Mutex
		results []OrderResult
		aborted atomic.Bool
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, e.symbolWorkers())

	for _, symbol := range symbols {
		legs := groups[symbol]
		wg.Add(1)
		go func(symbol string, legs []OrderIntent) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			for i, intent := range legs {
				if aborted.Load() || ctx.Err() != nil {
					return
				}
				if i > 0 {
					// Межзапросная пауза между ногами хеджа
					select {
					case <-time.After(e.cfg.LegDelay):
					case <-ctx.Done():
						return
					}
				}

				result, placeErr := e.placeOne(ctx, client, intent)

				mu.Lock()
				results = append(results, result)
				mu.Unlock()

				if exchange.IsCredential(placeErr) {
					// Невалидный ключ провалит и все остальные вызовы
					aborted.Store(true)
					return
				}
			}
		}(symbol, legs)
	}

	wg.Wait()

	if aborted.Load() {
		return e.summarize(results), ErrBatchAborted
	}

	return e.summarize(results), nil
}

// placeOne исполняет одно намерение с retry на rate-limit.
// Возвращает исходную ошибку отдельно для классификации вызывающим.
func (e *HedgeExecutor) placeOne(ctx context.Context, client exchange.Client, intent OrderIntent) (OrderResult, error) {
	result := OrderResult{
		Symbol:       intent.Symbol,
		PositionSide: intent.PositionSide,
		Direction:    intent.Direction,
		Quantity:     intent.Quantity,
	}

	req := exchange.OrderRequest{
		Symbol:       intent.Symbol,
		Side:         orderSide(intent),
		PositionSide: exchangePositionSide(intent.PositionSide),
		Type:         exchange.OrderTypeMarket,
		Quantity:     intent.Quantity,
		ReduceOnly:   intent.ReduceOnly,
	}

	retryCfg := retry.RateLimitConfig()
	if e.cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = e.cfg.MaxRetries
	}
	// Повторяются только rate-limit ответы: бизнес-отказы биржи финальны
	retryCfg.RetryIf = exchange.IsRateLimit
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.log.Warn("rate limit, повтор ордера",
			zap.String("symbol", intent.Symbol),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		metricOrderRetries.Inc()
	}

	order, err := retry.DoWithResult(ctx, func() (*exchange.Order, error) {
		return client.PlaceOrder(ctx, req)
	}, retryCfg)

	if err != nil {
		result.Error = err.Error()
		e.log.Error("ордер отклонён",
			zap.String("symbol", intent.Symbol),
			zap.String("direction", intent.Direction),
			zap.Error(err))
		metricOrdersTotal.WithLabelValues(intent.Direction, "failed").Inc()
		return result, err
	}

	result.Success = true
	result.OrderID = order.OrderID
	result.AvgPrice = order.AvgPrice
	if order.ExecutedQty > 0 {
		result.Quantity = order.ExecutedQty
	}
	metricOrdersTotal.WithLabelValues(intent.Direction, "success").Inc()
	return result, nil
}

// summarize собирает агрегат пакета
func (e *HedgeExecutor) summarize(results []OrderResult) *BatchResult {
	batch := &BatchResult{Results: results}
	batch.Summary.Total = len(results)
	for _, r := range results {
		if r.Success {
			batch.Summary.Success++
		} else {
			batch.Summary.Failed++
		}
	}
	return batch
}

// SetLeverage применяет пакет настроек плеча.
//
// Валидация до любого биржевого вызова. Пакет до LeverageSyncLimit
// исполняется синхронно с паузой между запросами и возвращает полные
// результаты; больший пакет уходит в фон и сразу возвращает accepted -
// блокировать вызывающего на череде rate-limited вызовов нельзя.
func (e *HedgeExecutor) SetLeverage(ctx context.Context, creds exchange.Credentials, settings []LeverageSetting, delay time.Duration) (*LeverageReport, error) {
	if len(settings) == 0 {
		return nil, ErrNoIntents
	}
	for _, s := range settings {
		if s.Symbol == "" {
			return nil, fmt.Errorf("%w: пустой символ", ErrInvalidLeverage)
		}
		if s.Leverage < models.MinLeverage || s.Leverage > models.MaxLeverage {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidLeverage, s.Symbol, s.Leverage)
		}
	}

	client, err := e.factory.Client(creds)
	if err != nil {
		return nil, err
	}

	if len(settings) > e.leverageSyncLimit() {
		// Fire-and-forget: отказы только в логах
		go e.applyLeverage(context.WithoutCancel(ctx), client, settings, delay, true)
		return &LeverageReport{Accepted: true}, nil
	}

	results := e.applyLeverage(ctx, client, settings, delay, false)

	success := 0
	for _, r := range results {
		if r.Success {
			success++
		}
	}
	rate := float64(success) / float64(len(results)) * 100

	return &LeverageReport{
		Results:     results,
		SuccessRate: fmt.Sprintf("%.2f%%", rate),
	}, nil
}

// applyLeverage последовательно применяет настройки с паузой между запросами
func (e *HedgeExecutor) applyLeverage(ctx context.Context, client exchange.Client, settings []LeverageSetting, delay time.Duration, async bool) []LeverageResult {
	results := make([]LeverageResult, 0, len(settings))

	for i, s := range settings {
		if i > 0 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return results
			}
		}

		err := client.SetLeverage(ctx, s.Symbol, s.Leverage)
		result := LeverageResult{Symbol: s.Symbol, Success: err == nil}
		if err != nil {
			result.Error = err.Error()
			if async {
				e.log.Error("изменение плеча не применилось",
					zap.String("symbol", s.Symbol),
					zap.Int("leverage", s.Leverage),
					zap.Error(err))
			}
		}
		results = append(results, result)
	}

	return results
}

// ApplyMarginProfile выставляет тип маржи и плечо символа на бирже.
//
// Биржа хранит обе настройки per-symbol, поэтому профиль применяется
// при каждом старте исполнения стратегии. Ответ "тип маржи уже
// установлен" отказом не считается.
func (e *HedgeExecutor) ApplyMarginProfile(ctx context.Context, creds exchange.Credentials, symbol string, leverage int, marginType string) error {
	if symbol == "" {
		return fmt.Errorf("%w: пустой символ", ErrInvalidLeverage)
	}
	if leverage < models.MinLeverage || leverage > models.MaxLeverage {
		return fmt.Errorf("%w: %s=%d", ErrInvalidLeverage, symbol, leverage)
	}

	client, err := e.factory.Client(creds)
	if err != nil {
		return err
	}

	if marginType != "" {
		if err := client.SetMarginType(ctx, symbol, marginType); err != nil && !isMarginUnchanged(err) {
			return fmt.Errorf("set margin type %s: %w", symbol, err)
		}
	}
	if err := client.SetLeverage(ctx, symbol, leverage); err != nil {
		return fmt.Errorf("set leverage %s: %w", symbol, err)
	}
	return nil
}

// isMarginUnchanged - binance отвечает -4046 "No need to change margin type"
func isMarginUnchanged(err error) bool {
	var ee *exchange.ExchangeError
	return errors.As(err, &ee) && ee.Code == -4046
}

// OpenPositions возвращает живые позиции аккаунта
func (e *HedgeExecutor) OpenPositions(ctx context.Context, creds exchange.Credentials) ([]*exchange.Position, error) {
	client, err := e.factory.Client(creds)
	if err != nil {
		return nil, err
	}
	return client.GetOpenPositions(ctx)
}

// InspectHedgeSymmetry ищет символы со сломанным хеджем.
//
// Сломанный хедж - ровно одна сторона с ненулевой позицией. Символы
// с обеими нулевыми или обеими ненулевыми сторонами не отчитываются.
func (e *HedgeExecutor) InspectHedgeSymmetry(ctx context.Context, creds exchange.Credentials) ([]HedgeImbalance, error) {
	client, err := e.factory.Client(creds)
	if err != nil {
		return nil, err
	}

	positions, err := client.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect hedge symmetry: %w", err)
	}

	type pair struct{ long, short float64 }
	bySymbol := make(map[string]*pair)
	var order []string
	for _, p := range positions {
		entry, ok := bySymbol[p.Symbol]
		if !ok {
			entry = &pair{}
			bySymbol[p.Symbol] = entry
			order = append(order, p.Symbol)
		}
		switch p.PositionSide {
		case exchange.PositionLong:
			entry.long = p.Amount
		case exchange.PositionShort:
			entry.short = p.Amount
		}
	}

	var imbalanced []HedgeImbalance
	for _, symbol := range order {
		entry := bySymbol[symbol]
		if (entry.long > 0) == (entry.short > 0) {
			continue
		}
		side := exchange.PositionLong
		if entry.short > 0 {
			side = exchange.PositionShort
		}
		imbalanced = append(imbalanced, HedgeImbalance{
			Symbol:   symbol,
			LongQty:  entry.long,
			ShortQty: entry.short,
			OpenSide: side,
		})
	}

	metricHedgeImbalance.Set(float64(len(imbalanced)))
	return imbalanced, nil
}

// ============ Маппинг намерений в параметры биржи ============

// orderSide возвращает сторону ордера для ноги хеджа:
// открытие лонга и закрытие шорта - покупка, остальное - продажа
func orderSide(intent OrderIntent) string {
	long := intent.PositionSide == models.PositionSideLong
	open := intent.Direction == models.DirectionOpen
	if long == open {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

// exchangePositionSide переводит сторону модели в нотацию биржи
func exchangePositionSide(side string) string {
	if side == models.PositionSideShort {
		return exchange.PositionShort
	}
	return exchange.PositionLong
}

func (e *HedgeExecutor) orderTimeout() time.Duration {
	if e.cfg.OrderTimeout > 0 {
		return e.cfg.OrderTimeout
	}
	return 30 * time.Second
}

func (e *HedgeExecutor) symbolWorkers() int {
	if e.cfg.MaxSymbolWorkers > 0 {
		return e.cfg.MaxSymbolWorkers
	}
	return 4
}

func (e *HedgeExecutor) leverageSyncLimit() int {
	if e.cfg.LeverageSyncLimit > 0 {
		return e.cfg.LeverageSyncLimit
	}
	return 5
}
