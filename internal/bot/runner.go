package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gridbot/internal/exchange"
	"gridbot/internal/feed"
	"gridbot/internal/models"
)

// legState - накопленное состояние одной стороны позиции
type legState struct {
	qty      float64 // открытый объём
	avgEntry float64 // средняя цена входа
}

// apply обновляет среднюю цену входа после открытия
func (l *legState) applyOpen(price, qty float64) {
	total := l.qty + qty
	if total <= 0 {
		return
	}
	l.avgEntry = (l.avgEntry*l.qty + price*qty) / total
	l.qty = total
}

// applyClose уменьшает позицию и возвращает реализованный PnL
func (l *legState) applyClose(price, qty float64, long bool) float64 {
	if qty > l.qty {
		qty = l.qty
	}
	l.qty -= qty
	if l.qty == 0 {
		defer func() { l.avgEntry = 0 }()
	}
	if long {
		return (price - l.avgEntry) * qty
	}
	return (l.avgEntry - price) * qty
}

// runner - исполнение одной стратегии: собственный таймер тиков,
// single-flight защита от наложения, риск-проверки перед планированием.
//
// Состояние стратегии принадлежит runner'у после добавления в движок;
// внешние изменения приходят только через updateStrategy/setStatus.
type runner struct {
	mu       sync.Mutex
	strategy *models.GridStrategy

	creds exchange.Credentials
	sub   *feed.Subscription

	executor   *HedgeExecutor
	strategies StrategyStore
	history    HistoryStore
	log        *zap.Logger

	// Runtime-состояние сетки
	long       legState
	short      legState
	lossStreak int

	// Пауза поставлена зоной цены, а не через API: только такая
	// снимается автоматически при возврате цены в коридор
	autoPaused bool

	// Метка последнего инкремента metricActiveStrategies:
	// декремент при снятии с учёта обязан совпадать с ней
	gaugeLabel string

	inFlight atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// newRunner создаёт runner; позиции подтягиваются при старте цикла
func newRunner(s *models.GridStrategy, creds exchange.Credentials, sub *feed.Subscription,
	executor *HedgeExecutor, strategies StrategyStore, history HistoryStore, log *zap.Logger) *runner {
	return &runner{
		strategy:   s,
		creds:      creds,
		sub:        sub,
		executor:   executor,
		strategies: strategies,
		history:    history,
		log:        log.With(zap.Int64("strategy_id", s.ID), zap.String("symbol", s.Symbol)),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// loop - цикл тиков стратегии. Работает до stop().
func (r *runner) loop(ctx context.Context) {
	defer close(r.done)
	defer r.sub.Close()

	r.applyMarginProfile(ctx)
	r.seedExposure(ctx)

	ticker := time.NewTicker(r.strategy.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// applyMarginProfile применяет плечо и тип маржи стратегии на бирже.
// Отказ торговлю не блокирует: сетка работает на текущих настройках символа.
func (r *runner) applyMarginProfile(ctx context.Context) {
	r.mu.Lock()
	symbol := r.strategy.Symbol
	leverage := r.strategy.Leverage
	marginType := r.strategy.MarginType
	r.mu.Unlock()

	if leverage <= 0 {
		return
	}
	if err := r.executor.ApplyMarginProfile(ctx, r.creds, symbol, leverage, marginType); err != nil {
		r.log.Warn("профиль маржи не применился",
			zap.Int("leverage", leverage),
			zap.String("margin_type", marginType),
			zap.Error(err))
	}
}

// seedExposure подтягивает живые позиции при старте: после рестарта
// процесса сетка продолжает от реального состояния аккаунта
func (r *runner) seedExposure(ctx context.Context) {
	positions, err := r.executor.OpenPositions(ctx, r.creds)
	if err != nil {
		r.log.Warn("не удалось прочитать позиции при старте", zap.Error(err))
		return
	}

	symbol := r.strategy.Symbol
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		switch p.PositionSide {
		case exchange.PositionLong:
			r.long = legState{qty: p.Amount, avgEntry: p.EntryPrice}
		case exchange.PositionShort:
			r.short = legState{qty: p.Amount, avgEntry: p.EntryPrice}
		}
	}
}

// tick - одна итерация стратегии
func (r *runner) tick(ctx context.Context) {
	// Single-flight: наложение тиков запрещено, опоздавший пропускается
	if !r.inFlight.CompareAndSwap(false, true) {
		metricTicksSkipped.WithLabelValues("inflight").Inc()
		return
	}
	defer r.inFlight.Store(false)

	price, _, ok := r.sub.Price()
	if !ok {
		// Фид молчит или цена устарела: тик без побочных эффектов,
		// следующий повторит попытку сам
		metricTicksSkipped.WithLabelValues("price_unavailable").Inc()
		r.log.Debug("цена недоступна, тик пропущен")
		return
	}

	started := time.Now()
	defer func() {
		metricTickDuration.WithLabelValues(r.strategy.Symbol).Observe(time.Since(started).Seconds())
	}()

	r.mu.Lock()
	s := *r.strategy // снапшот конфигурации на время тика
	autoPaused := r.autoPaused
	r.mu.Unlock()

	// Риск-проверки до планирования
	switch EvaluateRisk(&s, price) {
	case RiskStop:
		r.log.Warn("цена вышла за границы диапазона, стратегия остановлена",
			zap.Float64("price", price))
		r.transition(models.StatusStopped)
		r.stop()
		return
	case RiskStopAndClose:
		r.log.Warn("сработал стоп-лосс/тейк-профит, закрытие позиций",
			zap.Float64("price", price))
		r.closeAll(ctx, price)
		r.transition(models.StatusStopped)
		r.stop()
		return
	case RiskPause:
		r.log.Info("цена в зоне паузы, торговля приостановлена",
			zap.Float64("price", price))
		r.transition(models.StatusPaused)
		r.mu.Lock()
		r.autoPaused = true
		r.mu.Unlock()
		return
	case RiskResume:
		// Ручную паузу зона цены не снимает
		if !autoPaused {
			metricTicksSkipped.WithLabelValues("paused").Inc()
			return
		}
		r.log.Info("цена вернулась из зоны паузы, торговля возобновлена",
			zap.Float64("price", price))
		r.transition(models.StatusRunning)
		r.mu.Lock()
		r.autoPaused = false
		r.mu.Unlock()
		s.Status = models.StatusRunning
	}

	if s.Status != models.StatusRunning {
		metricTicksSkipped.WithLabelValues("paused").Inc()
		return
	}

	plan := planTick(&s, price, Exposure{Long: r.long.qty, Short: r.short.qty}, r.lossStreak)
	if len(plan.Intents) == 0 && plan.NextReference == 0 {
		return
	}

	if len(plan.Intents) > 0 {
		batch, err := r.executor.BuildPositions(ctx, r.creds, plan.Intents)
		if err != nil {
			r.log.Error("пакет намерений не исполнен", zap.Error(err))
			return
		}
		r.applyFills(batch, price)
	}

	// Опорная цена двигается только после исполнения тика
	if plan.NextReference > 0 {
		r.advanceReference(price, plan.NextReference)
	}
}

// applyFills обновляет состояние ног и пишет историю по успешным ордерам
func (r *runner) applyFills(batch *BatchResult, tickPrice float64) {
	for _, result := range batch.Results {
		if !result.Success {
			continue
		}

		fillPrice := result.AvgPrice
		if fillPrice <= 0 {
			fillPrice = tickPrice
		}

		long := result.PositionSide == models.PositionSideLong
		leg := &r.short
		if long {
			leg = &r.long
		}

		var pnl float64
		now := time.Now()
		row := &models.GridTradeHistory{
			StrategyID:   r.strategy.ID,
			Symbol:       result.Symbol,
			PositionSide: result.PositionSide,
			Direction:    result.Direction,
			EntryTime:    now,
			Price:        fillPrice,
			Quantity:     result.Quantity,
		}

		if result.Direction == models.DirectionClose {
			pnl = leg.applyClose(fillPrice, result.Quantity, long)
			row.RealizedPnl = pnl
			row.ExitTime = &now

			// Серия убыточных закрытий управляет демпфированием входа
			if pnl < 0 {
				r.lossStreak++
			} else {
				r.lossStreak = 0
			}
		} else {
			leg.applyOpen(fillPrice, result.Quantity)
		}

		if err := r.history.Insert(row); err != nil {
			// Сделка на бирже уже случилась: теряем только строку аудита
			r.log.Error("история сделки не записана", zap.Error(err))
		}
	}
}

// closeAll закрывает обе стороны позиции целиком (стоп-лосс/тейк-профит)
func (r *runner) closeAll(ctx context.Context, price float64) {
	s := r.strategy
	var intents []OrderIntent
	if r.long.qty > 0 {
		intents = append(intents, OrderIntent{
			Symbol:       s.Symbol,
			PositionSide: models.PositionSideLong,
			Direction:    models.DirectionClose,
			Percentage:   100,
		})
	}
	if r.short.qty > 0 {
		intents = append(intents, OrderIntent{
			Symbol:       s.Symbol,
			PositionSide: models.PositionSideShort,
			Direction:    models.DirectionClose,
			Percentage:   100,
		})
	}
	if len(intents) == 0 {
		return
	}

	batch, err := r.executor.ClosePositions(ctx, r.creds, intents, CloseByPercentage)
	if err != nil {
		r.log.Error("финальное закрытие позиций не исполнено", zap.Error(err))
		return
	}
	r.applyFills(batch, price)
}

// transition переводит стратегию в новый статус с персистом
func (r *runner) transition(to string) {
	r.mu.Lock()
	from := r.strategy.Status
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return
	}
	r.strategy.Status = to
	r.mu.Unlock()

	r.trackStatusGauge(to)

	if err := r.strategies.UpdateStatus(r.strategy.ID, to); err != nil {
		r.log.Error("статус стратегии не сохранён",
			zap.String("status", to), zap.Error(err))
	}
}

// advanceReference двигает опорную цену сетки (+ цену открытия на первом тике)
func (r *runner) advanceReference(price, reference float64) {
	r.mu.Lock()
	if r.strategy.OpenPrice <= 0 {
		r.strategy.OpenPrice = price
	}
	r.strategy.ReferencePrice = reference
	open, ref := r.strategy.OpenPrice, r.strategy.ReferencePrice
	id := r.strategy.ID
	r.mu.Unlock()

	if err := r.strategies.UpdateReferencePrice(id, open, ref); err != nil {
		r.log.Error("опорная цена не сохранена", zap.Error(err))
	}
}

// setStatus применяет внешний переход (pause/resume через API).
// Внешний переход сбрасывает признак авто-паузы: PAUSED руками
// держится до явного resume.
func (r *runner) setStatus(status string) {
	r.mu.Lock()
	r.strategy.Status = status
	r.autoPaused = false
	r.mu.Unlock()
	r.trackStatusGauge(status)
}

// trackStatusGauge переводит gauge активных стратегий на новую метку
func (r *runner) trackStatusGauge(to string) {
	r.mu.Lock()
	prev := r.gaugeLabel
	r.gaugeLabel = to
	r.mu.Unlock()

	if prev != "" {
		metricActiveStrategies.WithLabelValues(prev).Dec()
	}
	if to != "" {
		metricActiveStrategies.WithLabelValues(to).Inc()
	}
}

// releaseStatusGauge снимает стратегию с gauge. Идемпотентен:
// снятие с учёта может прийти и от движка, и от самого runner'а.
func (r *runner) releaseStatusGauge() {
	r.mu.Lock()
	prev := r.gaugeLabel
	r.gaugeLabel = ""
	r.mu.Unlock()

	if prev != "" {
		metricActiveStrategies.WithLabelValues(prev).Dec()
	}
}

// updateStrategy заменяет конфигурацию на лету (update через API)
func (r *runner) updateStrategy(s *models.GridStrategy) {
	r.mu.Lock()
	// Runtime-якоря переживают обновление конфигурации
	s.OpenPrice = r.strategy.OpenPrice
	if s.ReferencePrice <= 0 {
		s.ReferencePrice = r.strategy.ReferencePrice
	}
	r.strategy = s
	r.mu.Unlock()
}

// status возвращает текущий статус стратегии
func (r *runner) status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.strategy.Status
}

// stop останавливает цикл тиков. Текущий тик дорабатывает до конца.
func (r *runner) stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

// wait блокирует до завершения цикла
func (r *runner) wait() {
	<-r.done
}
