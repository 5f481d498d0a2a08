package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/feed"
	"gridbot/internal/models"
)

// Ошибки движка
var (
	ErrStrategyNotRunning = errors.New("стратегия не зарегистрирована в движке")
	ErrEngineStopped      = errors.New("движок остановлен")
)

// StrategyStore - срез репозитория стратегий, нужный движку
type StrategyStore interface {
	UpdateStatus(id int64, status string) error
	UpdateReferencePrice(id int64, openPrice, referencePrice float64) error
	ListActive() ([]*models.GridStrategy, error)
}

// HistoryStore - запись истории сделок
type HistoryStore interface {
	Insert(h *models.GridTradeHistory) error
}

// CredentialProvider поставляет учётные данные по ключу владельца.
// Хранение и шифрование ключей - зона внешнего keystore.
type CredentialProvider interface {
	Credentials(key string) (exchange.Credentials, error)
}

// Engine управляет множеством независимых стратегий.
//
// Каждая стратегия живёт в собственном runner'е со своим таймером;
// общих блокировок между стратегиями нет, изоляция по-стратегийная.
// Движок владеет подписками на фид и жизненным циклом runner'ов.
type Engine struct {
	cfg      config.EngineConfig
	executor *HedgeExecutor
	tracker  *feed.Tracker

	strategies StrategyStore
	history    HistoryStore
	creds      CredentialProvider
	log        *zap.Logger

	mu      sync.Mutex
	runners map[int64]*runner
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine создаёт движок
func NewEngine(cfg config.EngineConfig, executor *HedgeExecutor, tracker *feed.Tracker,
	strategies StrategyStore, history HistoryStore, creds CredentialProvider, log *zap.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		executor:   executor,
		tracker:    tracker,
		strategies: strategies,
		history:    history,
		creds:      creds,
		log:        log,
		runners:    make(map[int64]*runner),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// AddStrategy запускает исполнение стратегии
func (e *Engine) AddStrategy(s *models.GridStrategy) error {
	creds, err := e.creds.Credentials(s.CredentialKey)
	if err != nil {
		return fmt.Errorf("credentials for %q: %w", s.CredentialKey, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrEngineStopped
	}
	if _, exists := e.runners[s.ID]; exists {
		return nil
	}

	sub, err := e.tracker.Subscribe(s.Symbol)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.Symbol, err)
	}

	r := newRunner(s, creds, sub, e.executor, e.strategies, e.history, e.log)
	e.runners[s.ID] = r
	r.trackStatusGauge(s.Status)

	go func() {
		r.loop(e.ctx)
		// Самостоятельная остановка (риск-стоп) снимает runner с учёта
		e.mu.Lock()
		if e.runners[s.ID] == r {
			delete(e.runners, s.ID)
		}
		e.mu.Unlock()
		r.releaseStatusGauge()
	}()

	e.log.Info("стратегия запущена",
		zap.Int64("strategy_id", s.ID),
		zap.String("symbol", s.Symbol))
	return nil
}

// RemoveStrategy снимает стратегию с исполнения (stop/delete).
// Текущий тик дорабатывает, следующие не планируются.
func (e *Engine) RemoveStrategy(id int64) {
	e.mu.Lock()
	r, ok := e.runners[id]
	if ok {
		delete(e.runners, id)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	r.releaseStatusGauge()
	r.stop()
	e.log.Info("стратегия снята с исполнения", zap.Int64("strategy_id", id))
}

// PauseStrategy переводит runner в паузу: тики идут, намерения не эмитятся
func (e *Engine) PauseStrategy(id int64) error {
	r, err := e.runner(id)
	if err != nil {
		return err
	}
	r.setStatus(models.StatusPaused)
	return nil
}

// ResumeStrategy возобновляет торговлю
func (e *Engine) ResumeStrategy(id int64) error {
	r, err := e.runner(id)
	if err != nil {
		return err
	}
	r.setStatus(models.StatusRunning)
	return nil
}

// UpdateStrategy подменяет конфигурацию работающей стратегии
func (e *Engine) UpdateStrategy(s *models.GridStrategy) error {
	r, err := e.runner(s.ID)
	if err != nil {
		return err
	}
	r.updateStrategy(s)
	return nil
}

// IsRunning возвращает true если стратегия зарегистрирована в движке
func (e *Engine) IsRunning(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runners[id]
	return ok
}

func (e *Engine) runner(id int64) (*runner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runners[id]
	if !ok {
		return nil, ErrStrategyNotRunning
	}
	return r, nil
}

// Recover поднимает активные стратегии после рестарта процесса
func (e *Engine) Recover() error {
	active, err := e.strategies.ListActive()
	if err != nil {
		return fmt.Errorf("recover strategies: %w", err)
	}

	recovered := 0
	for _, s := range active {
		if err := e.AddStrategy(s); err != nil {
			// Одна битая стратегия не мешает поднять остальные
			e.log.Error("стратегия не восстановлена",
				zap.Int64("strategy_id", s.ID),
				zap.Error(err))
			continue
		}
		recovered++
	}

	e.log.Info("восстановление стратегий завершено",
		zap.Int("total", len(active)),
		zap.Int("recovered", recovered))
	return nil
}

// Shutdown останавливает все runner'ы и дожидается завершения их тиков
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.stopped = true
	runners := make([]*runner, 0, len(e.runners))
	for id, r := range e.runners {
		runners = append(runners, r)
		delete(e.runners, id)
	}
	e.mu.Unlock()

	for _, r := range runners {
		r.stop()
	}
	for _, r := range runners {
		r.wait()
		r.releaseStatusGauge()
	}

	e.cancel()
	e.tracker.Close()
	e.log.Info("движок остановлен", zap.Int("strategies", len(runners)))
}
