package feed

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gridbot/internal/exchange"
)

// StreamOpener открывает поток цен символа (реализуется exchange.Factory)
type StreamOpener interface {
	OpenTickerStream(symbol string, onTick func(exchange.Tick)) (io.Closer, error)
}

// Tracker мультиплексирует потоки цен между стратегиями.
//
// На символ открывается один поток независимо от числа подписчиков,
// счётчик ссылок закрывает поток когда отписывается последний.
// Чтение цены неблокирующее: снапшот хранится в atomic.Value,
// тики со старым timestamp отбрасываются.
type Tracker struct {
	opener     StreamOpener
	staleAfter time.Duration
	log        *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// entry - один символ: поток + счётчик подписчиков
type entry struct {
	refs     int
	stream   io.Closer
	snapshot atomic.Value // snapshot
}

type snapshot struct {
	price float64
	at    time.Time
}

// Subscription - подписка одной стратегии на символ
type Subscription struct {
	tracker   *Tracker
	symbol    string
	closeOnce sync.Once
}

// NewTracker создаёт трекер цен.
// staleAfter - порог устаревания: старше него цена считается недоступной.
func NewTracker(opener StreamOpener, staleAfter time.Duration, log *zap.Logger) *Tracker {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &Tracker{
		opener:     opener,
		staleAfter: staleAfter,
		log:        log,
		entries:    make(map[string]*entry),
	}
}

// Subscribe подписывает на поток цен символа.
// Первая подписка на символ открывает поток, повторные переиспользуют его.
func (t *Tracker) Subscribe(symbol string) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[symbol]
	if !ok {
		e = &entry{}
		stream, err := t.opener.OpenTickerStream(symbol, func(tick exchange.Tick) {
			t.update(e, tick)
		})
		if err != nil {
			return nil, fmt.Errorf("open ticker stream %s: %w", symbol, err)
		}
		e.stream = stream
		t.entries[symbol] = e

		t.log.Info("price stream opened", zap.String("symbol", symbol))
		metricFeedStreams.Inc()
	}

	e.refs++
	metricFeedSubscribers.Inc()

	return &Subscription{tracker: t, symbol: symbol}, nil
}

// update применяет тик к снапшоту. Тики не новее текущего отбрасываются,
// метка времени монотонно неубывающая.
func (t *Tracker) update(e *entry, tick exchange.Tick) {
	if tick.Price <= 0 {
		return
	}
	if prev, ok := e.snapshot.Load().(snapshot); ok && !tick.At.After(prev.at) {
		return
	}
	e.snapshot.Store(snapshot{price: tick.Price, at: tick.At})
}

// Price возвращает последнюю цену символа.
// ok=false если подписки нет, тиков ещё не было или цена устарела.
func (t *Tracker) Price(symbol string) (float64, time.Time, bool) {
	t.mu.Lock()
	e, ok := t.entries[symbol]
	t.mu.Unlock()
	if !ok {
		return 0, time.Time{}, false
	}

	snap, ok := e.snapshot.Load().(snapshot)
	if !ok {
		return 0, time.Time{}, false
	}
	if time.Since(snap.at) > t.staleAfter {
		return snap.price, snap.at, false
	}

	return snap.price, snap.at, true
}

// Close закрывает все потоки. Используется при остановке процесса.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for symbol, e := range t.entries {
		_ = e.stream.Close()
		delete(t.entries, symbol)
	}
}

// release уменьшает счётчик подписок, закрывает поток на нуле
func (t *Tracker) release(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[symbol]
	if !ok {
		return
	}

	e.refs--
	metricFeedSubscribers.Dec()
	if e.refs > 0 {
		return
	}

	_ = e.stream.Close()
	delete(t.entries, symbol)

	t.log.Info("price stream closed", zap.String("symbol", symbol))
	metricFeedStreams.Dec()
}

// Symbol возвращает символ подписки
func (s *Subscription) Symbol() string {
	return s.symbol
}

// Price возвращает последнюю цену символа подписки
func (s *Subscription) Price() (float64, time.Time, bool) {
	return s.tracker.Price(s.symbol)
}

// Close отписывается. Идемпотентен.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.tracker.release(s.symbol)
	})
}
