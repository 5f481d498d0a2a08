package exchange

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamConfig - конфигурация потока цен
type StreamConfig struct {
	// Базовый WS endpoint (wss://fstream.binance.com/ws)
	BaseURL string

	// Начальная задержка переподключения (экспоненциальный рост до MaxDelay)
	InitialDelay time.Duration
	MaxDelay     time.Duration

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultStreamConfig - параметры переподключения по умолчанию: 2s, 4s, 8s ... 32s
func DefaultStreamConfig(baseURL string) StreamConfig {
	return StreamConfig{
		BaseURL:        baseURL,
		InitialDelay:   2 * time.Second,
		MaxDelay:       32 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    60 * time.Second,
	}
}

// MarketStream - поток mark price одного символа с автоматическим
// переподключением.
//
// Жизненный цикл управляется подписчиком (feed.Tracker): создаётся на
// первую подписку символа, закрывается когда refcount доходит до нуля.
// При разрыве соединения переподключается с exponential backoff;
// подписчик на время разрыва видит устаревшую цену и отбрасывает её
// по порогу staleness.
type MarketStream struct {
	symbol string
	url    string
	cfg    StreamConfig
	onTick func(Tick)
	log    *zap.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	closeOnce sync.Once
	closeChan chan struct{}
}

// OpenMarketStream открывает поток цен символа и запускает цикл чтения
func OpenMarketStream(cfg StreamConfig, symbol string, onTick func(Tick), log *zap.Logger) *MarketStream {
	s := &MarketStream{
		symbol: symbol,
		// Binance futures: <symbol>@markPrice@1s, символ в нижнем регистре
		url:       cfg.BaseURL + "/" + strings.ToLower(symbol) + "@markPrice@1s",
		cfg:       cfg,
		onTick:    onTick,
		log:       log.With(zap.String("symbol", symbol)),
		closeChan: make(chan struct{}),
	}

	go s.run()
	return s
}

// run - цикл подключения с exponential backoff
func (s *MarketStream) run() {
	delay := s.cfg.InitialDelay

	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		connectedAt := time.Now()
		err := s.readLoop()

		select {
		case <-s.closeChan:
			return
		default:
		}

		// Долгоживущее соединение сбрасывает backoff
		if time.Since(connectedAt) > time.Minute {
			delay = s.cfg.InitialDelay
		}

		s.log.Warn("price stream disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-s.closeChan:
			return
		}

		delay *= 2
		if delay > s.cfg.MaxDelay {
			delay = s.cfg.MaxDelay
		}
	}
}

// readLoop подключается и читает сообщения до ошибки или закрытия
func (s *MarketStream) readLoop() error {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}

	conn, _, err := dialer.Dial(s.url, nil)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()
	}()

	s.log.Debug("price stream connected")

	for {
		select {
		case <-s.closeChan:
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		s.handleMessage(message)
	}
}

// handleMessage разбирает markPriceUpdate событие
func (s *MarketStream) handleMessage(raw []byte) {
	var event struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Price     string `json:"p"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return
	}
	if event.EventType != "markPriceUpdate" || event.Price == "" {
		return
	}

	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil || price <= 0 {
		return
	}

	s.onTick(Tick{
		Symbol: event.Symbol,
		Price:  price,
		At:     time.UnixMilli(event.EventTime),
	})
}

// Close останавливает поток. Идемпотентен.
func (s *MarketStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		s.connMu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.connMu.Unlock()
	})
	return nil
}
