package websocket

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"gridbot/pkg/logger"
)

// Пул JSON буферов: убирает аллокации при каждом Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Центральный менеджер broadcast сообщений: frontend получает
// события стратегий и сделок в реальном времени без polling.
//
// Использование:
//  1. Создать hub: hub := NewHub()
//  2. Запустить в горутине: go hub.Run()
//  3. Отправлять события: hub.BroadcastStrategyStatus(...)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Остановка главного цикла
	stop     chan struct{}
	stopOnce sync.Once

	// Сообщения, отброшенные при переполнении broadcast канала
	dropped atomic.Uint64

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.L().Debug("ws client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.L().Debug("ws client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock,
			// отправляем без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать - отключаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				logger.L().Warn("removed slow ws clients",
					zap.Int("removed", len(toRemove)), zap.Int("total", total))
			}
		}
	}
}

// Broadcast сериализует сообщение и рассылает его всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		logger.L().Error("ws broadcast marshal failed", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копия: буфер возвращается в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	// Неблокирующая отправка: переполненный канал не должен
	// тормозить торговый цикл
	select {
	case h.broadcast <- msgCopy:
	default:
		h.dropped.Add(1)
	}
}

// Stop останавливает главный цикл Hub. Идемпотентен.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// DroppedMessages возвращает число отброшенных broadcast сообщений
func (h *Hub) DroppedMessages() uint64 {
	return h.dropped.Load()
}

// BroadcastStrategyStatus отправляет событие смены статуса стратегии
func (h *Hub) BroadcastStrategyStatus(strategyID int64, status string) {
	h.Broadcast(NewStatusMessage(strategyID, status))
}

// BroadcastReferenceShift отправляет событие сдвига опорной цены сетки
func (h *Hub) BroadcastReferenceShift(strategyID int64, openPrice, referencePrice float64) {
	h.Broadcast(NewReferenceMessage(strategyID, openPrice, referencePrice))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
