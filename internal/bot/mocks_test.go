package bot

import (
	"context"
	"io"
	"sync"
	"time"

	"gridbot/internal/exchange"
	"gridbot/internal/models"
)

// ============ Моки биржевого клиента ============

// mockClient - потокобезопасный мок exchange.Client.
// Ошибки задаются по символу, вызовы записываются для проверок.
type mockClient struct {
	mu sync.Mutex

	placeErr    map[string]error // ошибка PlaceOrder по символу
	leverageErr map[string]error // ошибка SetLeverage по символу
	marginErr   map[string]error // ошибка SetMarginType по символу
	positions   []*exchange.Position
	positionErr error
	candles     []models.Candle
	candlesErr  error
	balance     float64

	placedOrders  []exchange.OrderRequest
	leverageCalls []string
	marginCalls   []string
	cancelledIDs  []string
}

func newMockClient() *mockClient {
	return &mockClient{
		placeErr:    make(map[string]error),
		leverageErr: make(map[string]error),
		marginErr:   make(map[string]error),
	}
}

func (m *mockClient) Name() string { return "mock" }

func (m *mockClient) PlaceOrder(_ context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.placeErr[req.Symbol]; err != nil {
		return nil, err
	}
	m.placedOrders = append(m.placedOrders, req)
	return &exchange.Order{
		OrderID:      "order-" + req.Symbol,
		Symbol:       req.Symbol,
		Side:         req.Side,
		PositionSide: req.PositionSide,
		Status:       "FILLED",
		ExecutedQty:  req.Quantity,
		AvgPrice:     100,
		UpdatedAt:    time.Now(),
	}, nil
}

func (m *mockClient) CancelOrder(_ context.Context, _, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelledIDs = append(m.cancelledIDs, orderID)
	return nil
}

func (m *mockClient) GetOpenPositions(_ context.Context) ([]*exchange.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.positionErr != nil {
		return nil, m.positionErr
	}
	return m.positions, nil
}

func (m *mockClient) GetBalance(_ context.Context) (float64, error) {
	return m.balance, nil
}

func (m *mockClient) SetLeverage(_ context.Context, symbol string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverageCalls = append(m.leverageCalls, symbol)
	return m.leverageErr[symbol]
}

func (m *mockClient) SetMarginType(_ context.Context, symbol, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marginCalls = append(m.marginCalls, symbol)
	return m.marginErr[symbol]
}

func (m *mockClient) GetKlines(_ context.Context, _, _ string, _ int) ([]models.Candle, error) {
	return m.candles, m.candlesErr
}

func (m *mockClient) ServerTime(_ context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (m *mockClient) placed() []exchange.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]exchange.OrderRequest, len(m.placedOrders))
	copy(out, m.placedOrders)
	return out
}

func (m *mockClient) leverageCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leverageCalls)
}

// mockFactory отдаёт один мок-клиент для любых учётных данных
type mockFactory struct {
	client    *mockClient
	clientErr error
}

func (f *mockFactory) Client(creds exchange.Credentials) (exchange.Client, error) {
	if f.clientErr != nil {
		return nil, f.clientErr
	}
	return f.client, nil
}

func (f *mockFactory) MarketData() exchange.Client { return f.client }

func (f *mockFactory) OpenTickerStream(_ string, _ func(exchange.Tick)) (io.Closer, error) {
	return io.NopCloser(nil), nil
}
