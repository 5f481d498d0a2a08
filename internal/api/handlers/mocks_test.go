package handlers

import (
	"context"
	"errors"
	"sync"

	"gridbot/internal/bot"
	"gridbot/internal/models"
	"gridbot/internal/repository"
	"gridbot/internal/service"
)

// ErrMockDatabase имитирует внутреннюю ошибку хранилища
var ErrMockDatabase = errors.New("mock database error")

// ============ MockStrategyManager ============

// MockStrategyManager - in-memory реализация StrategyManager для тестов
type MockStrategyManager struct {
	mu         sync.Mutex
	nextID     int64
	strategies map[int64]*models.GridStrategy
	errs       map[string]error

	PausedIDs  []int64
	ResumedIDs []int64
	DeletedIDs []int64
	LastFilter repository.StrategyFilter
}

func NewMockStrategyManager() *MockStrategyManager {
	return &MockStrategyManager{
		nextID:     1,
		strategies: make(map[int64]*models.GridStrategy),
		errs:       make(map[string]error),
	}
}

// SetError заставляет операцию (create, get, list, update, pause,
// resume, delete, optimize) возвращать ошибку
func (m *MockStrategyManager) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

func (m *MockStrategyManager) Create(cfg *models.GridStrategy) (*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["create"]; err != nil {
		return nil, err
	}
	cfg.ID = m.nextID
	m.nextID++
	cfg.Status = models.StatusRunning
	m.strategies[cfg.ID] = cfg
	return cfg, nil
}

func (m *MockStrategyManager) Get(id int64) (*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["get"]; err != nil {
		return nil, err
	}
	s, ok := m.strategies[id]
	if !ok {
		return nil, service.ErrStrategyNotFound
	}
	return s, nil
}

func (m *MockStrategyManager) List(filter repository.StrategyFilter) ([]*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["list"]; err != nil {
		return nil, err
	}
	m.LastFilter = filter
	result := make([]*models.GridStrategy, 0, len(m.strategies))
	for _, s := range m.strategies {
		result = append(result, s)
	}
	return result, nil
}

func (m *MockStrategyManager) Update(id int64, req *service.UpdateRequest) (*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["update"]; err != nil {
		return nil, err
	}
	s, ok := m.strategies[id]
	if !ok {
		return nil, service.ErrStrategyNotFound
	}
	if req.GridPriceDiff != nil {
		s.GridPriceDiff = *req.GridPriceDiff
	}
	if req.Leverage != nil {
		s.Leverage = *req.Leverage
	}
	return s, nil
}

func (m *MockStrategyManager) Pause(id int64) (*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["pause"]; err != nil {
		return nil, err
	}
	s, ok := m.strategies[id]
	if !ok {
		return nil, service.ErrStrategyNotFound
	}
	s.Status = models.StatusPaused
	m.PausedIDs = append(m.PausedIDs, id)
	return s, nil
}

func (m *MockStrategyManager) Resume(id int64) (*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["resume"]; err != nil {
		return nil, err
	}
	s, ok := m.strategies[id]
	if !ok {
		return nil, service.ErrStrategyNotFound
	}
	s.Status = models.StatusRunning
	m.ResumedIDs = append(m.ResumedIDs, id)
	return s, nil
}

func (m *MockStrategyManager) Delete(ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["delete"]; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, service.ErrNothingToDelete
	}
	var deleted int64
	for _, id := range ids {
		if _, ok := m.strategies[id]; ok {
			delete(m.strategies, id)
			m.DeletedIDs = append(m.DeletedIDs, id)
			deleted++
		}
	}
	if deleted == 0 {
		return 0, service.ErrStrategyNotFound
	}
	return deleted, nil
}

func (m *MockStrategyManager) Optimize(ctx context.Context, req models.OptimizeRequest) (*models.OptimizeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["optimize"]; err != nil {
		return nil, err
	}
	return &models.OptimizeResult{
		GridSpacing: 50,
		GridNumber:  20,
		TradeValue:  req.TotalCapital / 20,
		UpperBound:  52000,
		LowerBound:  48000,
	}, nil
}

// ============ MockHistoryProvider ============

// MockHistoryProvider - in-memory реализация HistoryProvider для тестов
type MockHistoryProvider struct {
	mu         sync.Mutex
	trades     []*models.GridTradeHistory
	err        error
	LastFilter repository.HistoryFilter
}

func NewMockHistoryProvider(trades ...*models.GridTradeHistory) *MockHistoryProvider {
	return &MockHistoryProvider{trades: trades}
}

func (m *MockHistoryProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockHistoryProvider) List(filter repository.HistoryFilter) (*service.HistoryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.LastFilter = filter
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return &service.HistoryPage{
		Items:    m.trades,
		Total:    len(m.trades),
		Page:     page,
		PageSize: size,
	}, nil
}

// ============ MockAccountManager ============

// MockAccountManager - реализация AccountManager для тестов
type MockAccountManager struct {
	mu         sync.Mutex
	errs       map[string]error
	Report     *bot.LeverageReport
	Imbalanced []bot.HedgeImbalance
	LastKey    string
	LastBatch  []bot.LeverageSetting
}

func NewMockAccountManager() *MockAccountManager {
	return &MockAccountManager{
		errs:   make(map[string]error),
		Report: &bot.LeverageReport{SuccessRate: "100.00%"},
	}
}

// SetError заставляет операцию (leverage, symmetry) возвращать ошибку
func (m *MockAccountManager) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

func (m *MockAccountManager) SetLeverage(_ context.Context, credentialKey string, settings []bot.LeverageSetting) (*bot.LeverageReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["leverage"]; err != nil {
		return nil, err
	}
	if credentialKey == "" {
		return nil, service.ErrMissingCredential
	}
	m.LastKey = credentialKey
	m.LastBatch = settings
	return m.Report, nil
}

func (m *MockAccountManager) HedgeSymmetry(_ context.Context, credentialKey string) ([]bot.HedgeImbalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["symmetry"]; err != nil {
		return nil, err
	}
	if credentialKey == "" {
		return nil, service.ErrMissingCredential
	}
	m.LastKey = credentialKey
	return m.Imbalanced, nil
}
