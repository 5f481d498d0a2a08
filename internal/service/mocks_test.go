package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"gridbot/internal/bot"
	"gridbot/internal/exchange"
	"gridbot/internal/models"
	"gridbot/internal/repository"
)

// ============ Мок репозитория стратегий ============

type mockStrategyRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.GridStrategy

	createErr error
	updateErr error
}

func newMockStrategyRepo() *mockStrategyRepo {
	return &mockStrategyRepo{nextID: 1, rows: make(map[int64]*models.GridStrategy)}
}

func (m *mockStrategyRepo) Create(s *models.GridStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.rows {
		if !existing.Deleted && existing.CredentialKey == s.CredentialKey && existing.Symbol == s.Symbol {
			return repository.ErrDuplicateStrategy
		}
	}
	s.ID = m.nextID
	m.nextID++
	clone := *s
	m.rows[s.ID] = &clone
	return nil
}

func (m *mockStrategyRepo) GetByID(id int64) (*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrStrategyNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *mockStrategyRepo) GetActiveByCredentialAndSymbol(credentialKey, symbol string) (*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if !s.Deleted && s.CredentialKey == credentialKey && s.Symbol == symbol {
			clone := *s
			return &clone, nil
		}
	}
	return nil, repository.ErrStrategyNotFound
}

func (m *mockStrategyRepo) List(_ repository.StrategyFilter) ([]*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GridStrategy
	for _, s := range m.rows {
		if !s.Deleted {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *mockStrategyRepo) ListActive() ([]*models.GridStrategy, error) {
	return m.List(repository.StrategyFilter{})
}

func (m *mockStrategyRepo) Update(s *models.GridStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	existing, ok := m.rows[s.ID]
	if !ok || existing.Deleted {
		return repository.ErrStrategyNotFound
	}
	clone := *s
	m.rows[s.ID] = &clone
	return nil
}

func (m *mockStrategyRepo) UpdateStatus(id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.Deleted {
		return repository.ErrStrategyNotFound
	}
	s.Status = status
	return nil
}

func (m *mockStrategyRepo) SoftDelete(ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected int64
	for _, id := range ids {
		if s, ok := m.rows[id]; ok && !s.Deleted {
			s.Deleted = true
			s.Status = models.StatusDeleted
			affected++
		}
	}
	return affected, nil
}

// ============ Мок репозитория истории ============

type mockTradeRepo struct {
	items   []*models.GridTradeHistory
	listErr error
}

func (m *mockTradeRepo) List(filter repository.HistoryFilter) ([]*models.GridTradeHistory, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(m.items) {
		return nil, nil
	}
	end := start + filter.PageSize
	if end > len(m.items) {
		end = len(m.items)
	}
	return m.items[start:end], nil
}

func (m *mockTradeRepo) Count(_ repository.HistoryFilter) (int, error) {
	return len(m.items), nil
}

// ============ Мок движка ============

type mockEngine struct {
	mu      sync.Mutex
	added   []int64
	removed []int64
	paused  []int64
	resumed []int64
	updated []int64
	running map[int64]bool
	addErr  error
}

func newMockEngine() *mockEngine {
	return &mockEngine{running: make(map[int64]bool)}
}

func (m *mockEngine) AddStrategy(s *models.GridStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, s.ID)
	m.running[s.ID] = true
	return nil
}

func (m *mockEngine) RemoveStrategy(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, id)
	delete(m.running, id)
}

func (m *mockEngine) PauseStrategy(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = append(m.paused, id)
	return nil
}

func (m *mockEngine) ResumeStrategy(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumed = append(m.resumed, id)
	return nil
}

func (m *mockEngine) UpdateStrategy(s *models.GridStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, s.ID)
	return nil
}

func (m *mockEngine) IsRunning(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[id]
}

// ============ Моки операций аккаунта ============

type mockHedgeOps struct {
	mu            sync.Mutex
	leverageCreds []exchange.Credentials
	leverageSets  [][]bot.LeverageSetting
	leverageErr   error
	report        *bot.LeverageReport

	symmetryCreds []exchange.Credentials
	imbalanced    []bot.HedgeImbalance
	symmetryErr   error
}

func (m *mockHedgeOps) SetLeverage(_ context.Context, creds exchange.Credentials, settings []bot.LeverageSetting, _ time.Duration) (*bot.LeverageReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leverageErr != nil {
		return nil, m.leverageErr
	}
	m.leverageCreds = append(m.leverageCreds, creds)
	m.leverageSets = append(m.leverageSets, settings)
	if m.report != nil {
		return m.report, nil
	}
	return &bot.LeverageReport{}, nil
}

func (m *mockHedgeOps) InspectHedgeSymmetry(_ context.Context, creds exchange.Credentials) ([]bot.HedgeImbalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.symmetryErr != nil {
		return nil, m.symmetryErr
	}
	m.symmetryCreds = append(m.symmetryCreds, creds)
	return m.imbalanced, nil
}

type mockCredProvider struct {
	known map[string]exchange.Credentials
}

func (m *mockCredProvider) Credentials(key string) (exchange.Credentials, error) {
	creds, ok := m.known[key]
	if !ok {
		return exchange.Credentials{}, errors.New("unknown credential key")
	}
	return creds, nil
}

// ============ Мок источника свечей ============

type mockCandleSource struct {
	candles []models.Candle
	err     error
}

func (m *mockCandleSource) GetKlines(_ context.Context, _, _ string, _ int) ([]models.Candle, error) {
	return m.candles, m.err
}
