package service

import (
	"gridbot/internal/bot"
	"gridbot/internal/models"
	"gridbot/internal/repository"
)

// StrategyRepositoryInterface определяет интерфейс репозитория стратегий
type StrategyRepositoryInterface interface {
	Create(s *models.GridStrategy) error
	GetByID(id int64) (*models.GridStrategy, error)
	GetActiveByCredentialAndSymbol(credentialKey, symbol string) (*models.GridStrategy, error)
	List(filter repository.StrategyFilter) ([]*models.GridStrategy, error)
	ListActive() ([]*models.GridStrategy, error)
	Update(s *models.GridStrategy) error
	UpdateStatus(id int64, status string) error
	SoftDelete(ids []int64) (int64, error)
}

// TradeRepositoryInterface определяет интерфейс репозитория истории сделок
type TradeRepositoryInterface interface {
	List(filter repository.HistoryFilter) ([]*models.GridTradeHistory, error)
	Count(filter repository.HistoryFilter) (int, error)
}

// GridEngine определяет интерфейс взаимодействия с торговым движком
type GridEngine interface {
	// AddStrategy запускает исполнение стратегии
	AddStrategy(s *models.GridStrategy) error
	// RemoveStrategy снимает стратегию с исполнения
	RemoveStrategy(id int64)
	// PauseStrategy приостанавливает торговлю
	PauseStrategy(id int64) error
	// ResumeStrategy возобновляет торговлю
	ResumeStrategy(id int64) error
	// UpdateStrategy подменяет конфигурацию работающей стратегии
	UpdateStrategy(s *models.GridStrategy) error
	// IsRunning проверяет регистрацию стратегии в движке
	IsRunning(id int64) bool
}

// CandleSource поставляет свечи для оптимизатора (клиент без подписи)
type CandleSource = bot.CandleSource

// Проверка соответствия реализаций интерфейсам
var (
	_ StrategyRepositoryInterface = (*repository.StrategyRepository)(nil)
	_ TradeRepositoryInterface    = (*repository.TradeRepository)(nil)
	_ GridEngine                  = (*bot.Engine)(nil)
	_ HedgeOps                    = (*bot.HedgeExecutor)(nil)
)
