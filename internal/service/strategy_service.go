package service

import (
	"context"
	"errors"

	"gridbot/internal/bot"
	"gridbot/internal/models"
	"gridbot/internal/repository"
	"gridbot/pkg/utils"
)

// Ошибки сервиса стратегий
var (
	ErrStrategyNotFound   = errors.New("strategy not found")
	ErrDuplicateStrategy  = errors.New("active strategy for this credential and symbol already exists")
	ErrInvalidTransition  = errors.New("invalid strategy state transition")
	ErrInvalidSymbol      = errors.New("invalid symbol format")
	ErrInvalidGridSpacing = errors.New("grid price difference must be greater than 0")
	ErrInvalidQuantity    = errors.New("trade quantity must be greater than 0")
	ErrInvalidOpenLimits  = errors.New("open position limits must be non-negative and min <= max")
	ErrInvalidPrecision   = errors.New("precision must be non-negative")
	ErrInvalidLeverage    = errors.New("leverage must be an integer in [1, 125]")
	ErrInvalidFallFactor  = errors.New("fall prevention coefficient must be in (0, 1]")
	ErrMissingCredential  = errors.New("credential key is required")
	ErrNothingToDelete    = errors.New("no strategies matched for deletion")
)

// StrategyService - бизнес-логика жизненного цикла стратегий.
//
// Сервис владеет валидацией и согласованностью БД <-> движок;
// риск-переходы внутри тика делает сам движок.
type StrategyService struct {
	strategyRepo StrategyRepositoryInterface
	engine       GridEngine
	marketData   CandleSource
}

// NewStrategyService создает новый экземпляр сервиса стратегий
func NewStrategyService(strategyRepo StrategyRepositoryInterface, engine GridEngine, marketData CandleSource) *StrategyService {
	return &StrategyService{
		strategyRepo: strategyRepo,
		engine:       engine,
		marketData:   marketData,
	}
}

// Create создает стратегию и сразу запускает её исполнение.
//
// Дубликат активной пары (credential, symbol) отклоняется без
// изменения существующей стратегии.
func (s *StrategyService) Create(cfg *models.GridStrategy) (*models.GridStrategy, error) {
	if err := s.validate(cfg); err != nil {
		return nil, err
	}

	// Предварительная проверка дубликата; гонку закрывает UNIQUE индекс
	if _, err := s.strategyRepo.GetActiveByCredentialAndSymbol(cfg.CredentialKey, cfg.Symbol); err == nil {
		return nil, ErrDuplicateStrategy
	} else if !errors.Is(err, repository.ErrStrategyNotFound) {
		return nil, err
	}

	// Создание сразу продвигается в RUNNING (CREATED - переходное состояние)
	cfg.Status = models.StatusRunning
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "binance"
	}
	if cfg.PositionSide == "" {
		cfg.PositionSide = models.PositionSideBoth
	}
	if cfg.MarginType == "" {
		cfg.MarginType = models.MarginTypeCross
	}

	if err := s.strategyRepo.Create(cfg); err != nil {
		if errors.Is(err, repository.ErrDuplicateStrategy) {
			return nil, ErrDuplicateStrategy
		}
		return nil, err
	}

	if err := s.engine.AddStrategy(cfg); err != nil {
		// Строка создана, но исполнение не стартовало: стратегию
		// поднимет Recover после устранения причины
		return cfg, err
	}

	return cfg, nil
}

// Get возвращает стратегию по ID
func (s *StrategyService) Get(id int64) (*models.GridStrategy, error) {
	strategy, err := s.strategyRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}
	return strategy, nil
}

// List возвращает стратегии по фильтру
func (s *StrategyService) List(filter repository.StrategyFilter) ([]*models.GridStrategy, error) {
	return s.strategyRepo.List(filter)
}

// UpdateRequest - частичное обновление: nil-поля не трогаются
type UpdateRequest struct {
	PositionSide         *string  `json:"position_side"`
	GridPriceDiff        *float64 `json:"grid_price_diff"`
	GridTradeQty         *float64 `json:"grid_trade_qty"`
	LongOpenQty          *float64 `json:"long_open_qty"`
	LongCloseQty         *float64 `json:"long_close_qty"`
	ShortOpenQty         *float64 `json:"short_open_qty"`
	ShortCloseQty        *float64 `json:"short_close_qty"`
	MaxOpenQty           *float64 `json:"max_open_qty"`
	MinOpenQty           *float64 `json:"min_open_qty"`
	FallPrevention       *float64 `json:"fall_prevention"`
	PollingIntervalSec   *int     `json:"polling_interval_sec"`
	PricePrecision       *int     `json:"price_precision"`
	QtyPrecision         *int     `json:"qty_precision"`
	Leverage             *int     `json:"leverage"`
	MarginType           *string  `json:"margin_type"`
	StopLossPrice        *float64 `json:"stop_loss_price"`
	TakeProfitPrice      *float64 `json:"take_profit_price"`
	UpperLimitPrice      *float64 `json:"upper_limit_price"`
	LowerLimitPrice      *float64 `json:"lower_limit_price"`
	PauseAbovePrice      *float64 `json:"pause_above_price"`
	PauseBelowPrice      *float64 `json:"pause_below_price"`
	PriorityCloseOnTrend *bool    `json:"priority_close_on_trend"`
}

// Update сливает присланные поля в существующую стратегию
func (s *StrategyService) Update(id int64, req *UpdateRequest) (*models.GridStrategy, error) {
	strategy, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	mergeUpdate(strategy, req)

	if err := s.validate(strategy); err != nil {
		return nil, err
	}

	if err := s.strategyRepo.Update(strategy); err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}

	// Работающий runner получает новую конфигурацию на лету
	if s.engine.IsRunning(id) {
		if err := s.engine.UpdateStrategy(strategy); err != nil {
			return nil, err
		}
	}

	return strategy, nil
}

// mergeUpdate применяет ненулевые поля запроса к стратегии
func mergeUpdate(strategy *models.GridStrategy, req *UpdateRequest) {
	if req.PositionSide != nil {
		strategy.PositionSide = *req.PositionSide
	}
	if req.GridPriceDiff != nil {
		strategy.GridPriceDiff = *req.GridPriceDiff
	}
	if req.GridTradeQty != nil {
		strategy.GridTradeQty = *req.GridTradeQty
	}
	if req.LongOpenQty != nil {
		strategy.LongOpenQty = *req.LongOpenQty
	}
	if req.LongCloseQty != nil {
		strategy.LongCloseQty = *req.LongCloseQty
	}
	if req.ShortOpenQty != nil {
		strategy.ShortOpenQty = *req.ShortOpenQty
	}
	if req.ShortCloseQty != nil {
		strategy.ShortCloseQty = *req.ShortCloseQty
	}
	if req.MaxOpenQty != nil {
		strategy.MaxOpenQty = *req.MaxOpenQty
	}
	if req.MinOpenQty != nil {
		strategy.MinOpenQty = *req.MinOpenQty
	}
	if req.FallPrevention != nil {
		strategy.FallPrevention = *req.FallPrevention
	}
	if req.PollingIntervalSec != nil {
		strategy.PollingIntervalSec = *req.PollingIntervalSec
	}
	if req.PricePrecision != nil {
		strategy.PricePrecision = *req.PricePrecision
	}
	if req.QtyPrecision != nil {
		strategy.QtyPrecision = *req.QtyPrecision
	}
	if req.Leverage != nil {
		strategy.Leverage = *req.Leverage
	}
	if req.MarginType != nil {
		strategy.MarginType = *req.MarginType
	}
	if req.StopLossPrice != nil {
		strategy.StopLossPrice = *req.StopLossPrice
	}
	if req.TakeProfitPrice != nil {
		strategy.TakeProfitPrice = *req.TakeProfitPrice
	}
	if req.UpperLimitPrice != nil {
		strategy.UpperLimitPrice = *req.UpperLimitPrice
	}
	if req.LowerLimitPrice != nil {
		strategy.LowerLimitPrice = *req.LowerLimitPrice
	}
	if req.PauseAbovePrice != nil {
		strategy.PauseAbovePrice = *req.PauseAbovePrice
	}
	if req.PauseBelowPrice != nil {
		strategy.PauseBelowPrice = *req.PauseBelowPrice
	}
	if req.PriorityCloseOnTrend != nil {
		strategy.PriorityCloseOnTrend = *req.PriorityCloseOnTrend
	}
}

// Pause приостанавливает стратегию. Идемпотентна: повторная пауза - no-op.
func (s *StrategyService) Pause(id int64) (*models.GridStrategy, error) {
	return s.transition(id, models.StatusPaused)
}

// Resume возобновляет стратегию. Возобновление STOPPED невозможно:
// стратегия пересоздаётся заново.
func (s *StrategyService) Resume(id int64) (*models.GridStrategy, error) {
	return s.transition(id, models.StatusRunning)
}

// transition - общий переход pause/resume
func (s *StrategyService) transition(id int64, to string) (*models.GridStrategy, error) {
	strategy, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	// Уже в целевом состоянии - успешный no-op
	if strategy.Status == to {
		return strategy, nil
	}

	if !bot.CanTransition(strategy.Status, to) {
		return nil, ErrInvalidTransition
	}

	if err := s.strategyRepo.UpdateStatus(id, to); err != nil {
		return nil, err
	}
	strategy.Status = to

	switch to {
	case models.StatusPaused:
		_ = s.engine.PauseStrategy(id)
	case models.StatusRunning:
		if s.engine.IsRunning(id) {
			_ = s.engine.ResumeStrategy(id)
		} else if err := s.engine.AddStrategy(strategy); err != nil {
			return nil, err
		}
	}

	return strategy, nil
}

// Delete мягко удаляет стратегии и снимает их с исполнения.
// История сделок сохраняется.
func (s *StrategyService) Delete(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNothingToDelete
	}

	affected, err := s.strategyRepo.SoftDelete(ids)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrStrategyNotFound
	}

	for _, id := range ids {
		s.engine.RemoveStrategy(id)
	}

	return affected, nil
}

// Optimize подбирает параметры сетки по историческим свечам
func (s *StrategyService) Optimize(ctx context.Context, req models.OptimizeRequest) (*models.OptimizeResult, error) {
	return bot.OptimizeParams(ctx, s.marketData, req)
}

// validate проверяет конфигурацию стратегии перед записью
func (s *StrategyService) validate(cfg *models.GridStrategy) error {
	if err := utils.ValidateSymbol(cfg.Symbol); err != nil {
		return ErrInvalidSymbol
	}
	if cfg.CredentialKey == "" {
		return ErrMissingCredential
	}
	if cfg.GridPriceDiff <= 0 {
		return ErrInvalidGridSpacing
	}
	// Объём: либо единый, либо хотя бы один раздельный
	if cfg.GridTradeQty <= 0 && !cfg.HasSplitQuantities() {
		return ErrInvalidQuantity
	}
	if cfg.GridTradeQty < 0 || cfg.LongOpenQty < 0 || cfg.LongCloseQty < 0 ||
		cfg.ShortOpenQty < 0 || cfg.ShortCloseQty < 0 {
		return ErrInvalidQuantity
	}
	if cfg.MaxOpenQty < 0 || cfg.MinOpenQty < 0 ||
		(cfg.MaxOpenQty > 0 && cfg.MinOpenQty > cfg.MaxOpenQty) {
		return ErrInvalidOpenLimits
	}
	if cfg.PricePrecision < 0 || cfg.QtyPrecision < 0 {
		return ErrInvalidPrecision
	}
	if cfg.Leverage != 0 {
		if err := utils.ValidateLeverage(cfg.Leverage); err != nil {
			return ErrInvalidLeverage
		}
	}
	if cfg.FallPrevention < 0 || cfg.FallPrevention > 1 {
		return ErrInvalidFallFactor
	}
	return nil
}
