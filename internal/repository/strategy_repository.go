package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"gridbot/internal/models"
)

// Ошибки репозитория стратегий
var (
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrDuplicateStrategy = errors.New("active strategy for this credential and symbol already exists")
)

// Колонки grid_strategies в порядке скана
const strategyColumns = `id, credential_key, symbol, exchange_type, position_side,
	grid_price_diff, grid_trade_qty,
	long_open_qty, long_close_qty, short_open_qty, short_close_qty,
	max_open_qty, min_open_qty, fall_prevention, polling_interval_sec,
	price_precision, qty_precision, leverage, margin_type,
	stop_loss_price, take_profit_price, upper_limit_price, lower_limit_price,
	pause_above_price, pause_below_price, priority_close_on_trend,
	status, open_price, reference_price, deleted, created_at, updated_at`

// StrategyRepository - работа с таблицей grid_strategies
type StrategyRepository struct {
	db *sql.DB
}

// NewStrategyRepository создает новый экземпляр репозитория
func NewStrategyRepository(db *sql.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// StrategyFilter - фильтр выборки стратегий
type StrategyFilter struct {
	IDs           []int64
	Status        string
	CredentialKey string
	Symbol        string
	From          time.Time
	To            time.Time
	Page          int
	PageSize      int
}

// Create создает новую стратегию.
//
// Уникальность активной пары (credential_key, symbol) обеспечивает
// частичный UNIQUE индекс в БД; нарушение мапится в ErrDuplicateStrategy.
func (r *StrategyRepository) Create(s *models.GridStrategy) error {
	query := `
		INSERT INTO grid_strategies (credential_key, symbol, exchange_type, position_side,
			grid_price_diff, grid_trade_qty,
			long_open_qty, long_close_qty, short_open_qty, short_close_qty,
			max_open_qty, min_open_qty, fall_prevention, polling_interval_sec,
			price_precision, qty_precision, leverage, margin_type,
			stop_loss_price, take_profit_price, upper_limit_price, lower_limit_price,
			pause_above_price, pause_below_price, priority_close_on_trend,
			status, open_price, reference_price, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
		RETURNING id`

	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	if s.Status == "" {
		s.Status = models.StatusCreated
	}

	err := r.db.QueryRow(
		query,
		s.CredentialKey,
		s.Symbol,
		s.ExchangeType,
		s.PositionSide,
		s.GridPriceDiff,
		s.GridTradeQty,
		s.LongOpenQty,
		s.LongCloseQty,
		s.ShortOpenQty,
		s.ShortCloseQty,
		s.MaxOpenQty,
		s.MinOpenQty,
		s.FallPrevention,
		s.PollingIntervalSec,
		s.PricePrecision,
		s.QtyPrecision,
		s.Leverage,
		s.MarginType,
		s.StopLossPrice,
		s.TakeProfitPrice,
		s.UpperLimitPrice,
		s.LowerLimitPrice,
		s.PauseAbovePrice,
		s.PauseBelowPrice,
		s.PriorityCloseOnTrend,
		s.Status,
		s.OpenPrice,
		s.ReferencePrice,
		s.Deleted,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateStrategy
		}
		return err
	}

	return nil
}

// GetByID возвращает стратегию по ID (включая мягко удалённые)
func (r *StrategyRepository) GetByID(id int64) (*models.GridStrategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM grid_strategies WHERE id = $1`

	s, err := scanStrategy(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}

	return s, nil
}

// List возвращает стратегии по фильтру с пагинацией
func (r *StrategyRepository) List(filter StrategyFilter) ([]*models.GridStrategy, error) {
	var (
		conditions = []string{"deleted = FALSE"}
		args       []interface{}
	)

	addArg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.IDs) > 0 {
		conditions = append(conditions, "id = ANY("+addArg(pq.Array(filter.IDs))+")")
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+addArg(filter.Status))
	}
	if filter.CredentialKey != "" {
		conditions = append(conditions, "credential_key = "+addArg(filter.CredentialKey))
	}
	if filter.Symbol != "" {
		conditions = append(conditions, "symbol = "+addArg(filter.Symbol))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= "+addArg(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at <= "+addArg(filter.To))
	}

	query := `SELECT ` + strategyColumns + ` FROM grid_strategies WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC`

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += " LIMIT " + addArg(filter.PageSize) + " OFFSET " + addArg((page-1)*filter.PageSize)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []*models.GridStrategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return strategies, nil
}

// GetActiveByCredentialAndSymbol ищет активную стратегию пары (credential, symbol)
func (r *StrategyRepository) GetActiveByCredentialAndSymbol(credentialKey, symbol string) (*models.GridStrategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM grid_strategies
		WHERE credential_key = $1 AND symbol = $2 AND deleted = FALSE`

	s, err := scanStrategy(r.db.QueryRow(query, credentialKey, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}

	return s, nil
}

// ListActive возвращает стратегии, подлежащие исполнению движком
func (r *StrategyRepository) ListActive() ([]*models.GridStrategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM grid_strategies
		WHERE deleted = FALSE AND status IN ($1, $2)
		ORDER BY id`

	rows, err := r.db.Query(query, models.StatusRunning, models.StatusPaused)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []*models.GridStrategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return strategies, nil
}

// Update обновляет конфигурацию стратегии целиком
func (r *StrategyRepository) Update(s *models.GridStrategy) error {
	query := `
		UPDATE grid_strategies
		SET position_side = $1, grid_price_diff = $2, grid_trade_qty = $3,
			long_open_qty = $4, long_close_qty = $5, short_open_qty = $6, short_close_qty = $7,
			max_open_qty = $8, min_open_qty = $9, fall_prevention = $10, polling_interval_sec = $11,
			price_precision = $12, qty_precision = $13, leverage = $14, margin_type = $15,
			stop_loss_price = $16, take_profit_price = $17, upper_limit_price = $18, lower_limit_price = $19,
			pause_above_price = $20, pause_below_price = $21, priority_close_on_trend = $22,
			status = $23, updated_at = $24
		WHERE id = $25 AND deleted = FALSE`

	s.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		query,
		s.PositionSide,
		s.GridPriceDiff,
		s.GridTradeQty,
		s.LongOpenQty,
		s.LongCloseQty,
		s.ShortOpenQty,
		s.ShortCloseQty,
		s.MaxOpenQty,
		s.MinOpenQty,
		s.FallPrevention,
		s.PollingIntervalSec,
		s.PricePrecision,
		s.QtyPrecision,
		s.Leverage,
		s.MarginType,
		s.StopLossPrice,
		s.TakeProfitPrice,
		s.UpperLimitPrice,
		s.LowerLimitPrice,
		s.PauseAbovePrice,
		s.PauseBelowPrice,
		s.PriorityCloseOnTrend,
		s.Status,
		s.UpdatedAt,
		s.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrStrategyNotFound
	}

	return nil
}

// UpdateStatus обновляет статус стратегии
func (r *StrategyRepository) UpdateStatus(id int64, status string) error {
	query := `
		UPDATE grid_strategies
		SET status = $1, updated_at = $2
		WHERE id = $3 AND deleted = FALSE`

	result, err := r.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrStrategyNotFound
	}

	return nil
}

// UpdateReferencePrice сохраняет runtime-якоря сетки
func (r *StrategyRepository) UpdateReferencePrice(id int64, openPrice, referencePrice float64) error {
	query := `
		UPDATE grid_strategies
		SET open_price = $1, reference_price = $2, updated_at = $3
		WHERE id = $4 AND deleted = FALSE`

	result, err := r.db.Exec(query, openPrice, referencePrice, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrStrategyNotFound
	}

	return nil
}

// SoftDelete мягко удаляет стратегии. История сделок сохраняется.
func (r *StrategyRepository) SoftDelete(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE grid_strategies
		SET deleted = TRUE, status = $1, updated_at = $2
		WHERE id = ANY($3) AND deleted = FALSE`

	result, err := r.db.Exec(query, models.StatusDeleted, time.Now(), pq.Array(ids))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// scanner покрывает *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanStrategy читает строку grid_strategies в модель
func scanStrategy(row scanner) (*models.GridStrategy, error) {
	s := &models.GridStrategy{}
	err := row.Scan(
		&s.ID,
		&s.CredentialKey,
		&s.Symbol,
		&s.ExchangeType,
		&s.PositionSide,
		&s.GridPriceDiff,
		&s.GridTradeQty,
		&s.LongOpenQty,
		&s.LongCloseQty,
		&s.ShortOpenQty,
		&s.ShortCloseQty,
		&s.MaxOpenQty,
		&s.MinOpenQty,
		&s.FallPrevention,
		&s.PollingIntervalSec,
		&s.PricePrecision,
		&s.QtyPrecision,
		&s.Leverage,
		&s.MarginType,
		&s.StopLossPrice,
		&s.TakeProfitPrice,
		&s.UpperLimitPrice,
		&s.LowerLimitPrice,
		&s.PauseAbovePrice,
		&s.PauseBelowPrice,
		&s.PriorityCloseOnTrend,
		&s.Status,
		&s.OpenPrice,
		&s.ReferencePrice,
		&s.Deleted,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
