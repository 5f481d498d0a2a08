package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"gridbot/internal/models"
)

// Колонки grid_trade_history в порядке скана
const tradeColumns = `id, strategy_id, symbol, position_side, direction,
	entry_time, exit_time, price, quantity, realized_pnl, remark, created_at`

// TradeRepository - работа с таблицей grid_trade_history.
//
// История append-only: строки не изменяются после вставки и переживают
// удаление стратегии (strategy_id - мягкая ссылка для аудита).
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// HistoryFilter - фильтр выборки истории сделок
type HistoryFilter struct {
	StrategyIDs []int64
	Symbol      string
	Direction   string
	From        time.Time
	To          time.Time
	Page        int
	PageSize    int
}

// Insert добавляет запись о сделке
func (r *TradeRepository) Insert(h *models.GridTradeHistory) error {
	query := `
		INSERT INTO grid_trade_history (strategy_id, symbol, position_side, direction,
			entry_time, exit_time, price, quantity, realized_pnl, remark, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}

	return r.db.QueryRow(
		query,
		h.StrategyID,
		h.Symbol,
		h.PositionSide,
		h.Direction,
		h.EntryTime,
		h.ExitTime,
		h.Price,
		h.Quantity,
		h.RealizedPnl,
		h.Remark,
		h.CreatedAt,
	).Scan(&h.ID)
}

// List возвращает историю сделок по фильтру, новые первыми
func (r *TradeRepository) List(filter HistoryFilter) ([]*models.GridTradeHistory, error) {
	conditions, args := historyConditions(filter)

	query := `SELECT ` + tradeColumns + ` FROM grid_trade_history`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY entry_time DESC`

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, (page-1)*filter.PageSize)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.GridTradeHistory
	for rows.Next() {
		h := &models.GridTradeHistory{}
		err := rows.Scan(
			&h.ID,
			&h.StrategyID,
			&h.Symbol,
			&h.PositionSide,
			&h.Direction,
			&h.EntryTime,
			&h.ExitTime,
			&h.Price,
			&h.Quantity,
			&h.RealizedPnl,
			&h.Remark,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, h)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// Count возвращает количество записей по фильтру (для пагинации)
func (r *TradeRepository) Count(filter HistoryFilter) (int, error) {
	conditions, args := historyConditions(filter)

	query := `SELECT COUNT(*) FROM grid_trade_history`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// historyConditions строит WHERE условия по фильтру
func historyConditions(filter HistoryFilter) ([]string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)

	addArg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.StrategyIDs) > 0 {
		conditions = append(conditions, "strategy_id = ANY("+addArg(pq.Array(filter.StrategyIDs))+")")
	}
	if filter.Symbol != "" {
		conditions = append(conditions, "symbol = "+addArg(filter.Symbol))
	}
	if filter.Direction != "" {
		conditions = append(conditions, "direction = "+addArg(filter.Direction))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "entry_time >= "+addArg(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "entry_time <= "+addArg(filter.To))
	}

	return conditions, args
}
