package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gridbot/internal/bot"
	"gridbot/internal/models"
	"gridbot/internal/repository"
	"gridbot/internal/service"
)

// StrategyManager - операции сервиса стратегий, нужные HTTP слою
type StrategyManager interface {
	Create(cfg *models.GridStrategy) (*models.GridStrategy, error)
	Get(id int64) (*models.GridStrategy, error)
	List(filter repository.StrategyFilter) ([]*models.GridStrategy, error)
	Update(id int64, req *service.UpdateRequest) (*models.GridStrategy, error)
	Pause(id int64) (*models.GridStrategy, error)
	Resume(id int64) (*models.GridStrategy, error)
	Delete(ids []int64) (int64, error)
	Optimize(ctx context.Context, req models.OptimizeRequest) (*models.OptimizeResult, error)
}

// StrategyHandler отвечает за управление сеточными стратегиями
//
// Endpoints:
// - POST /api/v1/strategies                      - создание и запуск стратегии
// - GET /api/v1/strategies                       - список стратегий с фильтрами
// - GET /api/v1/strategies/{id}                  - получение конкретной стратегии
// - PATCH /api/v1/strategies/{id}                - частичное обновление параметров
// - POST /api/v1/strategies/{id}/pause           - приостановка торговли
// - POST /api/v1/strategies/{id}/resume          - возобновление торговли
// - DELETE /api/v1/strategies/{id}               - удаление одной стратегии
// - DELETE /api/v1/strategies                    - пакетное удаление
// - POST /api/v1/strategies/optimize-parameters  - подбор геометрии сетки
type StrategyHandler struct {
	strategyService StrategyManager
}

// NewStrategyHandler создает новый StrategyHandler с внедрением зависимостей
func NewStrategyHandler(strategyService StrategyManager) *StrategyHandler {
	return &StrategyHandler{
		strategyService: strategyService,
	}
}

// DeleteStrategiesRequest структура запроса пакетного удаления
type DeleteStrategiesRequest struct {
	IDs []int64 `json:"ids"`
}

// DeleteStrategiesResponse результат удаления
type DeleteStrategiesResponse struct {
	Deleted int64 `json:"deleted"`
}

// CreateStrategy создает стратегию и сразу запускает её исполнение
// POST /api/v1/strategies
//
// Request Body:
//
//	{
//	  "credential_key": "acc-1",
//	  "symbol": "BTCUSDT",
//	  "position_side": "both",
//	  "grid_price_diff": 50,
//	  "grid_trade_qty": 0.01,
//	  "max_open_qty": 1,
//	  "leverage": 20
//	}
//
// Response:
// - 201 Created: стратегия создана и запущена
// - 400 Bad Request: невалидные параметры
// - 409 Conflict: активная стратегия для этой пары уже существует
func (h *StrategyHandler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	var cfg models.GridStrategy
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	// Серверные поля из тела запроса не принимаются
	cfg.ID = 0
	cfg.Status = ""
	cfg.OpenPrice = 0
	cfg.ReferencePrice = 0
	cfg.Deleted = false

	created, err := h.strategyService.Create(&cfg)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, created)
}

// GetStrategies возвращает список стратегий
// GET /api/v1/strategies
//
// Query параметры:
// - status: RUNNING, PAUSED, STOPPED
// - credential_key: фильтр по аккаунту
// - symbol: фильтр по торговой паре
// - from, to: границы по времени создания (RFC3339)
// - page, page_size: пагинация
func (h *StrategyHandler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	filter, err := strategyFilterFromQuery(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_filter", "Invalid filter parameters", err.Error())
		return
	}

	strategies, err := h.strategyService.List(filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, strategies)
}

// GetStrategy возвращает конкретную стратегию
// GET /api/v1/strategies/{id}
func (h *StrategyHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	strategy, err := h.strategyService.Get(id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, strategy)
}

// UpdateStrategy частично обновляет параметры стратегии.
// Не присланные поля не изменяются; работающая стратегия получает
// новую конфигурацию со следующего тика.
// PATCH /api/v1/strategies/{id}
func (h *StrategyHandler) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	var req service.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	updated, err := h.strategyService.Update(id, &req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, updated)
}

// PauseStrategy приостанавливает торговлю. Идемпотентен.
// POST /api/v1/strategies/{id}/pause
func (h *StrategyHandler) PauseStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	strategy, err := h.strategyService.Pause(id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, strategy)
}

// ResumeStrategy возобновляет торговлю приостановленной стратегии
// POST /api/v1/strategies/{id}/resume
//
// Response:
// - 200 OK: стратегия снова RUNNING
// - 409 Conflict: стратегия в состоянии STOPPED (возобновление запрещено)
func (h *StrategyHandler) ResumeStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	strategy, err := h.strategyService.Resume(id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, strategy)
}

// DeleteStrategy мягко удаляет одну стратегию
// DELETE /api/v1/strategies/{id}
func (h *StrategyHandler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	deleted, err := h.strategyService.Delete([]int64{id})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, DeleteStrategiesResponse{Deleted: deleted})
}

// DeleteStrategies пакетно удаляет стратегии.
// История сделок удаленных стратегий сохраняется.
// DELETE /api/v1/strategies
//
// Request Body: {"ids": [1, 2, 3]}
func (h *StrategyHandler) DeleteStrategies(w http.ResponseWriter, r *http.Request) {
	var req DeleteStrategiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	deleted, err := h.strategyService.Delete(req.IDs)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, DeleteStrategiesResponse{Deleted: deleted})
}

// OptimizeParameters подбирает геометрию сетки по историческим свечам
// POST /api/v1/strategies/optimize-parameters
//
// Request Body:
//
//	{
//	  "symbol": "BTCUSDT",
//	  "interval": "1h",
//	  "total_capital": 10000,
//	  "target": "profit",
//	  "min_trade_value": 100,
//	  "max_trade_value": 500
//	}
func (h *StrategyHandler) OptimizeParameters(w http.ResponseWriter, r *http.Request) {
	var req models.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	result, err := h.strategyService.Optimize(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, result)
}

// strategyID извлекает и валидирует {id} из пути
func (h *StrategyHandler) strategyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid strategy ID", "ID must be a positive number")
		return 0, false
	}
	return id, true
}

// strategyFilterFromQuery собирает фильтр списка из query параметров
func strategyFilterFromQuery(r *http.Request) (repository.StrategyFilter, error) {
	q := r.URL.Query()
	filter := repository.StrategyFilter{
		Status:        q.Get("status"),
		CredentialKey: q.Get("credential_key"),
		Symbol:        q.Get("symbol"),
	}

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		return filter, err
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		return filter, err
	}
	if filter.Page, err = parseIntParam(q.Get("page")); err != nil {
		return filter, err
	}
	if filter.PageSize, err = parseIntParam(q.Get("page_size")); err != nil {
		return filter, err
	}

	return filter, nil
}

// handleServiceError обрабатывает ошибки от сервиса и возвращает соответствующий HTTP статус
func (h *StrategyHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrStrategyNotFound):
		h.respondWithError(w, http.StatusNotFound, "strategy_not_found", "Strategy not found", "")

	case errors.Is(err, service.ErrDuplicateStrategy):
		h.respondWithError(w, http.StatusConflict, "strategy_exists", "Active strategy for this credential and symbol already exists", "")

	case errors.Is(err, service.ErrInvalidTransition):
		h.respondWithError(w, http.StatusConflict, "invalid_transition", "Strategy state does not allow this operation", "")

	case errors.Is(err, service.ErrInvalidSymbol):
		h.respondWithError(w, http.StatusBadRequest, "invalid_symbol", "Invalid symbol format", "")

	case errors.Is(err, service.ErrMissingCredential):
		h.respondWithError(w, http.StatusBadRequest, "missing_credential", "Credential key is required", "")

	case errors.Is(err, service.ErrInvalidGridSpacing):
		h.respondWithError(w, http.StatusBadRequest, "invalid_grid_spacing", "Grid price difference must be greater than 0", "")

	case errors.Is(err, service.ErrInvalidQuantity):
		h.respondWithError(w, http.StatusBadRequest, "invalid_quantity", "Trade quantity must be greater than 0", "")

	case errors.Is(err, service.ErrInvalidOpenLimits):
		h.respondWithError(w, http.StatusBadRequest, "invalid_open_limits", "Open position limits must be non-negative and min <= max", "")

	case errors.Is(err, service.ErrInvalidPrecision):
		h.respondWithError(w, http.StatusBadRequest, "invalid_precision", "Precision must be non-negative", "")

	case errors.Is(err, service.ErrInvalidLeverage):
		h.respondWithError(w, http.StatusBadRequest, "invalid_leverage", "Leverage must be an integer in [1, 125]", "")

	case errors.Is(err, service.ErrInvalidFallFactor):
		h.respondWithError(w, http.StatusBadRequest, "invalid_fall_prevention", "Fall prevention coefficient must be in (0, 1]", "")

	case errors.Is(err, service.ErrNothingToDelete):
		h.respondWithError(w, http.StatusBadRequest, "nothing_to_delete", "Strategy ID list is empty", "")

	case errors.Is(err, bot.ErrInvalidBudget):
		h.respondWithError(w, http.StatusBadRequest, "invalid_budget", "Invalid optimization budget", err.Error())

	case errors.Is(err, bot.ErrDataUnavailable):
		h.respondWithError(w, http.StatusBadGateway, "data_unavailable", "Failed to fetch historical candles", err.Error())

	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

// respondWithJSON отправляет JSON ответ
func (h *StrategyHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *StrategyHandler) respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}
	h.respondWithJSON(w, statusCode, response)
}
