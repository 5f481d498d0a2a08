package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"gridbot/internal/repository"
	"gridbot/internal/service"
)

// HistoryProvider - чтение истории сделок для HTTP слоя
type HistoryProvider interface {
	List(filter repository.HistoryFilter) (*service.HistoryPage, error)
}

// HistoryHandler отвечает за чтение истории сделок
//
// Endpoints:
// - GET /api/v1/trade-history - страница истории с фильтрами
type HistoryHandler struct {
	historyService HistoryProvider
}

// NewHistoryHandler создает новый HistoryHandler с внедрением зависимостей
func NewHistoryHandler(historyService HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
	}
}

// GetTradeHistory возвращает страницу истории сделок, новые первыми
// GET /api/v1/trade-history
//
// Query параметры:
// - strategy_ids: ID стратегий через запятую (1,2,3)
// - symbol: фильтр по торговой паре
// - direction: open или close
// - from, to: границы по времени входа (RFC3339)
// - page, page_size: пагинация (по умолчанию 1/20, максимум 100)
func (h *HistoryHandler) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilterFromQuery(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_filter", "Invalid filter parameters", err.Error())
		return
	}

	page, err := h.historyService.List(filter)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get trade history", err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, page)
}

// historyFilterFromQuery собирает фильтр истории из query параметров
func historyFilterFromQuery(r *http.Request) (repository.HistoryFilter, error) {
	q := r.URL.Query()
	filter := repository.HistoryFilter{
		Symbol:    q.Get("symbol"),
		Direction: q.Get("direction"),
	}

	if raw := q.Get("strategy_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return filter, err
			}
			filter.StrategyIDs = append(filter.StrategyIDs, id)
		}
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

// respondWithJSON отправляет JSON ответ
func (h *HistoryHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *HistoryHandler) respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}
	h.respondWithJSON(w, statusCode, response)
}
