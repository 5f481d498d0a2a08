package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gridbot/internal/bot"
	"gridbot/internal/exchange"
	"gridbot/internal/service"
)

// AccountManager - операции уровня аккаунта, нужные HTTP слою
type AccountManager interface {
	SetLeverage(ctx context.Context, credentialKey string, settings []bot.LeverageSetting) (*bot.LeverageReport, error)
	HedgeSymmetry(ctx context.Context, credentialKey string) ([]bot.HedgeImbalance, error)
}

// AccountHandler отвечает за операции аккаунта вне отдельной стратегии
//
// Endpoints:
// - POST /api/v1/account/leverage       - пакетное изменение плеча
// - GET /api/v1/account/hedge-symmetry  - символы со сломанным хеджем
type AccountHandler struct {
	accountService AccountManager
}

// NewAccountHandler создает новый AccountHandler с внедрением зависимостей
func NewAccountHandler(accountService AccountManager) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// SetLeverageRequest структура запроса пакетного изменения плеча
type SetLeverageRequest struct {
	CredentialKey string                `json:"credential_key"`
	Settings      []bot.LeverageSetting `json:"settings"`
}

// HedgeSymmetryResponse - отчёт проверки симметрии хеджа
type HedgeSymmetryResponse struct {
	Imbalanced []bot.HedgeImbalance `json:"imbalanced"`
	Count      int                  `json:"count"`
}

// SetLeverage применяет пакет настроек плеча на аккаунте
// POST /api/v1/account/leverage
//
// Request Body:
//
//	{
//	  "credential_key": "acc-1",
//	  "settings": [{"symbol": "BTCUSDT", "leverage": 20}]
//	}
//
// Response:
// - 200 OK: пакет исполнен синхронно, поштучные результаты в теле
// - 202 Accepted: большой пакет принят в фоновое исполнение
// - 400 Bad Request: невалидное плечо или пустой пакет
func (h *AccountHandler) SetLeverage(w http.ResponseWriter, r *http.Request) {
	var req SetLeverageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	report, err := h.accountService.SetLeverage(r.Context(), req.CredentialKey, req.Settings)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if report.Accepted {
		status = http.StatusAccepted
	}
	h.respondWithJSON(w, status, report)
}

// GetHedgeSymmetry возвращает символы аккаунта, у которых открыта
// ровно одна сторона хеджа
// GET /api/v1/account/hedge-symmetry?credential_key=acc-1
func (h *AccountHandler) GetHedgeSymmetry(w http.ResponseWriter, r *http.Request) {
	credentialKey := r.URL.Query().Get("credential_key")

	imbalanced, err := h.accountService.HedgeSymmetry(r.Context(), credentialKey)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, HedgeSymmetryResponse{
		Imbalanced: imbalanced,
		Count:      len(imbalanced),
	})
}

// handleServiceError обрабатывает ошибки от сервиса и возвращает соответствующий HTTP статус
func (h *AccountHandler) handleServiceError(w http.ResponseWriter, err error) {
	var exErr *exchange.ExchangeError

	switch {
	case errors.Is(err, service.ErrMissingCredential):
		h.respondWithError(w, http.StatusBadRequest, "missing_credential", "Credential key is required", "")

	case errors.Is(err, bot.ErrInvalidLeverage):
		h.respondWithError(w, http.StatusBadRequest, "invalid_leverage", "Leverage must be an integer in [1, 125]", err.Error())

	case errors.Is(err, bot.ErrNoIntents):
		h.respondWithError(w, http.StatusBadRequest, "empty_batch", "Settings list is empty", "")

	case errors.As(err, &exErr):
		h.respondWithError(w, http.StatusBadGateway, "exchange_error", "Exchange request failed", err.Error())

	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

// respondWithJSON отправляет JSON ответ
func (h *AccountHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func (h *AccountHandler) respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
