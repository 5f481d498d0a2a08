package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridbot/internal/api/handlers"
	"gridbot/internal/api/middleware"
	"gridbot/internal/websocket"
)

// Dependencies содержит зависимости для handlers
type Dependencies struct {
	StrategyService handlers.StrategyManager
	HistoryService  handlers.HistoryProvider
	AccountService  handlers.AccountManager
	Hub             *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура API:
// - /health                               - health check
// - /metrics                              - Prometheus метрики
// - /api/v1/strategies                    - управление стратегиями
// - /api/v1/strategies/optimize-parameters - подбор геометрии сетки
// - /api/v1/trade-history                 - история сделок
// - /api/v1/account/leverage              - пакетное изменение плеча
// - /api/v1/account/hedge-symmetry        - контроль симметрии хеджа
func SetupRoutes(deps Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Middleware в порядке: recovery -> logging -> CORS
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// WebSocket поток событий (статусы стратегий, сделки)
	if deps.Hub != nil {
		router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		}).Methods(http.MethodGet)
	}

	// API v1
	api := router.PathPrefix("/api/v1").Subrouter()

	if deps.StrategyService != nil {
		strategyHandler := handlers.NewStrategyHandler(deps.StrategyService)

		// Порядок важен: конкретные пути до шаблона {id}
		api.HandleFunc("/strategies/optimize-parameters", strategyHandler.OptimizeParameters).Methods(http.MethodPost)

		api.HandleFunc("/strategies", strategyHandler.CreateStrategy).Methods(http.MethodPost)
		api.HandleFunc("/strategies", strategyHandler.GetStrategies).Methods(http.MethodGet)
		api.HandleFunc("/strategies", strategyHandler.DeleteStrategies).Methods(http.MethodDelete)
		api.HandleFunc("/strategies/{id:[0-9]+}", strategyHandler.GetStrategy).Methods(http.MethodGet)
		api.HandleFunc("/strategies/{id:[0-9]+}", strategyHandler.UpdateStrategy).Methods(http.MethodPatch)
		api.HandleFunc("/strategies/{id:[0-9]+}", strategyHandler.DeleteStrategy).Methods(http.MethodDelete)
		api.HandleFunc("/strategies/{id:[0-9]+}/pause", strategyHandler.PauseStrategy).Methods(http.MethodPost)
		api.HandleFunc("/strategies/{id:[0-9]+}/resume", strategyHandler.ResumeStrategy).Methods(http.MethodPost)
	}

	if deps.HistoryService != nil {
		historyHandler := handlers.NewHistoryHandler(deps.HistoryService)
		api.HandleFunc("/trade-history", historyHandler.GetTradeHistory).Methods(http.MethodGet)
	}

	if deps.AccountService != nil {
		accountHandler := handlers.NewAccountHandler(deps.AccountService)
		api.HandleFunc("/account/leverage", accountHandler.SetLeverage).Methods(http.MethodPost)
		api.HandleFunc("/account/hedge-symmetry", accountHandler.GetHedgeSymmetry).Methods(http.MethodGet)
	}

	return router
}
