package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gridbot/internal/api"
	"gridbot/internal/bot"
	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/internal/feed"
	"gridbot/internal/repository"
	"gridbot/internal/service"
	"gridbot/internal/websocket"
	"gridbot/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логирования
	zlog, err := logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	zlog.Info("Connected to database")

	// Инициализация репозиториев
	strategyRepo := repository.NewStrategyRepository(db)
	tradeRepo := repository.NewTradeRepository(db)

	// Биржевой слой: фабрика клиентов + трекер цен
	factory := exchange.NewBinanceFactory(cfg.Exchange, zlog)
	tracker := feed.NewTracker(factory, cfg.Engine.PriceStaleAfter, zlog)
	executor := bot.NewHedgeExecutor(factory, cfg.Engine, zlog)

	// WebSocket hub: трансляция событий движка на frontend
	hub := websocket.NewHub()
	go hub.Run()

	// Торговый движок. Записи статусов и сделок транслируются в hub
	// через декораторы хранилищ.
	engine := bot.NewEngine(
		cfg.Engine,
		executor,
		tracker,
		websocket.NewStrategyEvents(strategyRepo, hub),
		websocket.NewTradeEvents(tradeRepo, hub),
		envCredentials{cfg: cfg.Exchange},
		zlog,
	)

	// Восстановление активных стратегий после рестарта
	if err := engine.Recover(); err != nil {
		zlog.Error("Recovery finished with errors", zap.Error(err))
	}

	// Инициализация сервисов
	strategyService := service.NewStrategyService(strategyRepo, engine, factory.MarketData())
	historyService := service.NewHistoryService(tradeRepo)
	accountService := service.NewAccountService(executor, envCredentials{cfg: cfg.Exchange}, cfg.Engine.LegDelay)

	// Настройка HTTP роутера
	router := api.SetupRoutes(api.Dependencies{
		StrategyService: strategyService,
		HistoryService:  historyService,
		AccountService:  accountService,
		Hub:             hub,
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		zlog.Info("Starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down...")

	// Сначала торговля: runner'ы дорабатывают текущий тик и выходят
	engine.Shutdown()
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zlog.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zlog.Info("Server exited")
}

// envCredentials - single-tenant поставщик учётных данных из окружения.
// В production заменяется клиентом внешнего keystore.
type envCredentials struct {
	cfg config.ExchangeConfig
}

func (p envCredentials) Credentials(key string) (exchange.Credentials, error) {
	if p.cfg.APIKey == "" || p.cfg.SecretKey == "" {
		return exchange.Credentials{}, fmt.Errorf("no credentials configured for %q", key)
	}
	return exchange.Credentials{
		APIKey:    p.cfg.APIKey,
		SecretKey: p.cfg.SecretKey,
	}, nil
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
