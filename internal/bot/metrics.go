package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Метрики латентности ============

// metricTickDuration - длительность одного тика стратегии от чтения
// цены до завершения исполнения намерений
var metricTickDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a full strategy tick",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"symbol"},
)

// ============ Счётчики событий ============

// metricOrdersTotal - ордера по направлению и исходу
var metricOrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gridbot",
		Subsystem: "executor",
		Name:      "orders_total",
		Help:      "Total orders placed by direction and outcome",
	},
	[]string{"direction", "status"},
)

// metricOrderRetries - повторы ордеров после rate-limit ответов
var metricOrderRetries = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "gridbot",
		Subsystem: "executor",
		Name:      "order_retries_total",
		Help:      "Total order retries caused by exchange rate limits",
	},
)

// metricTicksSkipped - пропущенные тики по причинам:
// inflight (предыдущий тик не завершён), price_unavailable, paused
var metricTicksSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "ticks_skipped_total",
		Help:      "Total skipped strategy ticks by reason",
	},
	[]string{"reason"},
)

// ============ Gauges состояния ============

// metricActiveStrategies - стратегии в работе по статусам
var metricActiveStrategies = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "strategies",
		Help:      "Strategies registered in the engine by status",
	},
	[]string{"status"},
)

// metricHedgeImbalance - символы со сломанным хеджем по последней проверке
var metricHedgeImbalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "gridbot",
		Subsystem: "executor",
		Name:      "hedge_imbalanced_symbols",
		Help:      "Symbols with exactly one open hedge side at last inspection",
	},
)
