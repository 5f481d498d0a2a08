package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFeedStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridbot",
		Subsystem: "feed",
		Name:      "streams_open",
		Help:      "Количество открытых потоков цен",
	})

	metricFeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridbot",
		Subsystem: "feed",
		Name:      "subscribers",
		Help:      "Количество активных подписок на цены",
	})
)
