package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - количество ошибок
	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Общее количество HTTP ошибок",
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	queueWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_waiting_entries",
			Help: "Количество ожидающих участников в пуле",
		},
		[]string{"pool"},
	)

	joinResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_join_results_total",
			Help: "Результаты join-queue: matched, queued, requeued, rejected",
		},
		[]string{"result"},
	)

	matchScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matchmaking_match_score",
			Help:    "Оценка совместимости для умных пулов",
			Buckets: prometheus.LinearBuckets(0, 20, 10),
		},
	)

	matchWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matchmaking_wait_seconds",
			Help:    "Сколько ожидающий участник провел в очереди до матча",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Количество активных сессий",
		},
	)

	sessionsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_ended_total",
			Help: "Завершенные сессии по причине",
		},
		[]string{"reason"},
	)

	relayedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_relayed_events_total",
			Help: "Пересланные сигнальные события",
		},
		[]string{"type", "delivered"},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Отклоненные рейт-лимитером действия",
		},
		[]string{"action"},
	)

	storeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Ошибки хранилищ очередей и сессий",
		},
		[]string{"store", "op"},
	)

	connectionStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webrtc_connection_status_total",
			Help: "Статусы p2p соединений, присланные клиентами",
		},
		[]string{"status"},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())

	// Записываем ошибки (статус >= 400)
	if status >= 400 {
		httpErrorsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	}
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetQueueSize(pool string, size int) {
	queueWaiting.WithLabelValues(pool).Set(float64(size))
}

func RecordJoinResult(result string) {
	joinResultsTotal.WithLabelValues(result).Inc()
}

func ObserveMatch(score int, waited time.Duration) {
	matchScore.Observe(float64(score))
	matchWaitSeconds.Observe(waited.Seconds())
}

func SetSessionsActive(count int) {
	sessionsActive.Set(float64(count))
}

func RecordSessionEnded(reason string) {
	sessionsEndedTotal.WithLabelValues(reason).Inc()
}

func RecordRelayedEvent(eventType string, delivered bool) {
	relayedEventsTotal.WithLabelValues(eventType, strconv.FormatBool(delivered)).Inc()
}

func RecordRateLimited(action string) {
	rateLimitedTotal.WithLabelValues(action).Inc()
}

func RecordStoreError(store, op string) {
	storeErrorsTotal.WithLabelValues(store, op).Inc()
}

func RecordConnectionStatus(status string) {
	connectionStatusTotal.WithLabelValues(status).Inc()
}
