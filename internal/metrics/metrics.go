// Package metrics はキーストアとHTTPサービスのPrometheusメトリクスを提供する。
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crypto-keystore/internal/domain"
	"crypto-keystore/internal/usecase"
)

// Metrics はアプリケーションのメトリクスを保持する。
type Metrics struct {
	gatherer prometheus.Gatherer

	keystoreOperations  *prometheus.CounterVec
	keystoreDuration    *prometheus.HistogramVec
	reconnectRetries    prometheus.Counter
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics はデフォルトレジストリに登録したMetricsを生成する。
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry は指定したレジストリに登録したMetricsを生成する。テストで使う。
func NewMetricsWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		keystoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystore_operations_total",
				Help: "Total number of keystore operations",
			},
			[]string{"operation", "result"},
		),
		keystoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keystore_operation_duration_seconds",
				Help:    "Keystore operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		reconnectRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keystore_reconnect_retries_total",
				Help: "Total number of failed keystore connection attempts that were retried",
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordKeystoreOperation はキーストア操作の結果と所要時間を記録する。
func (m *Metrics) RecordKeystoreOperation(operation string, duration time.Duration, err error) {
	m.keystoreOperations.WithLabelValues(operation, Result(err)).Inc()
	m.keystoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReconnectRetry は再試行された接続失敗を記録する。ConnectionManager.OnRetry に渡す。
func (m *Metrics) RecordReconnectRetry(err error, attempt int) {
	m.reconnectRetries.Inc()
}

// RecordHTTPRequest はHTTPリクエストを記録する。path にはルートパターンを渡す。
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler は /metrics 用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Result はエラーをメトリクスのresultラベルに変換する。
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUnknownKey):
		return "unknown_key"
	case errors.Is(err, domain.ErrInvalidKeyID):
		return "invalid_key_id"
	case errors.Is(err, domain.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, domain.ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, domain.ErrConnection):
		return "connection_error"
	case errors.Is(err, domain.ErrMigrationFailed):
		return "migration_error"
	default:
		return "error"
	}
}

// instrumentedKeyStore は操作ごとにメトリクスを記録するKeyStore。
type instrumentedKeyStore struct {
	next    usecase.KeyStore
	metrics *Metrics
}

// InstrumentKeyStore はKeyStoreをラップして各操作の件数と所要時間を記録する。
func InstrumentKeyStore(ks usecase.KeyStore, m *Metrics) usecase.KeyStore {
	return &instrumentedKeyStore{next: ks, metrics: m}
}

func (s *instrumentedKeyStore) GetKeyID(ctx context.Context, account string) (int64, error) {
	start := time.Now()
	id, err := s.next.GetKeyID(ctx, account)
	s.metrics.RecordKeystoreOperation("get_key_id", time.Since(start), err)
	return id, err
}

func (s *instrumentedKeyStore) GetKey(ctx context.Context, keyID any) ([]byte, error) {
	start := time.Now()
	key, err := s.next.GetKey(ctx, keyID)
	s.metrics.RecordKeystoreOperation("get_key", time.Since(start), err)
	return key, err
}

func (s *instrumentedKeyStore) ValidateKeyID(keyID any) error {
	return s.next.ValidateKeyID(keyID)
}

func (s *instrumentedKeyStore) Sync(ctx context.Context) error {
	start := time.Now()
	err := s.next.Sync(ctx)
	s.metrics.RecordKeystoreOperation("sync", time.Since(start), err)
	return err
}
