package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"likesync/pkg/logger"
)

var (
	PollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "likesync_poll_cycles_total",
		Help: "Total poll cycles started",
	})
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "likesync_cycle_duration_seconds",
		Help:    "Poll cycle duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	LikesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "likesync_likes_fetched_total",
		Help: "Liked posts returned by the API",
	}, []string{"user"})
	PostsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "likesync_posts_skipped_total",
		Help: "Posts dropped or emptied during the join",
	}, []string{"reason"})
	Downloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "likesync_downloads_total",
		Help: "Media download outcomes",
	}, []string{"result"})
	DownloadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "likesync_download_bytes_total",
		Help: "Bytes written to storage",
	})
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "likesync_api_requests_total",
		Help: "X API requests by endpoint and status code",
	}, []string{"endpoint", "status"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "likesync_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	AuthorCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "likesync_author_cache_size",
		Help: "Users held in the author cache",
	})
	PollerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "likesync_poller_state",
		Help: "1 for the poll loop's current state, 0 otherwise",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(
		PollCycles, CycleDuration, LikesFetched, PostsSkipped,
		Downloads, DownloadBytes, APIRequests, APIRetries,
		AuthorCacheSize, PollerState,
	)
}

// Handler returns the HTTP handler serving /metrics and /health
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
// It returns nil when addr is empty. Shut it down with Shutdown.
func StartServer(addr string, log logger.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).WithField("address", addr).Error("Metrics server stopped")
		}
	}()
	return srv
}

// Shutdown stops a server returned by StartServer; nil is a no-op
func Shutdown(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ObserveCycleDuration records a cycle duration
func ObserveCycleDuration(start time.Time) {
	CycleDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// SetState marks state as the poller's only active state
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		PollerState.WithLabelValues(s).Set(v)
	}
}
