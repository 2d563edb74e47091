package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmbus_frames_received_total",
		Help: "Frames delivered by a dongle receiver",
	}, []string{"dongle"})
	OctetsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmbus_octets_discarded_total",
		Help: "Octets dropped while searching for a frame",
	}, []string{"dongle"})
	DongleResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmbus_dongle_resets_total",
		Help: "Reset commands sent after consecutive discards",
	}, []string{"dongle"})
	ListenerPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmbus_listener_panics_total",
		Help: "Recovered panics in frame listeners",
	}, []string{"dongle"})
	DecodeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmbus_decode_outcomes_total",
		Help: "Decode results by outcome",
	}, []string{"outcome"})
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmbus_sink_errors_total",
		Help: "Errors returned by reading sinks",
	}, []string{"sink"})
	DecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wmbus_decode_latency_seconds",
		Help:    "Time spent decoding one frame",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveDecodeLatency(start time.Time) {
	DecodeLatency.Observe(time.Since(start).Seconds())
}

// Handler serves /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs the metrics server until ctx is done.
func Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.WithField("addr", addr).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
