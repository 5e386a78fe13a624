package metrics

import (
	"covfuzz/config"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const namespace = "covfuzz"

// Collector exposes the fuzzing counters as prometheus gauges.
type Collector struct {
	registry   *prometheus.Registry
	execs      prometheus.Gauge
	totalNode  prometheus.Gauge
	corpusSize prometheus.Gauge
	crashes    prometheus.Gauge
	hangs      prometheus.Gauge
}

func NewCollector(appConfig *config.AppConfig) *Collector {
	labels := prometheus.Labels{"run_id": appConfig.RunID}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	c := &Collector{
		registry:   prometheus.NewRegistry(),
		execs:      gauge("executions", "Number of target executions attempted."),
		totalNode:  gauge("coverage_nodes", "Number of distinct coverage units discovered."),
		corpusSize: gauge("corpus_size", "Number of seeds in the corpus."),
		crashes:    gauge("crash_executions", "Number of executions that crashed."),
		hangs:      gauge("hang_executions", "Number of executions that timed out."),
	}
	c.registry.MustRegister(c.execs, c.totalNode, c.corpusSize, c.crashes, c.hangs)
	return c
}

func (c *Collector) Observe(execs, totalNode, crashes, hangs uint64, corpusSize int) {
	c.execs.Set(float64(execs))
	c.totalNode.Set(float64(totalNode))
	c.crashes.Set(float64(crashes))
	c.hangs.Set(float64(hangs))
	c.corpusSize.Set(float64(corpusSize))
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

type ServerParams struct {
	fx.In

	Lc        fx.Lifecycle
	AppConfig *config.AppConfig
	Collector *Collector
	Logger    *zap.Logger
}

// RegisterServer serves /metrics on METRICS_ADDR. Nothing is started when the address is empty.
func RegisterServer(p ServerParams) {
	if p.AppConfig.MetricsAddr == "" {
		p.Logger.Debug("metrics server disabled")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.Collector.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              p.AppConfig.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			p.Logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
