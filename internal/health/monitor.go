package health

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

// Prober runs a connectivity check against one provider.
type Prober interface {
	Test(ctx context.Context, providerID string) (bool, string)
}

var probeUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "textwand_provider_up",
	Help: "1 when the last connectivity probe of the provider succeeded.",
}, []string{"provider"})

// Monitor probes the configured providers on a cron schedule and serves
// Prometheus metrics over HTTP.
type Monitor struct {
	prober    Prober
	providers []string
	cron      *cron.Cron
	server    *http.Server
}

// New builds a monitor. schedule is a cron spec (robfig/cron descriptors
// such as "@every 30m" are accepted). listen is the metrics address.
func New(prober Prober, providers []string, schedule, listen string) (*Monitor, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("health: no providers to probe")
	}
	m := &Monitor{
		prober:    prober,
		providers: providers,
		cron:      cron.New(),
	}
	if _, err := m.cron.AddFunc(schedule, func() { m.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("health: schedule %q: %w", schedule, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{Addr: listen, Handler: mux}
	return m, nil
}

// RunOnce probes every configured provider sequentially.
func (m *Monitor) RunOnce(ctx context.Context) {
	for _, id := range m.providers {
		ok, msg := m.prober.Test(ctx, id)
		if ok {
			probeUp.WithLabelValues(id).Set(1)
			log.Printf("health: probe %s: %s", id, msg)
		} else {
			probeUp.WithLabelValues(id).Set(0)
			log.Printf("health: probe %s failed: %s", id, msg)
		}
	}
}

// Start launches the cron loop and the metrics server. It returns after an
// initial probe round; probing then continues in the background.
func (m *Monitor) Start(ctx context.Context) error {
	m.RunOnce(ctx)
	m.cron.Start()
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health: metrics server: %v", err)
		}
	}()
	return nil
}

// Stop halts probing and shuts the metrics server down.
func (m *Monitor) Stop() {
	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.server.Shutdown(shutdownCtx)
}
