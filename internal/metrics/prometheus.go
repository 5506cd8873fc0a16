package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "bl_arb_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(counter)
		return counter
	}

	m := &Metrics{
		QuotesApplied:           promCounter{newCounter("quotes_applied_total", "Total number of quote updates applied to the book store.")},
		StaleQuotesDropped:      promCounter{newCounter("stale_quotes_dropped_total", "Total number of out-of-order or duplicate quote updates dropped.")},
		OpportunitiesDetected:   promCounter{newCounter("opportunities_detected_total", "Total number of spread opportunities emitted.")},
		OpportunitiesSuppressed: promCounter{newCounter("opportunities_suppressed_total", "Total number of opportunities suppressed by position headroom.")},
		AttemptsStarted:         promCounter{newCounter("attempts_started_total", "Total number of hedged execution attempts started.")},
		AttemptsHedged:          promCounter{newCounter("attempts_hedged_total", "Total number of attempts with both legs filled.")},
		AttemptsAborted:         promCounter{newCounter("attempts_aborted_total", "Total number of attempts aborted before any exposure.")},
		Unwinds:                 promCounter{newCounter("unwinds_total", "Total number of unwind orders submitted.")},
		UnwindFailures:          promCounter{newCounter("unwind_failures_total", "Total number of failed unwinds leaving open exposure.")},
		OrdersPlaced:            promCounter{newCounter("orders_placed_total", "Total number of orders placed.")},
		OrdersFailed:            promCounter{newCounter("orders_failed_total", "Total number of order placement failures.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
