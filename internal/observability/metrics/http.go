package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type cycleKey struct {
	agent   string
	outcome string
}

type txKey struct {
	agent   string
	kind    string
	outcome string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu           sync.Mutex
	cycles       map[cycleKey]uint64
	transactions map[txKey]uint64
	confirmation map[string]*histogram
}

func newCollector() *collector {
	return &collector{
		cycles:       make(map[cycleKey]uint64),
		transactions: make(map[txKey]uint64),
		confirmation: make(map[string]*histogram),
	}
}

var agentCollector = newCollector()

// ObserveCycle counts one finished agent cycle. outcome is "ok", "error" or "panic".
func ObserveCycle(agent, outcome string) {
	agentCollector.observeCycle(agent, outcome)
}

// ObserveTransaction counts one submitted ledger transaction and, when the
// receipt arrived, the time spent waiting for it.
func ObserveTransaction(agent, kind, outcome string, confirmation time.Duration) {
	agentCollector.observeTransaction(agent, kind, outcome, confirmation)
}

func (c *collector) observeCycle(agent, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycles[cycleKey{agent: agent, outcome: outcome}]++
}

func (c *collector) observeTransaction(agent, kind, outcome string, confirmation time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transactions[txKey{agent: agent, kind: kind, outcome: outcome}]++
	if confirmation <= 0 {
		return
	}
	hist := c.confirmation[agent]
	if hist == nil {
		hist = newHistogram()
		c.confirmation[agent] = hist
	}
	hist.observe(confirmation.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.5, 1, 2, 5, 10, 20, 30, 60}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
	// Values above the last bound only land in +Inf, which is h.count.
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, agentCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	cycleKeys := make([]cycleKey, 0, len(c.cycles))
	for key := range c.cycles {
		cycleKeys = append(cycleKeys, key)
	}
	sort.Slice(cycleKeys, func(i, j int) bool {
		if cycleKeys[i].agent == cycleKeys[j].agent {
			return cycleKeys[i].outcome < cycleKeys[j].outcome
		}
		return cycleKeys[i].agent < cycleKeys[j].agent
	})

	txKeys := make([]txKey, 0, len(c.transactions))
	for key := range c.transactions {
		txKeys = append(txKeys, key)
	}
	sort.Slice(txKeys, func(i, j int) bool {
		a, b := txKeys[i], txKeys[j]
		if a.agent != b.agent {
			return a.agent < b.agent
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.outcome < b.outcome
	})

	agents := make([]string, 0, len(c.confirmation))
	for agent := range c.confirmation {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP ecobot_cycles_total Total number of agent cycles by outcome.\n")
	builder.WriteString("# TYPE ecobot_cycles_total counter\n")
	for _, key := range cycleKeys {
		builder.WriteString(fmt.Sprintf("ecobot_cycles_total{agent=\"%s\",outcome=\"%s\"} %d\n",
			escape(key.agent), escape(key.outcome), c.cycles[key]))
	}

	builder.WriteString("# HELP ecobot_transactions_total Total number of submitted ledger transactions.\n")
	builder.WriteString("# TYPE ecobot_transactions_total counter\n")
	for _, key := range txKeys {
		builder.WriteString(fmt.Sprintf("ecobot_transactions_total{agent=\"%s\",kind=\"%s\",outcome=\"%s\"} %d\n",
			escape(key.agent), escape(key.kind), escape(key.outcome), c.transactions[key]))
	}

	builder.WriteString("# HELP ecobot_confirmation_seconds Time spent waiting for transaction receipts.\n")
	builder.WriteString("# TYPE ecobot_confirmation_seconds histogram\n")
	for _, agent := range agents {
		hist := c.confirmation[agent]
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("ecobot_confirmation_seconds_bucket{agent=\"%s\",le=\"%s\"} %d\n",
				escape(agent), formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("ecobot_confirmation_seconds_bucket{agent=\"%s\",le=\"+Inf\"} %d\n",
			escape(agent), hist.count))
		builder.WriteString(fmt.Sprintf("ecobot_confirmation_seconds_sum{agent=\"%s\"} %s\n",
			escape(agent), formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("ecobot_confirmation_seconds_count{agent=\"%s\"} %d\n",
			escape(agent), hist.count))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
