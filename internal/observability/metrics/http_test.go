package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorRender(t *testing.T) {
	c := newCollector()
	c.observeCycle("oracle", "ok")
	c.observeCycle("oracle", "ok")
	c.observeCycle("oracle", "error")
	c.observeTransaction("oracle", "setPrice", "success", 1500*time.Millisecond)
	c.observeTransaction("oracle", "setPrice", "rejected", 0)

	out := c.render()
	for _, want := range []string{
		`ecobot_cycles_total{agent="oracle",outcome="ok"} 2`,
		`ecobot_cycles_total{agent="oracle",outcome="error"} 1`,
		`ecobot_transactions_total{agent="oracle",kind="setPrice",outcome="success"} 1`,
		`ecobot_transactions_total{agent="oracle",kind="setPrice",outcome="rejected"} 1`,
		`ecobot_confirmation_seconds_bucket{agent="oracle",le="1"} 0`,
		`ecobot_confirmation_seconds_bucket{agent="oracle",le="2"} 1`,
		`ecobot_confirmation_seconds_count{agent="oracle"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHandlerServesExposition(t *testing.T) {
	ObserveCycle("retailer-dusd", "ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `agent="retailer-dusd"`) {
		t.Fatalf("expected retailer cycle in output")
	}
}
