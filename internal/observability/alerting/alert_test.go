package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "EcoBot-Chain/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFromErrorCarriesCodeAndSeverity(t *testing.T) {
	err := xerrors.New(xerrors.CodeLedgerUnreachable, "节点不可达", xerrors.WithMetadata("rpc", "http://node"))
	event := FromError("arbitrage", "c-1", 2, err)
	if event.Code != xerrors.CodeLedgerUnreachable || event.Severity != xerrors.SeverityCritical {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Metadata["rpc"] != "http://node" || event.Failures != 2 {
		t.Fatalf("unexpected metadata %+v", event)
	}
	if !event.Retryable {
		t.Fatalf("ledger outages are retryable: %+v", event)
	}

	plain := FromError("oracle", "", 1, errors.New("boom"))
	if plain.Code != xerrors.CodeUnknown || plain.Retryable {
		t.Fatalf("unexpected plain event %+v", plain)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{channel: ChannelLog}
	bad := &recordingNotifier{channel: ChannelWebhook, err: errors.New("down")}
	err := NewFanout(ok, bad, nil).Notify(context.Background(), Event{Agent: "oracle"})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(ok.events) != 1 || len(bad.events) != 1 {
		t.Fatalf("every notifier must be called")
	}
}

func TestWebhookNotifier(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	if err := n.Notify(context.Background(), Event{Agent: "retailer-dusd", Code: xerrors.CodeCallReverted}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if received.Agent != "retailer-dusd" || received.Code != xerrors.CodeCallReverted {
		t.Fatalf("unexpected payload %+v", received)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	if err := (&WebhookNotifier{URL: failing.URL}).Notify(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error on 500")
	}
}
