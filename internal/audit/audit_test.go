package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "EcoBot-Chain/internal/errors"
)

func TestFileRecorderAppendsJSONLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stats", "statistics.log")
	rec, err := NewFileRecorder(FileConfig{Path: path})
	if err != nil {
		t.Fatalf("open recorder: %v", err)
	}

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	events := []Event{
		{Type: EventOracleUpdate, Timestamp: ts, Data: map[string]any{"price": "200000000000"}},
		{Type: EventAMMTransaction, Timestamp: ts, Data: map[string]any{"type": "buy", "pool": "dUSD/mWETH"}},
	}
	for _, ev := range events {
		if err := rec.Record(context.Background(), ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening appends instead of truncating.
	again, err := NewFileRecorder(FileConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := again.Record(context.Background(), Event{Type: EventLending, Timestamp: ts}); err != nil {
		t.Fatalf("record after reopen: %v", err)
	}
	_ = again.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open stats: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid json line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, entry)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0]["timestamp"] != "2026-01-02 03:04:05" || lines[0]["event_type"] != EventOracleUpdate {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if _, ok := lines[2]["data"].(map[string]any); !ok {
		t.Fatalf("expected empty data object, got %+v", lines[2])
	}
}

func TestFileRecorderRotatesOnWholeLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "statistics.log")
	rec, err := NewFileRecorder(FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 3})
	if err != nil {
		t.Fatalf("open recorder: %v", err)
	}
	payload := strings.Repeat("a", 10*1024)
	for i := 0; i < 120; i++ {
		if err := rec.Record(context.Background(), NewEvent(EventAMMTransaction, map[string]any{"n": i, "pad": payload})); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	_ = rec.Close()

	files, _ := filepath.Glob(path + "*")
	if len(files) < 2 {
		t.Fatalf("expected a rotated backup, got %v", files)
	}
	total := 0
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 64*1024)
		for scanner.Scan() {
			var entry map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				t.Fatalf("%s: broken line: %v", name, err)
			}
			total++
		}
		_ = f.Close()
	}
	if total != 120 {
		t.Fatalf("expected 120 records across files, got %d", total)
	}
}

type failingRecorder struct {
	err   error
	calls int
}

func (f *failingRecorder) Record(context.Context, Event) error { f.calls++; return f.err }
func (f *failingRecorder) Close() error                        { return nil }

func TestMultiDeliversToEverySink(t *testing.T) {
	t.Parallel()

	broken := &failingRecorder{err: errors.New("sink down")}
	healthy := &failingRecorder{}
	multi := Multi{broken, healthy}

	err := multi.Record(context.Background(), NewEvent(EventTransaction, nil))
	if err == nil || !errors.Is(err, broken.err) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if broken.calls != 1 || healthy.calls != 1 {
		t.Fatalf("expected both sinks called, got %d %d", broken.calls, healthy.calls)
	}
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error { return nil }

func TestAMQPRecorderPublishes(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	rec := &AMQPRecorder{ch: ch, exchange: "ecobot.statistics", agent: "arbitrage"}

	event := NewEvent(EventLending, map[string]any{"type": "liquidation"})
	if err := rec.Record(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.key != "statistics.arbitrage.lending" || ch.exchange != "ecobot.statistics" {
		t.Fatalf("unexpected routing %s/%s", ch.exchange, ch.key)
	}
	var body map[string]any
	if err := json.Unmarshal(ch.msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["event_type"] != EventLending {
		t.Fatalf("unexpected body %+v", body)
	}

	ch.err = errors.New("channel closed")
	if err := rec.Record(context.Background(), event); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestMySQLRecorderInsertsEvent(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(insertEventSQL, mockResult{rowsAffected: 1}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	rec := newMySQLRecorder(db, "oracle")
	rec.newID = func() string { return "fixed-id" }

	ts := time.UnixMilli(1_700_000_000_123)
	if err := rec.Record(context.Background(), Event{Type: EventOracleUpdate, Timestamp: ts, Data: map[string]any{"price": "1"}}); err != nil {
		t.Fatalf("record: %v", err)
	}
	args := driver.lastArgs
	if len(args) != 5 || args[0] != "fixed-id" || args[1] != "oracle" || args[3] != int64(1_700_000_000_123) {
		t.Fatalf("unexpected insert args %v", args)
	}
}

func TestMySQLRecorderEnsureSchemaAppliesPendingSteps(t *testing.T) {
	t.Parallel()

	step := firstSchemaStep(t)
	ops := []mockOperation{
		queryOp(lockSchemaSQL, lockRows(1)),
		execOp(createStepLogSQL, mockResult{}),
		queryOp(appliedStepsSQL, mockRowsData{columns: []string{"step"}}),
		execOp(step.statements[0], mockResult{}),
		execOp(recordStepSQL, mockResult{rowsAffected: 1}),
		execOp(unlockSchemaSQL, mockResult{}),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	rec := newMySQLRecorder(db, "arbitrage")
	if err := rec.ensureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if step.name != "0001_create_statistics_events" {
		t.Fatalf("unexpected step name %q", step.name)
	}
}

func TestMySQLRecorderEnsureSchemaSkipsAppliedSteps(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		queryOp(lockSchemaSQL, lockRows(1)),
		execOp(createStepLogSQL, mockResult{}),
		queryOp(appliedStepsSQL, mockRowsData{
			columns: []string{"step"},
			values:  rowValues(firstSchemaStep(t).name),
		}),
		execOp(unlockSchemaSQL, mockResult{}),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	if err := newMySQLRecorder(db, "oracle").ensureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
}

func TestMySQLRecorderEnsureSchemaNeedsLock(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{queryOp(lockSchemaSQL, lockRows(0))})
	defer driver.assertConsumed(t)
	defer db.Close()

	err := newMySQLRecorder(db, "retailer-dusd").ensureSchema(context.Background())
	if !xerrors.HasCode(err, xerrors.CodeStorageFailure) {
		t.Fatalf("expected STORAGE_FAILURE when another agent holds the lock, got %v", err)
	}
}

func firstSchemaStep(t *testing.T) schemaStep {
	t.Helper()
	steps, err := schemaSteps(schemaSource)
	if err != nil || len(steps) == 0 {
		t.Fatalf("load schema steps: %v", err)
	}
	return steps[0]
}
