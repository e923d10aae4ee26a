package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"pontual.org/internal/obs"
)

func TestRecordFillsDefaultsAndPersists(t *testing.T) {
	logger := obs.Logger()
	origWriter := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(origWriter)

	store := NewMemory()
	rec := NewRecorder(store)
	rec.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	employeeID := int64(42)
	ctx := WithRequestID(context.Background(), "req-123")
	err := rec.Record(ctx, Entry{
		EmployeeID: &employeeID,
		Action:     "PUNCH_REGISTERED",
		Resource:   "time_punches",
		Outcome:    "success",
		Detail:     "entrada via codigo",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ID == "" {
		t.Fatal("expected generated id")
	}
	if got.RequestID != "req-123" {
		t.Fatalf("request id not taken from context: %q", got.RequestID)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("expected occurred-at to be set")
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("audit line is not JSON: %v", err)
	}
	if line["type"] != "audit" {
		t.Fatalf("unexpected line type: %v", line["type"])
	}
	if line["action"] != "PUNCH_REGISTERED" {
		t.Fatalf("unexpected action: %v", line["action"])
	}
	if line["employee_id"] != float64(42) {
		t.Fatalf("unexpected employee id: %v", line["employee_id"])
	}
}
