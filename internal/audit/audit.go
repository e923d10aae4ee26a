package audit

import (
	"context"
	"strings"
	"time"

	"pontual.org/internal/ids"
	"pontual.org/internal/obs"
)

// Entry is one append-only compliance record. EmployeeID is nil for
// attempts that never resolved an identity (bad QR, unknown code).
type Entry struct {
	ID         string
	OccurredAt time.Time
	EmployeeID *int64
	Action     string
	Resource   string
	ResourceID string
	Outcome    string
	Detail     string
	IP         string
	UserAgent  string
	RequestID  string
}

// Store persists entries. Rows are never updated or deleted.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier used to correlate audit
// rows with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder writes every entry twice: a JSON audit line for operators and a
// store row for the legal trail. The punch and auth paths treat this as a
// required collaborator, not best-effort logging.
type Recorder struct {
	store Store
	now   func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record completes the entry and persists it. The JSON line is emitted
// even when the store append fails, so an outage never hides the event
// entirely.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = requestIDFromContext(ctx)
	}

	line := map[string]any{
		"ts":      entry.OccurredAt.Format(time.RFC3339Nano),
		"type":    "audit",
		"action":  entry.Action,
		"outcome": entry.Outcome,
	}
	if entry.EmployeeID != nil {
		line["employee_id"] = *entry.EmployeeID
	}
	if entry.Resource != "" {
		line["resource"] = entry.Resource
	}
	if entry.ResourceID != "" {
		line["resource_id"] = entry.ResourceID
	}
	if entry.Detail != "" {
		line["detail"] = entry.Detail
	}
	if entry.RequestID != "" {
		line["request_id"] = entry.RequestID
	}
	if entry.IP != "" {
		line["ip"] = entry.IP
	}
	obs.LogEntry(line)

	return r.store.Append(ctx, &entry)
}
