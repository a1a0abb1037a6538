package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentLedger})

	logger.InfoContext(context.Background(), "Transaction recorded", FieldTransactionID, "t1")
	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "transaction_id=t1") {
		t.Fatalf("unexpected log line: %s", out)
	}

	buf.Reset()
	logger.WithComponent(ComponentAnalytics).Warn("Skipping record")
	if !strings.Contains(buf.String(), "component=analytics") {
		t.Fatalf("expected overridden component, got: %s", buf.String())
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithComponent(ComponentHTTP).
		WithScope("u1", "family", "").
		WithError(errors.New("boom")).
		WithError(nil)

	if fields[FieldComponent] != ComponentHTTP || fields[FieldError] != "boom" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if _, ok := fields[FieldWalletID]; ok {
		t.Fatalf("empty wallet id should be omitted")
	}
	if got := len(fields.ToSlice()); got != 2*len(fields) {
		t.Fatalf("ToSlice length = %d, want %d", got, 2*len(fields))
	}
}

func TestMiddlewareAndStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentHTTP})

	if got := FromContext(context.Background()).Component(); got != ComponentApp {
		t.Fatalf("default component = %q, want %q", got, ComponentApp)
	}

	var seen *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		sl := NewStructuredLogger(seen)
		sl.LogError(r.Context(), "Request failed", errors.New("db down"), "list",
			NewFields().WithScope("u1", "personal", "w1"))
		sl.LogHTTPEnd(r.Context(), r, "req_1", http.StatusInternalServerError, 12, "203.0.113.9")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/wallets?x=1", nil))

	if seen != logger {
		t.Fatal("handler did not receive the middleware logger")
	}
	out := buf.String()
	for _, want := range []string{
		`msg="Request failed"`, "error=\"db down\"", "operation=list", "wallet_id=w1",
		`msg="HTTP request completed"`, "level=ERROR", "status_code=500", "request_id=req_1", "client_ip=203.0.113.9", "component=http",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}
