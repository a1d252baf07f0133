package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/betbot/copybot/internal/domain"
)

func TestDebugVarsExposeOutcomes(t *testing.T) {
	RecordOutcome(domain.StateCompleted)
	OrdersSubmitted.Add(1)

	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/vars", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "trade_outcomes") || !strings.Contains(body, string(domain.StateCompleted)) {
		t.Fatalf("/debug/vars 缺少 trade_outcomes: %s", body)
	}
	if !strings.Contains(body, "orders_submitted") {
		t.Fatalf("/debug/vars 缺少 orders_submitted")
	}
}

func TestStartAsyncStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := StartAsync(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("StartAsync 失败: %v", err)
	}
	if s == nil {
		t.Fatal("server 不应为 nil")
	}
	cancel()
}
