package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("短消息不应拆分: %v", got)
	}

	got := splitMessage("aaaa\nbbbb\ncccc", 9)
	want := []string{"aaaa\nbbbb", "cccc"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("按行拆分结果不对: %q", got)
	}

	for _, part := range splitMessage(strings.Repeat("x", 25), 10) {
		if len(part) > 10 {
			t.Fatalf("单段超过上限: %d", len(part))
		}
	}
}

func TestTelegramNotify(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"copybot","username":"copybot_test"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			mu.Lock()
			texts = append(texts, r.PostForm.Get("text"))
			mu.Unlock()
			assert.Equal(t, "42", r.PostForm.Get("chat_id"))
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tg, err := NewTelegramWithEndpoint("TOKEN", 42, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	require.NoError(t, tg.Notify(context.Background(), "❌ 余额不足"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"❌ 余额不足"}, texts)
}

func TestNewTelegramRequiresConfig(t *testing.T) {
	_, err := NewTelegram("", 1)
	assert.Error(t, err)
	_, err = NewTelegram("token", 0)
	assert.Error(t, err)
}
