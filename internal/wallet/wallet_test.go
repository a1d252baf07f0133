package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcAddress = "0x2791Bca1f2de4661ED88A58C7C2c2C85a8CA8A3A"
	proxyWallet = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// fakeRPC 只实现 eth_call 和 eth_blockNumber
func fakeRPC(t *testing.T, balanceHex string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		var result any
		switch req.Method {
		case "eth_call":
			result = "0x" + strings.Repeat("0", 64-len(balanceHex)) + balanceHex
		case "eth_blockNumber":
			result = "0x3e8"
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestChainBalance(t *testing.T) {
	srv := fakeRPC(t, "bebc20") // 12500000 = 12.5 USDC
	defer srv.Close()

	b, err := DialChainBalance(context.Background(), srv.URL, usdcAddress)
	require.NoError(t, err)
	defer b.Close()

	bal, err := b.AvailableBalance(context.Background(), proxyWallet)
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.String())

	n, err := b.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), n)

	_, err = b.AvailableBalance(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestNewChainBalanceRejectsBadContract(t *testing.T) {
	_, err := NewChainBalance(nil, "0x123")
	assert.Error(t, err)
}

func TestDataAPIPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		if r.URL.Query().Get("user") != proxyWallet {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[
			{"asset":"111","conditionId":"0xAAA","size":"12.5","avgPrice":0.4,"currentValue":6,"curPrice":0.48,"title":"Will it rain?"},
			{"asset":"222","conditionId":"0xbbb","size":3,"avgPrice":0.9}
		]`))
	}))
	defer srv.Close()

	api := NewDataAPI(srv.URL, 0, nil)
	ctx := context.Background()

	p, err := api.Position(ctx, proxyWallet, "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "111", p.Asset)
	assert.Equal(t, "12.5", p.Size.String())
	assert.Equal(t, "5", p.CostValue().String())

	p, err = api.Position(ctx, proxyWallet, "0xccc")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = api.Position(ctx, "0x0000000000000000000000000000000000000001", "0xaaa")
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.NoError(t, api.Ping(ctx))
}

func TestDataAPIHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad user"}`))
	}))
	defer srv.Close()

	_, err := NewDataAPI(srv.URL, 0, nil).Positions(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestDataAPIDecodesPlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`[{"conditionId":"0xaaa","size":"80"}]`))
	}))
	defer srv.Close()

	p, err := NewDataAPI(srv.URL, 0, nil).Position(context.Background(), proxyWallet, "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, p, "text/plain 响应也必须解析出持仓")
	assert.Equal(t, "80", p.Size.String())
}

func TestDataAPIMalformedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	// 不能当成空持仓，否则会触发全部卖出
	p, err := NewDataAPI(srv.URL, 0, nil).Position(context.Background(), proxyWallet, "0xaaa")
	require.Error(t, err)
	assert.Nil(t, p)
}
