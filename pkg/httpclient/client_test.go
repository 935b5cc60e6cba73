package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoRequestDecodesJSONWithoutContentType(t *testing.T) {
	// 模拟不带 JSON Content-Type 的网关：Go 嗅探成 text/plain，
	// 客户端必须仍按 JSON 解析到 out
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(`{"serverTime":1700000000000}`))
	}))
	defer srv.Close()

	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	resp, err := NewClient(srv.URL).DoRequest(context.Background(), http.MethodGet, "/api/v3/time", nil, &out)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Equal(t, int64(1700000000000), out.ServerTime)
}

func TestDoRequestSendsFormData(t *testing.T) {
	var gotContentType, gotSymbol string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotContentType = r.Header.Get("Content-Type")
		gotSymbol = r.PostFormValue("symbol")
		_, _ = w.Write([]byte(`{"result":"true"}`))
	}))
	defer srv.Close()

	var out struct {
		Result string `json:"result"`
	}
	_, err := NewClient(srv.URL).DoRequest(context.Background(), http.MethodPost, "/v2/supplement/user_info.do",
		&RequestOptions{FormData: map[string]string{"symbol": "mntl_usdt"}}, &out)
	require.NoError(t, err)
	require.Contains(t, gotContentType, "application/x-www-form-urlencoded")
	require.Equal(t, "mntl_usdt", gotSymbol)
	require.Equal(t, "true", out.Result)
}
