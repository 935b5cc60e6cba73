package exchange

import (
	"context"
	"crypto"
	"crypto/md5"
	"crypto/rsa"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func lbankTimeHandler(mux *http.ServeMux) {
	mux.HandleFunc("/v2/timestamp.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"true","error_code":0,"data":1700000000000}`))
	})
}

func TestLbankPlaceMarketBuySignsForm(t *testing.T) {
	pemKey, key := genRSAKeyPEM(t)

	var gotForm map[string]string
	mux := http.NewServeMux()
	lbankTimeHandler(mux)
	mux.HandleFunc("/v2/create_order.do", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Write([]byte(`{"result":"true","error_code":0,"data":{"order_id":"ab-123"}}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := NewLbankClient(ts.URL, "lbank", "api-key-1", pemKey, testSpec(t))
	require.NoError(t, err)

	orderID, err := c.PlaceOrder(context.Background(), OrderRequest{
		Symbol:   "MNTLUSDT",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: decimal.NewFromFloat(40.005),
	})
	require.NoError(t, err)
	require.Equal(t, "ab-123", orderID)

	// 市价买单：type=buy_market，price 承载计价金额（两位小数）
	require.Equal(t, "buy_market", gotForm["type"])
	require.Equal(t, "40.01", gotForm["price"])
	require.Equal(t, "mntl_usdt", gotForm["symbol"])
	require.Equal(t, "api-key-1", gotForm["api_key"])
	require.Equal(t, "RSA", gotForm["signature_method"])
	require.NotEmpty(t, gotForm["echostr"])

	// 用公钥验证表单签名：sign 覆盖除 sign 外全部字段
	tsMs, err := strconv.ParseInt(gotForm["timestamp"], 10, 64)
	require.NoError(t, err)
	var params Params
	for _, k := range []string{"api_key", "signature_method", "echostr", "symbol", "type", "price"} {
		params = append(params, Param{Key: k, Value: gotForm[k]})
	}
	signer := &RSASigner{key: key}
	digest := md5.Sum([]byte(signer.Prepared(params, tsMs)))
	raw, err := base64.StdEncoding.DecodeString(gotForm["sign"])
	require.NoError(t, err)
	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.MD5, digest[:], raw))
}

func TestLbankAccountBalancesTopLevel(t *testing.T) {
	pemKey, _ := genRSAKeyPEM(t)

	mux := http.NewServeMux()
	lbankTimeHandler(mux)
	mux.HandleFunc("/v2/supplement/user_info_account.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"true","error_code":0,"balances":[
			{"asset":"MNTL","free":"500","locked":"0"},
			{"asset":"USDT","free":"10","locked":"0"}
		]}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := NewLbankClient(ts.URL, "lbank", "k", pemKey, testSpec(t))
	require.NoError(t, err)

	balances, err := c.AccountBalances(context.Background())
	require.NoError(t, err)
	require.True(t, balances["MNTL"].Total().Equal(decimal.NewFromInt(500)))
	require.True(t, balances["USDT"].Free.Equal(decimal.NewFromInt(10)))
}

func TestLbankAccountBalancesNested(t *testing.T) {
	pemKey, _ := genRSAKeyPEM(t)

	mux := http.NewServeMux()
	lbankTimeHandler(mux)
	mux.HandleFunc("/v2/supplement/user_info_account.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"true","error_code":0,"data":{"balances":[
			{"asset":"usdt","free":"960","locked":"40"}
		]}}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := NewLbankClient(ts.URL, "lbank", "k", pemKey, testSpec(t))
	require.NoError(t, err)

	balances, err := c.AccountBalances(context.Background())
	require.NoError(t, err)
	// 资产符号统一成大写
	require.True(t, balances["USDT"].Total().Equal(decimal.NewFromInt(1000)))
}

func TestLbankPrice(t *testing.T) {
	pemKey, _ := genRSAKeyPEM(t)

	mux := http.NewServeMux()
	lbankTimeHandler(mux)
	mux.HandleFunc("/v2/ticker.do", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "mntl_usdt", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"result":"true","error_code":0,"data":[
			{"symbol":"mntl_usdt","ticker":{"latest":"0.02"}}
		]}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := NewLbankClient(ts.URL, "lbank", "k", pemKey, testSpec(t))
	require.NoError(t, err)

	price, err := c.Price(context.Background(), "MNTLUSDT")
	require.NoError(t, err)
	require.Equal(t, "0.02", price.String())
}

func TestLbankOrderBookTopEmptySide(t *testing.T) {
	pemKey, _ := genRSAKeyPEM(t)

	mux := http.NewServeMux()
	lbankTimeHandler(mux)
	mux.HandleFunc("/v2/depth.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"true","error_code":0,"data":{"bids":[[0.02,100]],"asks":[]}}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := NewLbankClient(ts.URL, "lbank", "k", pemKey, testSpec(t))
	require.NoError(t, err)

	_, err = c.OrderBookTop(context.Background(), "MNTLUSDT", 5)
	require.ErrorIs(t, err, ErrEmptyBook)
}

func TestLbankCancelOrderErrorCode(t *testing.T) {
	pemKey, _ := genRSAKeyPEM(t)

	mux := http.NewServeMux()
	lbankTimeHandler(mux)
	mux.HandleFunc("/v2/cancel_order.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"false","error_code":10025}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := NewLbankClient(ts.URL, "lbank", "k", pemKey, testSpec(t))
	require.NoError(t, err)

	err = c.CancelOrder(context.Background(), "MNTLUSDT", "oid-1")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestLbankLowerSymbol(t *testing.T) {
	pemKey, _ := genRSAKeyPEM(t)

	c, err := NewLbankClient("http://localhost", "lbank", "k", pemKey, testSpec(t))
	require.NoError(t, err)

	// 配置内的交易对按规格推导下划线形式，其余符号只做小写
	require.Equal(t, "mntl_usdt", c.lowerSymbol("MNTLUSDT"))
	require.Equal(t, "mntl_usdt", c.lowerSymbol("mntlusdt"))
	require.Equal(t, "eth_usdt", c.lowerSymbol("ETH_USDT"))
}
