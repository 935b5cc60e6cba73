package exchange

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mntlbot/rebalancer/pkg/httpclient"
	"github.com/mntlbot/rebalancer/pkg/logger"
	"github.com/mntlbot/rebalancer/pkg/marketspec"
	"github.com/mntlbot/rebalancer/pkg/ratelimit"
)

// DefaultLbankHost LBank v2 REST 地址
const DefaultLbankHost = "https://api.lbank.info"

// LbankClient LBank v2 REST 客户端。
// 认证走 RSA 签名，参数以表单（application/x-www-form-urlencoded）提交。
type LbankClient struct {
	name    string
	apiKey  string
	signer  *RSASigner
	spec    marketspec.PairSpec
	http    *httpclient.Client
	limiter *ratelimit.Manager
	log     *logrus.Entry
}

// NewLbankClient 构造客户端。privateKey 解析失败返回 ErrKeyParse。
func NewLbankClient(host, name, apiKey, privateKey string, spec marketspec.PairSpec) (*LbankClient, error) {
	signer, err := NewRSASigner(privateKey)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "lbank"
	}
	return &LbankClient{
		name:    name,
		apiKey:  apiKey,
		signer:  signer,
		spec:    spec,
		http:    httpclient.NewClient(host),
		limiter: ratelimit.NewManager(),
		log:     logger.WithField("exchange", name),
	}, nil
}

func (c *LbankClient) Name() string { return c.name }

// lbankEnvelope LBank 的统一响应包装
type lbankEnvelope struct {
	ErrorCode int `json:"error_code"`
}

type lbankTimeResp struct {
	lbankEnvelope
	Data int64 `json:"data"`
}

func (c *LbankClient) ServerTime(ctx context.Context) (int64, error) {
	if err := c.limiter.Wait(ctx, "time"); err != nil {
		return 0, err
	}
	var out lbankTimeResp
	resp, err := c.http.DoRequest(ctx, http.MethodGet, "/v2/timestamp.do", nil, &out)
	if err != nil {
		return 0, err
	}
	if !resp.IsSuccess() || out.Data == 0 {
		return 0, newAPIError(c.name, "server_time", resp.StatusCode(), resp.Body())
	}
	return out.Data, nil
}

// echostr 每次签名请求的随机串（30~40 位字母数字）
func echostr() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// signedPost 发送 RSA 签名的表单 POST。
// 时间戳每次从服务器拉取；签名覆盖全部表单字段（sign 除外）。
func (c *LbankClient) signedPost(ctx context.Context, endpoint, limitClass string, params Params, out any) error {
	ts, err := c.ServerTime(ctx)
	if err != nil {
		return err
	}

	all := make(Params, 0, len(params)+3)
	all = append(all,
		Param{Key: "api_key", Value: c.apiKey},
		Param{Key: "signature_method", Value: "RSA"},
		Param{Key: "echostr", Value: echostr()},
	)
	all = append(all, params...)

	sign, err := c.signer.Sign(all, ts)
	if err != nil {
		return err
	}

	form := make(map[string]string, len(all)+2)
	for _, p := range all {
		form[p.Key] = p.Value
	}
	form["timestamp"] = strconv.FormatInt(ts, 10)
	form["sign"] = sign

	if err := c.limiter.Wait(ctx, limitClass); err != nil {
		return err
	}
	resp, err := c.http.DoRequest(ctx, http.MethodPost, endpoint, &httpclient.RequestOptions{
		FormData: form,
	}, out)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return newAPIError(c.name, endpoint, resp.StatusCode(), resp.Body())
	}
	return nil
}

type lbankBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type lbankAccountResp struct {
	lbankEnvelope
	// 部分网关把余额放在顶层，部分放在 data 里，两种都接受
	Balances []lbankBalance `json:"balances"`
	Data     struct {
		Balances []lbankBalance `json:"balances"`
	} `json:"data"`
}

func (c *LbankClient) AccountBalances(ctx context.Context) (map[string]Balance, error) {
	var out lbankAccountResp
	if err := c.signedPost(ctx, "/v2/supplement/user_info_account.do", "account", nil, &out); err != nil {
		return nil, err
	}
	if out.ErrorCode != 0 {
		return nil, newAPIError(c.name, "account", 200, []byte("error_code="+strconv.Itoa(out.ErrorCode)))
	}

	raw := out.Balances
	if raw == nil {
		raw = out.Data.Balances
	}
	if raw == nil {
		return nil, newAPIError(c.name, "account", 200, []byte("missing balances field"))
	}

	balances := make(map[string]Balance, len(raw))
	for _, b := range raw {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, newAPIError(c.name, "account", 200, []byte("bad free amount: "+b.Free))
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, newAPIError(c.name, "account", 200, []byte("bad locked amount: "+b.Locked))
		}
		asset := strings.ToUpper(b.Asset)
		balances[asset] = Balance{Asset: asset, Free: free, Locked: locked}
	}
	return balances, nil
}

type lbankTickerResp struct {
	lbankEnvelope
	Data []struct {
		Symbol string `json:"symbol"`
		Ticker struct {
			Latest string `json:"latest"`
		} `json:"ticker"`
	} `json:"data"`
}

func (c *LbankClient) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx, "ticker"); err != nil {
		return decimal.Zero, err
	}
	var out lbankTickerResp
	resp, err := c.http.DoRequest(ctx, http.MethodGet, "/v2/ticker.do", &httpclient.RequestOptions{
		Params: map[string]string{"symbol": c.lowerSymbol(symbol)},
	}, &out)
	if err != nil {
		return decimal.Zero, err
	}
	if !resp.IsSuccess() || out.ErrorCode != 0 || len(out.Data) == 0 {
		return decimal.Zero, newAPIError(c.name, "ticker", resp.StatusCode(), resp.Body())
	}
	price, err := decimal.NewFromString(out.Data[0].Ticker.Latest)
	if err != nil {
		return decimal.Zero, newAPIError(c.name, "ticker", 200, []byte("bad price: "+out.Data[0].Ticker.Latest))
	}
	return price, nil
}

type lbankOrderResp struct {
	lbankEnvelope
	Data struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

func (c *LbankClient) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	params := Params{{Key: "symbol", Value: c.lowerSymbol(req.Symbol)}}

	switch {
	case req.Type == OrderTypeMarket && req.Side == SideBuy:
		// 市价买单：price 字段承载要花费的计价资产金额
		params = append(params,
			Param{Key: "type", Value: "buy_market"},
			Param{Key: "price", Value: c.spec.RoundQuote(req.Quantity).StringFixed(2)},
		)
	case req.Type == OrderTypeMarket && req.Side == SideSell:
		params = append(params,
			Param{Key: "type", Value: "sell_market"},
			Param{Key: "amount", Value: c.spec.FormatQuantity(req.Quantity)},
		)
	default:
		side := "buy"
		if req.Side == SideSell {
			side = "sell"
		}
		params = append(params,
			Param{Key: "type", Value: side},
			Param{Key: "price", Value: c.spec.FormatPrice(req.Price)},
			Param{Key: "amount", Value: c.spec.FormatQuantity(req.Quantity)},
		)
	}
	if req.ClientOrderID != "" {
		params = append(params, Param{Key: "custom_id", Value: req.ClientOrderID})
	}

	var out lbankOrderResp
	if err := c.signedPost(ctx, "/v2/create_order.do", "order", params, &out); err != nil {
		return "", err
	}
	if out.ErrorCode != 0 || out.Data.OrderID == "" {
		return "", newAPIError(c.name, "place_order", 200, []byte("error_code="+strconv.Itoa(out.ErrorCode)+" missing order_id"))
	}
	c.log.Infof("下单成功: %s %s %s qty=%s orderId=%s", req.Symbol, req.Side, req.Type, req.Quantity, out.Data.OrderID)
	return out.Data.OrderID, nil
}

func (c *LbankClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := Params{
		{Key: "symbol", Value: c.lowerSymbol(symbol)},
		{Key: "order_id", Value: orderID},
	}
	var out lbankEnvelope
	if err := c.signedPost(ctx, "/v2/cancel_order.do", "order", params, &out); err != nil {
		return err
	}
	if out.ErrorCode != 0 {
		return newAPIError(c.name, "cancel_order", 200, []byte("error_code="+strconv.Itoa(out.ErrorCode)))
	}
	return nil
}

type lbankDepthResp struct {
	lbankEnvelope
	Data struct {
		Bids [][]float64 `json:"bids"`
		Asks [][]float64 `json:"asks"`
	} `json:"data"`
}

func (c *LbankClient) OrderBookTop(ctx context.Context, symbol string, depth int) (BookTop, error) {
	if depth <= 0 {
		depth = 5
	}
	if err := c.limiter.Wait(ctx, "depth"); err != nil {
		return BookTop{}, err
	}
	var out lbankDepthResp
	resp, err := c.http.DoRequest(ctx, http.MethodGet, "/v2/depth.do", &httpclient.RequestOptions{
		Params: map[string]string{
			"symbol": c.lowerSymbol(symbol),
			"size":   strconv.Itoa(depth),
		},
	}, &out)
	if err != nil {
		return BookTop{}, err
	}
	if !resp.IsSuccess() || out.ErrorCode != 0 {
		return BookTop{}, newAPIError(c.name, "depth", resp.StatusCode(), resp.Body())
	}
	if len(out.Data.Bids) == 0 || len(out.Data.Asks) == 0 {
		return BookTop{}, ErrEmptyBook
	}
	if len(out.Data.Bids[0]) == 0 || len(out.Data.Asks[0]) == 0 {
		return BookTop{}, newAPIError(c.name, "depth", 200, []byte("malformed depth levels"))
	}
	return BookTop{
		BestBid: decimal.NewFromFloat(out.Data.Bids[0][0]),
		BestAsk: decimal.NewFromFloat(out.Data.Asks[0][0]),
	}, nil
}

// lowerSymbol 把 MNTLUSDT 风格的符号转换为 LBank 的 mntl_usdt 风格。
// 优先用交易对规格推导，避免直接猜测拆分位置。
func (c *LbankClient) lowerSymbol(symbol string) string {
	if strings.EqualFold(symbol, c.spec.Symbol) {
		return c.spec.LowerSymbol()
	}
	return strings.ToLower(symbol)
}
