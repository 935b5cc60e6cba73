package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mntlbot/rebalancer/pkg/httpclient"
	"github.com/mntlbot/rebalancer/pkg/logger"
	"github.com/mntlbot/rebalancer/pkg/marketspec"
	"github.com/mntlbot/rebalancer/pkg/ratelimit"
)

// DefaultMexcHost MEXC 现货 REST 地址
const DefaultMexcHost = "https://api.mexc.com"

// MexcClient MEXC 现货 v3 REST 客户端。
// 签名请求的待签名串必须与实际发送的 query string 逐字节一致，
// 因此签名请求的 query 由 HmacSigner.Canonical 统一构造，不走 map。
type MexcClient struct {
	name    string
	apiKey  string
	signer  *HmacSigner
	spec    marketspec.PairSpec
	http    *httpclient.Client
	limiter *ratelimit.Manager
	log     *logrus.Entry
}

func NewMexcClient(host, name, apiKey, secretKey string, spec marketspec.PairSpec) *MexcClient {
	if name == "" {
		name = "mexc"
	}
	return &MexcClient{
		name:    name,
		apiKey:  apiKey,
		signer:  NewHmacSigner(secretKey),
		spec:    spec,
		http:    httpclient.NewClient(host),
		limiter: ratelimit.NewManager(),
		log:     logger.WithField("exchange", name),
	}
}

func (c *MexcClient) Name() string { return c.name }

type mexcTimeResp struct {
	ServerTime int64 `json:"serverTime"`
}

func (c *MexcClient) ServerTime(ctx context.Context) (int64, error) {
	if err := c.limiter.Wait(ctx, "time"); err != nil {
		return 0, err
	}
	var out mexcTimeResp
	resp, err := c.http.DoRequest(ctx, http.MethodGet, "/api/v3/time", nil, &out)
	if err != nil {
		return 0, err
	}
	if !resp.IsSuccess() {
		return 0, newAPIError(c.name, "server_time", resp.StatusCode(), resp.Body())
	}
	if out.ServerTime == 0 {
		return 0, newAPIError(c.name, "server_time", resp.StatusCode(), resp.Body())
	}
	return out.ServerTime, nil
}

// signedRequest 发送签名请求。
// 每次调用前单独从服务器拉取时间戳，可接受的陈旧窗口只有请求本身的延迟。
func (c *MexcClient) signedRequest(ctx context.Context, method, endpoint, limitClass string, params Params, out any) error {
	ts, err := c.ServerTime(ctx)
	if err != nil {
		return err
	}
	sig, err := c.signer.Sign(params, ts)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx, limitClass); err != nil {
		return err
	}

	full := endpoint + "?" + c.signer.Canonical(params, ts) + "&signature=" + sig
	resp, err := c.http.DoRequest(ctx, method, full, &httpclient.RequestOptions{
		Headers: map[string]string{
			"x-mexc-apikey": c.apiKey,
			"Content-Type":  "application/json",
		},
	}, out)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return newAPIError(c.name, endpoint, resp.StatusCode(), resp.Body())
	}
	return nil
}

type mexcBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type mexcAccountResp struct {
	Balances []mexcBalance `json:"balances"`
}

func (c *MexcClient) AccountBalances(ctx context.Context) (map[string]Balance, error) {
	var out mexcAccountResp
	if err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", "account", nil, &out); err != nil {
		return nil, err
	}
	if out.Balances == nil {
		return nil, newAPIError(c.name, "account", 200, []byte("missing balances field"))
	}

	balances := make(map[string]Balance, len(out.Balances))
	for _, b := range out.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, newAPIError(c.name, "account", 200, []byte("bad free amount: "+b.Free))
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, newAPIError(c.name, "account", 200, []byte("bad locked amount: "+b.Locked))
		}
		balances[b.Asset] = Balance{Asset: b.Asset, Free: free, Locked: locked}
	}
	return balances, nil
}

type mexcPriceResp struct {
	Price string `json:"price"`
}

// Price 最新成交价。行情接口同样走签名通道发送。
func (c *MexcClient) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out mexcPriceResp
	params := Params{{Key: "symbol", Value: symbol}}
	if err := c.signedRequest(ctx, http.MethodGet, "/api/v3/ticker/price", "ticker", params, &out); err != nil {
		return decimal.Zero, err
	}
	if out.Price == "" {
		return decimal.Zero, newAPIError(c.name, "ticker_price", 200, []byte("missing price field"))
	}
	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, newAPIError(c.name, "ticker_price", 200, []byte("bad price: "+out.Price))
	}
	return price, nil
}

type mexcOrderResp struct {
	OrderID json.Number `json:"orderId"`
}

func (c *MexcClient) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	params := Params{
		{Key: "symbol", Value: req.Symbol},
		{Key: "side", Value: string(req.Side)},
		{Key: "type", Value: string(req.Type)},
	}

	switch {
	case req.Type == OrderTypeMarket && req.Side == SideBuy:
		// 市价买单用 quoteOrderQty 表示要花费的计价资产金额，保留两位小数
		params = append(params, Param{Key: "quoteOrderQty", Value: c.spec.RoundQuote(req.Quantity).StringFixed(2)})
	case req.Type == OrderTypeMarket && req.Side == SideSell:
		// 市价卖单的数量向下取整，避免超出可用余额
		params = append(params, Param{Key: "quantity", Value: c.spec.FormatQuantity(req.Quantity)})
	default:
		params = append(params,
			Param{Key: "timeInForce", Value: "GTC"},
			Param{Key: "price", Value: c.spec.FormatPrice(req.Price)},
			Param{Key: "quantity", Value: c.spec.FormatQuantity(req.Quantity)},
		)
	}
	if req.ClientOrderID != "" {
		params = append(params, Param{Key: "newClientOrderId", Value: req.ClientOrderID})
	}

	var out mexcOrderResp
	if err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", "order", params, &out); err != nil {
		return "", err
	}
	if out.OrderID.String() == "" {
		return "", newAPIError(c.name, "place_order", 200, []byte("missing orderId field"))
	}
	c.log.Infof("下单成功: %s %s %s qty=%s orderId=%s", req.Symbol, req.Side, req.Type, req.Quantity, out.OrderID)
	return out.OrderID.String(), nil
}

func (c *MexcClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := Params{
		{Key: "symbol", Value: symbol},
		{Key: "orderId", Value: orderID},
	}
	return c.signedRequest(ctx, http.MethodDelete, "/api/v3/order", "order", params, nil)
}

type mexcDepthResp struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

func (c *MexcClient) OrderBookTop(ctx context.Context, symbol string, depth int) (BookTop, error) {
	if depth <= 0 {
		depth = 5
	}
	params := Params{
		{Key: "symbol", Value: symbol},
		{Key: "limit", Value: strconv.Itoa(depth)},
	}
	var out mexcDepthResp
	if err := c.signedRequest(ctx, http.MethodGet, "/api/v3/depth", "depth", params, &out); err != nil {
		return BookTop{}, err
	}
	if len(out.Bids) == 0 || len(out.Asks) == 0 {
		return BookTop{}, ErrEmptyBook
	}
	if len(out.Bids[0]) == 0 || len(out.Asks[0]) == 0 {
		return BookTop{}, newAPIError(c.name, "depth", 200, []byte("malformed depth levels"))
	}
	bid, err := decimal.NewFromString(out.Bids[0][0])
	if err != nil {
		return BookTop{}, newAPIError(c.name, "depth", 200, []byte("bad bid price: "+out.Bids[0][0]))
	}
	ask, err := decimal.NewFromString(out.Asks[0][0])
	if err != nil {
		return BookTop{}, newAPIError(c.name, "depth", 200, []byte("bad ask price: "+out.Asks[0][0]))
	}
	return BookTop{BestBid: bid, BestAsk: ask}, nil
}
