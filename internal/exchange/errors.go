package exchange

import (
	"fmt"

	"github.com/pkg/errors"
)

// 签名相关错误：对当前调用致命，对进程不致命
var (
	// ErrKeyParse 私钥无法解析
	ErrKeyParse = errors.New("exchange: cannot parse private key")
	// ErrSign 签名计算失败
	ErrSign = errors.New("exchange: signing failed")
	// ErrEmptyBook 订单簿缺少买侧或卖侧
	ErrEmptyBook = errors.New("exchange: order book side is empty")
)

// APIError 表示交易所返回的非 2xx 响应或缺少预期字段的响应体。
// 调用方不在本层自动重试，重试策略归控制循环。
type APIError struct {
	Exchange string // mexc / lbank
	Op       string // 出错的操作，例如 place_order
	Status   int    // HTTP 状态码（协议级错误为 0）
	Body     string // 原始响应体（截断到合理长度）
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Exchange, e.Op, e.Status, e.Body)
}

const maxBodyInError = 512

func newAPIError(exchange, op string, status int, body []byte) *APIError {
	b := string(body)
	if len(b) > maxBodyInError {
		b = b[:maxBodyInError]
	}
	return &APIError{Exchange: exchange, Op: op, Status: status, Body: b}
}
