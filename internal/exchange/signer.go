package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// Param 单个请求参数。签名对参数顺序敏感，因此用有序切片而不是 map。
type Param struct {
	Key   string
	Value string
}

// Params 有序参数列表
type Params []Param

// Get 按 key 查找参数值
func (ps Params) Get(key string) (string, bool) {
	for _, p := range ps {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Signer 对一组请求参数和服务器时间戳生成认证签名。
// 对相同输入必须产生相同的签名串。
type Signer interface {
	Sign(params Params, timestamp int64) (string, error)
}

// HmacSigner HMAC-SHA256 签名（MEXC v3 风格）：
// 参数按传入顺序做 URL 编码拼接，末尾追加 &timestamp=<ts>
// （无其他参数时只有 timestamp=<ts>），以 secret 为密钥计算
// HMAC-SHA256，输出小写十六进制。
type HmacSigner struct {
	secret []byte
}

func NewHmacSigner(secretKey string) *HmacSigner {
	return &HmacSigner{secret: []byte(secretKey)}
}

// Canonical 构造待签名串（导出以便于测试和排查签名不一致问题）
func (s *HmacSigner) Canonical(params Params, timestamp int64) string {
	ts := "timestamp=" + strconv.FormatInt(timestamp, 10)
	if len(params) == 0 {
		return ts
	}
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	sb.WriteByte('&')
	sb.WriteString(ts)
	return sb.String()
}

func (s *HmacSigner) Sign(params Params, timestamp int64) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(s.Canonical(params, timestamp)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
