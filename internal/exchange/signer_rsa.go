package exchange

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// RSASigner RSA 签名（LBank v2 风格）：
// 参数（含 timestamp）按 key 字典序排序拼成 k=v&...，
// 取 MD5 摘要的大写十六进制，对该文本做 base64，
// 再对 base64 文本取 MD5 摘要，用账户私钥做 PKCS#1 v1.5 签名，
// 输出签名字节的 base64。
type RSASigner struct {
	key *rsa.PrivateKey
}

// NewRSASigner 解析私钥并构造签名器。
// 支持 PEM（PKCS#1 / PKCS#8）以及交易所下发的裸 base64 DER。
func NewRSASigner(privateKey string) (*RSASigner, error) {
	key, err := parseRSAPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return &RSASigner{key: key}, nil
}

func parseRSAPrivateKey(raw string) (*rsa.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.Wrap(ErrKeyParse, "empty key")
	}

	var der []byte
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		der = block.Bytes
	} else {
		// 裸 base64 DER（去掉换行/空白）
		compact := strings.Map(func(r rune) rune {
			switch r {
			case '\n', '\r', '\t', ' ':
				return -1
			}
			return r
		}, raw)
		b, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return nil, errors.Wrap(ErrKeyParse, err.Error())
		}
		der = b
	}

	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rk, ok := k.(*rsa.PrivateKey); ok {
			return rk, nil
		}
		return nil, errors.Wrap(ErrKeyParse, "not an RSA key")
	}
	if rk, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return rk, nil
	}
	return nil, errors.Wrap(ErrKeyParse, "unrecognized DER structure")
}

// Prepared 构造待签名的 base64 文本（导出以便于测试）
func (s *RSASigner) Prepared(params Params, timestamp int64) string {
	all := make(Params, 0, len(params)+1)
	all = append(all, params...)
	all = append(all, Param{Key: "timestamp", Value: strconv.FormatInt(timestamp, 10)})
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	kv := make([]string, 0, len(all))
	for _, p := range all {
		kv = append(kv, p.Key+"="+p.Value)
	}
	joined := strings.Join(kv, "&")
	sum := md5.Sum([]byte(joined))
	upperHex := strings.ToUpper(hex.EncodeToString(sum[:]))
	return base64.StdEncoding.EncodeToString([]byte(upperHex))
}

func (s *RSASigner) Sign(params Params, timestamp int64) (string, error) {
	prepared := s.Prepared(params, timestamp)
	digest := md5.Sum([]byte(prepared))

	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.MD5, digest[:])
	if err != nil {
		return "", errors.Wrap(ErrSign, err.Error())
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
