package exchange

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"regexp"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestHmacSignerCanonical(t *testing.T) {
	s := NewHmacSigner("secret")

	// 无参数时只有 timestamp
	require.Equal(t, "timestamp=1700000000000", s.Canonical(nil, 1700000000000))

	params := Params{
		{Key: "symbol", Value: "MNTLUSDT"},
		{Key: "side", Value: "BUY"},
	}
	// 参数保持传入顺序，timestamp 追加在末尾
	require.Equal(t, "symbol=MNTLUSDT&side=BUY&timestamp=42", s.Canonical(params, 42))
}

func TestHmacSignerDeterministic(t *testing.T) {
	s := NewHmacSigner("secret")
	params := Params{
		{Key: "symbol", Value: "MNTLUSDT"},
		{Key: "quantity", Value: "500"},
	}

	sig1, err := s.Sign(params, 1700000000000)
	require.NoError(t, err)
	sig2, err := s.Sign(params, 1700000000000)
	require.NoError(t, err)
	require.Equal(t, sig1, sig2)
	require.Regexp(t, hexRe, sig1)
}

func TestHmacSignerSensitivity(t *testing.T) {
	s := NewHmacSigner("secret")
	base := Params{{Key: "symbol", Value: "MNTLUSDT"}}

	sig, err := s.Sign(base, 1700000000000)
	require.NoError(t, err)

	// 参数值变化 → 签名变化
	changed, err := s.Sign(Params{{Key: "symbol", Value: "MNTLUSDC"}}, 1700000000000)
	require.NoError(t, err)
	require.NotEqual(t, sig, changed)

	// 时间戳变化 → 签名变化
	changed, err = s.Sign(base, 1700000000001)
	require.NoError(t, err)
	require.NotEqual(t, sig, changed)

	// 密钥变化 → 签名变化
	other := NewHmacSigner("other-secret")
	changed, err = other.Sign(base, 1700000000000)
	require.NoError(t, err)
	require.NotEqual(t, sig, changed)
}

func genRSAKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return string(pemBytes), key
}

func TestRSASignerPrepared(t *testing.T) {
	pemKey, _ := genRSAKeyPEM(t)
	s, err := NewRSASigner(pemKey)
	require.NoError(t, err)

	// 传入顺序无关：签名前按 key 字典序排序
	a := Params{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}
	b := Params{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	require.Equal(t, s.Prepared(a, 5), s.Prepared(b, 5))

	// 构造规则：sorted("a=1&b=2&timestamp=5") → MD5 大写 hex → base64
	sum := md5.Sum([]byte("a=1&b=2&timestamp=5"))
	want := base64.StdEncoding.EncodeToString([]byte(upperHex(sum[:])))
	require.Equal(t, want, s.Prepared(a, 5))
}

func TestRSASignerSignAndVerify(t *testing.T) {
	pemKey, key := genRSAKeyPEM(t)
	s, err := NewRSASigner(pemKey)
	require.NoError(t, err)

	params := Params{
		{Key: "api_key", Value: "key-1"},
		{Key: "echostr", Value: "P3LHfw6tUIYWc8R2VQNy0ilKmdg5pjhbxC7"},
		{Key: "signature_method", Value: "RSA"},
	}

	sig1, err := s.Sign(params, 1700000000000)
	require.NoError(t, err)
	sig2, err := s.Sign(params, 1700000000000)
	require.NoError(t, err)
	// PKCS#1 v1.5 签名是确定性的
	require.Equal(t, sig1, sig2)

	// 用公钥验证：签名覆盖 prepared 文本的 MD5 摘要
	raw, err := base64.StdEncoding.DecodeString(sig1)
	require.NoError(t, err)
	digest := md5.Sum([]byte(s.Prepared(params, 1700000000000)))
	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.MD5, digest[:], raw))

	// 参数变化 → 签名变化
	changed, err := s.Sign(Params{{Key: "api_key", Value: "key-2"}}, 1700000000000)
	require.NoError(t, err)
	require.NotEqual(t, sig1, changed)
}

func TestRSASignerBadKey(t *testing.T) {
	_, err := NewRSASigner("not a key at all")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrKeyParse))

	_, err = NewRSASigner("")
	require.True(t, errors.Is(err, ErrKeyParse))
}

func upperHex(b []byte) string {
	const hexdigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexdigits[x>>4], hexdigits[x&0x0f])
	}
	return string(out)
}
