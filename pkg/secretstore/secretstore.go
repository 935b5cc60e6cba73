package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Store 是一个 Badger 封装的加密落盘 KV，用于保存交易所 API 凭证，
// 替代交互式输入。加密由 Badger 自身的选项提供（value log + key registry）。
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 字节；为 nil 时不加密（不建议）
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger 加密工作负载需要索引缓存
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20) // 100MB
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// credKey 按交易所名构造存储键，例如 mexc/api_key、lbank/secret_key
func credKey(exchange, field string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(exchange)) + "/" + field)
}

// Credentials 读取某个交易所的 API key / secret。
// 任一字段缺失时返回 found=false。
func (s *Store) Credentials(exchange string) (apiKey, secretKey string, found bool, err error) {
	if s == nil || s.db == nil {
		return "", "", false, errors.New("secretstore: not opened")
	}
	err = s.db.View(func(txn *badger.Txn) error {
		for _, f := range []struct {
			field string
			dst   *string
		}{
			{"api_key", &apiKey},
			{"secret_key", &secretKey},
		} {
			item, gerr := txn.Get(credKey(exchange, f.field))
			if gerr != nil {
				if errors.Is(gerr, badger.ErrKeyNotFound) {
					return nil
				}
				return gerr
			}
			if verr := item.Value(func(val []byte) error {
				*f.dst = string(val)
				return nil
			}); verr != nil {
				return verr
			}
		}
		return nil
	})
	if err != nil {
		return "", "", false, err
	}
	return apiKey, secretKey, apiKey != "" && secretKey != "", nil
}

// SetCredentials 写入某个交易所的 API key / secret
func (s *Store) SetCredentials(exchange, apiKey, secretKey string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	if strings.TrimSpace(exchange) == "" {
		return errors.New("secretstore: exchange is empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(credKey(exchange, "api_key"), []byte(apiKey)); err != nil {
			return err
		}
		return txn.Set(credKey(exchange, "secret_key"), []byte(secretKey))
	})
}

// ParseKey 解析 32 字节加密密钥（base64 或 hex），输入为空时返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
