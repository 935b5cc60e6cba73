package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccountConfig 单个交易所账户配置
type AccountConfig struct {
	Name      string `yaml:"name"`       // 账户名（日志/状态页标识），默认取交易所名
	Exchange  string `yaml:"exchange"`   // 交易所类型：mexc 或 lbank
	APIKey    string `yaml:"api_key"`    // API Key（可留空，从环境变量或 secretstore 读取）
	SecretKey string `yaml:"secret_key"` // Secret Key；lbank 为 RSA 私钥（PEM 或 base64 DER）
}

// TelegramConfig Telegram 通知配置
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// BreakerConfig 连续错误熔断配置（0 表示关闭）
type BreakerConfig struct {
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"` // 连续交易所错误上限
	CooldownSeconds      int `yaml:"cooldown_seconds"`       // 熔断后的冷却时间（秒）
}

// SecretStoreConfig 凭证存储配置（可选，替代配置文件/环境变量中的明文凭证）
type SecretStoreConfig struct {
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryption_key"` // 32 字节，base64 或 hex
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config 应用配置
type Config struct {
	Accounts []AccountConfig `yaml:"accounts"`

	Symbol     string `yaml:"symbol"`      // 交易对，例如 MNTLUSDT
	BaseAsset  string `yaml:"base_asset"`  // 基础资产，例如 MNTL
	QuoteAsset string `yaml:"quote_asset"` // 计价资产，例如 USDT

	TargetQuote float64 `yaml:"target_quote"` // 计价资产目标余额
	Threshold   float64 `yaml:"threshold"`    // 允许偏差比例（0 < threshold < 1）

	RebalanceIntervalSeconds int `yaml:"rebalance_interval_seconds"` // 再平衡周期（秒）
	RefreshIntervalSeconds   int `yaml:"refresh_interval_seconds"`   // 挂单刷新周期（秒）

	RestingQuantity   float64 `yaml:"resting_quantity"`   // 每次刷新挂出的限价单数量（基础资产）
	MinQuantity       float64 `yaml:"min_quantity"`       // 交易所最小可交易数量
	QuantityPrecision int     `yaml:"quantity_precision"` // 基础资产数量精度（小数位）
	PricePrecision    int     `yaml:"price_precision"`    // 价格精度（小数位）

	BaseWarningBalance float64 `yaml:"base_warning_balance"` // 基础资产低位告警阈值（0 表示关闭）

	Telegram    TelegramConfig    `yaml:"telegram"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	SecretStore SecretStoreConfig `yaml:"secret_store"`
	Log         LogConfig         `yaml:"log"`

	StatusListenAddr string `yaml:"status_listen_addr"` // 状态/调试 HTTP 服务监听地址（空则不启动）
	DryRun           bool   `yaml:"dry_run"`            // 纸交易模式：不真实下单，只打印订单信息
}

// Load 从文件加载配置并应用环境变量覆盖。
// filePath 为空时仅使用环境变量和默认值。
func Load(filePath string) (*Config, error) {
	cfg := defaults()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", filePath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败 %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Symbol:                   "MNTLUSDT",
		BaseAsset:                "MNTL",
		QuoteAsset:               "USDT",
		TargetQuote:              1000,
		Threshold:                0.05,
		RebalanceIntervalSeconds: 120,
		RefreshIntervalSeconds:   10,
		RestingQuantity:          44000,
		MinQuantity:              1,
		QuantityPrecision:        0,
		PricePrecision:           8,
		Log: LogConfig{
			Level:      "info",
			File:       "logs/rebalancer.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// applyEnvOverrides 环境变量覆盖（优先级：环境变量 > 配置文件 > 默认值）
func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Symbol, "SYMBOL")
	overrideString(&cfg.BaseAsset, "BASE_ASSET")
	overrideString(&cfg.QuoteAsset, "QUOTE_ASSET")
	overrideFloat(&cfg.TargetQuote, "TARGET_QUOTE")
	overrideFloat(&cfg.Threshold, "THRESHOLD")
	overrideInt(&cfg.RebalanceIntervalSeconds, "REBALANCE_INTERVAL_SECONDS")
	overrideInt(&cfg.RefreshIntervalSeconds, "REFRESH_INTERVAL_SECONDS")
	overrideFloat(&cfg.RestingQuantity, "RESTING_QUANTITY")
	overrideFloat(&cfg.MinQuantity, "MIN_QUANTITY")
	overrideInt(&cfg.QuantityPrecision, "QUANTITY_PRECISION")
	overrideInt(&cfg.PricePrecision, "PRICE_PRECISION")
	overrideFloat(&cfg.BaseWarningBalance, "BASE_WARNING_BALANCE")
	overrideString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	overrideString(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	overrideString(&cfg.StatusListenAddr, "STATUS_LISTEN_ADDR")
	overrideString(&cfg.SecretStore.Path, "SECRET_STORE_PATH")
	overrideString(&cfg.SecretStore.EncryptionKey, "SECRET_STORE_KEY")
	overrideBool(&cfg.DryRun, "DRY_RUN")

	// 凭证覆盖：MEXC_API_KEY / MEXC_SECRET_KEY / LBANK_API_KEY / LBANK_SECRET_KEY
	for i := range cfg.Accounts {
		prefix := strings.ToUpper(cfg.Accounts[i].Exchange)
		if prefix == "" {
			continue
		}
		overrideString(&cfg.Accounts[i].APIKey, prefix+"_API_KEY")
		overrideString(&cfg.Accounts[i].SecretKey, prefix+"_SECRET_KEY")
	}
}

// Validate 启动期校验，失败视为致命配置错误
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("配置错误: 至少需要一个交易所账户")
	}
	for i := range c.Accounts {
		a := &c.Accounts[i]
		a.Exchange = strings.ToLower(strings.TrimSpace(a.Exchange))
		switch a.Exchange {
		case "mexc", "lbank":
		default:
			return fmt.Errorf("配置错误: accounts[%d] 不支持的交易所 %q", i, a.Exchange)
		}
		if strings.TrimSpace(a.Name) == "" {
			a.Name = a.Exchange
		}
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("配置错误: symbol 不能为空")
	}
	if c.TargetQuote <= 0 {
		return fmt.Errorf("配置错误: target_quote 必须大于 0，当前 %v", c.TargetQuote)
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("配置错误: threshold 必须在 (0, 1) 之间，当前 %v", c.Threshold)
	}
	if c.RebalanceIntervalSeconds <= 0 {
		return fmt.Errorf("配置错误: rebalance_interval_seconds 必须大于 0")
	}
	if c.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("配置错误: refresh_interval_seconds 必须大于 0")
	}
	if c.QuantityPrecision < 0 || c.PricePrecision < 0 {
		return fmt.Errorf("配置错误: 精度不能为负数")
	}
	if c.RestingQuantity <= 0 {
		return fmt.Errorf("配置错误: resting_quantity 必须大于 0")
	}
	if c.MinQuantity < 0 {
		return fmt.Errorf("配置错误: min_quantity 不能为负数")
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func overrideFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func overrideInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}
