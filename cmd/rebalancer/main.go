package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mntlbot/rebalancer/internal/bot"
	"github.com/mntlbot/rebalancer/internal/exchange"
	"github.com/mntlbot/rebalancer/internal/notify"
	"github.com/mntlbot/rebalancer/internal/orders"
	"github.com/mntlbot/rebalancer/internal/rebalance"
	"github.com/mntlbot/rebalancer/internal/risk"
	"github.com/mntlbot/rebalancer/pkg/config"
	"github.com/mntlbot/rebalancer/pkg/logger"
	"github.com/mntlbot/rebalancer/pkg/marketspec"
	"github.com/mntlbot/rebalancer/pkg/secretstore"
	"github.com/mntlbot/rebalancer/pkg/syncgroup"

	opsserver "github.com/mntlbot/rebalancer/internal/ops"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（yaml）")
	envFile := flag.String("env", "", ".env 文件路径（可选）")
	dryRun := flag.Bool("dry-run", false, "纸交易模式：不真实下单")
	flag.Parse()

	// .env 不存在不算错误：生产环境通常直接注入环境变量
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "加载 env 文件失败: %v\n", err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logrus.Errorf("启动失败: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	spec, err := marketspec.New(cfg.Symbol, cfg.BaseAsset, cfg.QuoteAsset,
		cfg.QuantityPrecision, cfg.PricePrecision, cfg.MinQuantity)
	if err != nil {
		return err
	}

	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)

	// 配置/环境变量里没有的凭证，退回 secretstore 查找
	var store *secretstore.Store
	if cfg.SecretStore.Path != "" {
		key, err := secretstore.ParseKey(cfg.SecretStore.EncryptionKey)
		if err != nil {
			return err
		}
		store, err = secretstore.Open(secretstore.OpenOptions{
			Path:          cfg.SecretStore.Path,
			EncryptionKey: key,
			ReadOnly:      true,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warnf("关闭 secretstore 失败: %v", err)
			}
		}()
	}

	loops := make([]*bot.Loop, 0, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		loop, err := buildLoop(cfg, acct, spec, notifier, store)
		if err != nil {
			return err
		}
		loops = append(loops, loop)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StatusListenAddr != "" {
		if err := opsserver.New(loops).StartAsync(ctx, cfg.StatusListenAddr); err != nil {
			return err
		}
	}

	// 每个账户一条独立循环，账户之间没有共享可变状态
	sg := syncgroup.NewSyncGroup()
	for _, loop := range loops {
		l := loop
		sg.Add(func() { l.Run(ctx) })
	}
	sg.Run()

	logger.Infof("已启动 %d 个账户循环 symbol=%s target=%v dry_run=%v",
		len(loops), cfg.Symbol, cfg.TargetQuote, cfg.DryRun)

	<-ctx.Done()
	logger.Info("收到退出信号，等待各循环清场")
	sg.Wait()
	logger.Info("退出完成")
	return nil
}

func buildLoop(cfg *config.Config, acct config.AccountConfig, spec marketspec.PairSpec,
	notifier notify.Notifier, store *secretstore.Store) (*bot.Loop, error) {

	apiKey, secretKey := acct.APIKey, acct.SecretKey
	if (apiKey == "" || secretKey == "") && store != nil {
		k, s, found, err := store.Credentials(acct.Exchange)
		if err != nil {
			return nil, err
		}
		if found {
			if apiKey == "" {
				apiKey = k
			}
			if secretKey == "" {
				secretKey = s
			}
		}
	}
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("账户 %s 缺少凭证（配置/环境变量/secretstore 均未提供）", acct.Name)
	}

	var client exchange.Client
	switch acct.Exchange {
	case "mexc":
		client = exchange.NewMexcClient(exchange.DefaultMexcHost, acct.Name, apiKey, secretKey, spec)
	case "lbank":
		lc, err := exchange.NewLbankClient(exchange.DefaultLbankHost, acct.Name, apiKey, secretKey, spec)
		if err != nil {
			return nil, err
		}
		client = lc
	default:
		return nil, fmt.Errorf("未知交易所类型: %s", acct.Exchange)
	}
	if cfg.DryRun {
		client = exchange.NewDryRun(client)
	}

	engine, err := rebalance.New(rebalance.Target{
		TargetQuote: decimal.NewFromFloat(cfg.TargetQuote),
		Threshold:   decimal.NewFromFloat(cfg.Threshold),
	}, spec, notifier, decimal.NewFromFloat(cfg.BaseWarningBalance))
	if err != nil {
		return nil, err
	}

	om := orders.NewManager(spec, decimal.NewFromFloat(cfg.RestingQuantity))
	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		MaxConsecutiveErrors: int64(cfg.Breaker.MaxConsecutiveErrors),
		Cooldown:             time.Duration(cfg.Breaker.CooldownSeconds) * time.Second,
	})

	return bot.NewLoop(bot.Config{
		Account:        acct.Name,
		RebalanceEvery: time.Duration(cfg.RebalanceIntervalSeconds) * time.Second,
		RefreshEvery:   time.Duration(cfg.RefreshIntervalSeconds) * time.Second,
	}, client, engine, om, breaker), nil
}
