package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	clobclient "github.com/betbot/cyclebet/clob/client"
	"github.com/betbot/cyclebet/clob/signing"
	"github.com/betbot/cyclebet/clob/types"
	"github.com/betbot/cyclebet/internal/engine"
	"github.com/betbot/cyclebet/internal/feed"
	"github.com/betbot/cyclebet/internal/settlement"
	"github.com/betbot/cyclebet/pkg/config"
	"github.com/betbot/cyclebet/pkg/logger"
	"github.com/betbot/cyclebet/pkg/logviewer"
	"github.com/betbot/cyclebet/pkg/secretstore"
)

func main() {
	configPath := flag.String("config", "yml/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件路径")
	flag.Parse()

	// .env 不存在不算错误，生产环境通常直接注入环境变量
	_ = godotenv.Load(*envFile)

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
		LogByCycle: cfg.Log.ByCycle,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		os.Exit(1)
	}

	if err := loadWalletFromStore(cfg); err != nil {
		logrus.Warnf("从密钥库加载钱包失败: %v", err)
	}
	if strings.TrimSpace(cfg.Wallet.PrivateKey) == "" {
		logrus.Fatal("缺少钱包私钥：配置 wallet.private_key、环境变量 POLYMARKET_PRIVATE_KEY 或密钥库")
	}

	pk, err := signing.PrivateKeyFromHex(cfg.Wallet.PrivateKey)
	if err != nil {
		logrus.Fatalf("解析私钥失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth := &clobclient.AuthConfig{
		PrivateKey:    pk,
		ChainID:       types.ChainPolygon,
		FunderAddress: cfg.Wallet.FunderAddress,
	}
	clob := clobclient.NewClient(cfg.ClobURL, auth,
		clobclient.WithGammaURL(cfg.GammaURL),
		clobclient.WithDataURL(cfg.DataURL),
	)

	creds, err := clob.CreateOrDeriveApiKey(ctx)
	if err != nil {
		logrus.Fatalf("获取 API 凭证失败: %v", err)
	}
	auth.Creds = creds
	logrus.Info("🔑 API 凭证就绪")

	funder := cfg.Wallet.FunderAddress
	if funder == "" {
		funder = signing.GetAddressFromPrivateKey(pk).Hex()
	}
	logrus.Infof("💼 资金账户: %s", funder)

	feedOpts := feed.Options{
		URL:            cfg.Feed.PriceURL,
		PingInterval:   cfg.Feed.PingInterval,
		WriteTimeout:   cfg.Feed.WriteTimeout,
		ReadTimeout:    cfg.Feed.ReadTimeout,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		MaxReconnect:   cfg.Feed.MaxReconnect,
		CacheSize:      cfg.Feed.CacheSize,
	}
	prices := feed.NewCryptoPriceFeed(feedOpts)
	books := feed.NewOrderBookFeed(feedOpts, clob)

	redeemer := settlement.NewRedeemer(cfg.RelayerURL, pk, cfg.Wallet.FunderAddress, creds, clob)

	logviewer.New("logs").Start(cfg.Log.ViewerAddr)

	controller := engine.NewCycleController(cfg, clob, clob, clob, redeemer, prices, books, funder)

	logrus.Infof("🚀 cyclebet 启动: symbol=%s stake=%.2f USDC dryRun=%v", cfg.Feed.Symbol, cfg.Strategy.StakeUSDC, cfg.DryRun)
	if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
		logrus.Fatalf("控制器退出: %v", err)
	}
	logrus.Info("👋 收到退出信号，已停止")
}

// loadWalletFromStore 从加密密钥库补全钱包信息（配置/环境变量优先）
func loadWalletFromStore(cfg *config.Config) error {
	path := strings.TrimSpace(os.Getenv("CYCLEBET_SECRETS_PATH"))
	if path == "" {
		return nil
	}
	key, err := secretstore.ParseKey(os.Getenv("CYCLEBET_MASTER_KEY"))
	if err != nil {
		return err
	}

	store, err := secretstore.Open(secretstore.OpenOptions{Path: path, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		return err
	}
	defer store.Close()

	w, err := store.LoadWallet()
	if err != nil {
		return err
	}
	if cfg.Wallet.PrivateKey == "" {
		cfg.Wallet.PrivateKey = w.PrivateKey
	}
	if cfg.Wallet.FunderAddress == "" {
		cfg.Wallet.FunderAddress = w.FunderAddress
	}
	return nil
}
