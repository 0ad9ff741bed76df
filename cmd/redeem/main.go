// 独立赎回进程：周期性扫描资金账户下已结算仓位并通过 relayer 免 gas
// 赎回。交易进程崩溃或持仓是手动建立的场景下兜底用。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	clobclient "github.com/betbot/cyclebet/clob/client"
	"github.com/betbot/cyclebet/clob/signing"
	"github.com/betbot/cyclebet/clob/types"
	"github.com/betbot/cyclebet/internal/settlement"
	"github.com/betbot/cyclebet/pkg/config"
	"github.com/betbot/cyclebet/pkg/logger"
)

func main() {
	configPath := flag.String("config", "yml/config.yaml", "配置文件路径")
	interval := flag.Duration("interval", 3*time.Minute, "扫描间隔")
	once := flag.Bool("once", false, "只执行一次后退出")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}
	if err := logger.InitDefault(); err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		os.Exit(1)
	}

	if strings.TrimSpace(cfg.Wallet.PrivateKey) == "" {
		logrus.Fatal("缺少钱包私钥：配置 wallet.private_key 或环境变量 POLYMARKET_PRIVATE_KEY")
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
	clob := clobclient.NewClient(cfg.ClobURL, auth, clobclient.WithDataURL(cfg.DataURL))

	creds, err := clob.CreateOrDeriveApiKey(ctx)
	if err != nil {
		logrus.Fatalf("获取 API 凭证失败: %v", err)
	}
	auth.Creds = creds

	funder := cfg.Wallet.FunderAddress
	if funder == "" {
		funder = signing.GetAddressFromPrivateKey(pk).Hex()
	}

	redeemer := settlement.NewRedeemer(cfg.RelayerURL, pk, cfg.Wallet.FunderAddress, creds, clob)
	logrus.Infof("🧹 赎回进程启动: account=%s interval=%s once=%v", funder, *interval, *once)

	runOnce := func() {
		result, err := redeemer.RedeemAll(ctx, funder)
		if err != nil {
			logrus.Errorf("赎回失败: %v", err)
			return
		}
		if result.Attempted > 0 {
			logrus.Infof("💸 赎回完成: attempted=%d redeemed=%d est=%.2f USDC",
				result.Attempted, result.Redeemed, result.TotalUSDC)
		}
	}

	runOnce()
	if *once {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("👋 收到退出信号，已停止")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
