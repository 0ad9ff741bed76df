package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UserJSON 表示 user.json 文件的结构
type UserJSON struct {
	PrivateKey   string `json:"private_key"`
	Address      string `json:"address"`
	ProxyAddress string `json:"proxy_address"`
}

// WalletConfig 钱包配置
type WalletConfig struct {
	PrivateKey    string `yaml:"private_key"`
	FunderAddress string `yaml:"funder_address"` // Safe/proxy 钱包地址（资金账户）
}

// FeedConfig 行情流配置
type FeedConfig struct {
	PriceURL        string        `yaml:"price_url"`        // RTDS WebSocket 地址
	Symbol          string        `yaml:"symbol"`           // 订阅的参考价 symbol，例如 btc/usd
	CacheSize       int           `yaml:"cache_size"`       // 每个 key 的环形缓存上限
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`  // 重连前固定等待
	MaxReconnect    int           `yaml:"max_reconnect"`    // 最大重连次数
	PingInterval    time.Duration `yaml:"ping_interval"`    // 心跳间隔
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 写超时
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 读超时
}

// StrategyConfig 尾盘筛选策略配置
type StrategyConfig struct {
	MinWinProbability float64 `yaml:"min_win_probability"` // 最小获胜概率，默认 0.75
	MinEdge           float64 `yaml:"min_edge"`            // 最小 edge，默认 0.05
	MaxFlipRisk       float64 `yaml:"max_flip_risk"`       // 最大翻转风险，默认 0.20
	RiskAversion      float64 `yaml:"risk_aversion"`       // 风险厌恶系数，默认 0.5
	HoldProbability   float64 `yaml:"hold_probability"`    // 持仓维持概率阈值，默认 0.8
	StakeUSDC         float64 `yaml:"stake_usdc"`          // 每次入场金额（USDC）
	MaxBuysPerCycle   int     `yaml:"max_buys_per_cycle"`  // 每周期最大入场次数，默认 2
}

// ExecutorConfig 订单执行配置
type ExecutorConfig struct {
	MaxSplits       int           `yaml:"max_splits"`        // 入场最大拆单次数，默认 3
	RetriesPerSplit int           `yaml:"retries_per_split"` // 每次拆单的重试次数，默认 3
	RetryDelay      time.Duration `yaml:"retry_delay"`       // 重试间隔，默认 500ms
	DustUSDC        float64       `yaml:"dust_usdc"`         // 剩余金额低于该值视为完成，默认 2
	PollInterval    time.Duration `yaml:"poll_interval"`     // 订单状态轮询间隔，默认 300ms
	PollTimeout     time.Duration `yaml:"poll_timeout"`      // 订单状态轮询超时，默认 5s
}

// CycleConfig 周期调度配置
type CycleConfig struct {
	CollectOffset   time.Duration `yaml:"collect_offset"`    // 截止前多久开始收集数据，默认 8m
	StrategyOffset  time.Duration `yaml:"strategy_offset"`   // 截止前多久开始策略，默认 5m
	SettlementDelay time.Duration `yaml:"settlement_delay"`  // 截止后等待多久再结算，默认 90s
	OutcomeRetries  int           `yaml:"outcome_retries"`   // 结果确认轮询次数，默认 10
	OutcomeInterval time.Duration `yaml:"outcome_interval"`  // 结果确认轮询间隔，默认 15s
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	ByCycle    bool   `yaml:"by_cycle"`
	ViewerAddr string `yaml:"viewer_addr"` // 日志查看 HTTP 服务地址（空则不启动）
}

// Config 应用配置
type Config struct {
	Wallet   WalletConfig   `yaml:"wallet"`
	Feed     FeedConfig     `yaml:"feed"`
	Strategy StrategyConfig `yaml:"strategy"`
	Executor ExecutorConfig `yaml:"executor"`
	Cycle    CycleConfig    `yaml:"cycle"`
	Log      LogConfig      `yaml:"log"`

	ClobURL   string `yaml:"clob_url"`
	GammaURL  string `yaml:"gamma_url"`
	DataURL   string `yaml:"data_url"`
	RelayerURL string `yaml:"relayer_url"`

	DryRun bool `yaml:"dry_run"` // 纸交易模式：不发真实订单，只打日志
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			PriceURL:       "wss://ws-live-data.polymarket.com",
			Symbol:         "btc/usd",
			CacheSize:      2000,
			ReconnectDelay: 5 * time.Second,
			MaxReconnect:   10,
			PingInterval:   5 * time.Second,
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    60 * time.Second,
		},
		Strategy: StrategyConfig{
			MinWinProbability: 0.75,
			MinEdge:           0.05,
			MaxFlipRisk:       0.20,
			RiskAversion:      0.5,
			HoldProbability:   0.8,
			StakeUSDC:         10,
			MaxBuysPerCycle:   2,
		},
		Executor: ExecutorConfig{
			MaxSplits:       3,
			RetriesPerSplit: 3,
			RetryDelay:      500 * time.Millisecond,
			DustUSDC:        2,
			PollInterval:    300 * time.Millisecond,
			PollTimeout:     5 * time.Second,
		},
		Cycle: CycleConfig{
			CollectOffset:   8 * time.Minute,
			StrategyOffset:  5 * time.Minute,
			SettlementDelay: 90 * time.Second,
			OutcomeRetries:  10,
			OutcomeInterval: 15 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			File:    "logs/combined.log",
			ByCycle: true,
		},
		ClobURL:    "https://clob.polymarket.com",
		GammaURL:   "https://gamma-api.polymarket.com",
		DataURL:    "https://data-api.polymarket.com",
		RelayerURL: "https://relayer-v2.polymarket.com",
	}
}

// LoadFromFile 从 yaml 文件加载配置（文件不存在时返回默认值 + 环境变量覆盖）
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUserJSON 从 user.json 读取钱包信息并合并进配置
func (c *Config) LoadUserJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var u UserJSON
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("解析 user.json 失败: %w", err)
	}
	if u.PrivateKey != "" {
		c.Wallet.PrivateKey = u.PrivateKey
	}
	if u.ProxyAddress != "" {
		c.Wallet.FunderAddress = u.ProxyAddress
	}
	return nil
}

// applyEnv 环境变量覆盖（部署时无需改配置文件）
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("POLYMARKET_PRIVATE_KEY")); v != "" {
		c.Wallet.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("POLYMARKET_FUNDER_ADDRESS")); v != "" {
		c.Wallet.FunderAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("POLYMARKET_API_URL")); v != "" {
		c.ClobURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CYCLEBET_LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("CYCLEBET_DRY_RUN")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DryRun = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("CYCLEBET_STAKE_USDC")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Strategy.StakeUSDC = f
		}
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	s := c.Strategy
	if s.MinWinProbability <= 0 || s.MinWinProbability >= 1 {
		return fmt.Errorf("min_win_probability 必须在 (0,1)：%v", s.MinWinProbability)
	}
	if s.MaxFlipRisk < 0 || s.MaxFlipRisk > 1 {
		return fmt.Errorf("max_flip_risk 必须在 [0,1]：%v", s.MaxFlipRisk)
	}
	if s.RiskAversion < 0 {
		return fmt.Errorf("risk_aversion 必须 >= 0：%v", s.RiskAversion)
	}
	if s.StakeUSDC <= 0 {
		return fmt.Errorf("stake_usdc 必须 > 0：%v", s.StakeUSDC)
	}
	if s.MaxBuysPerCycle <= 0 {
		return fmt.Errorf("max_buys_per_cycle 必须 > 0：%d", s.MaxBuysPerCycle)
	}
	if c.Cycle.CollectOffset <= c.Cycle.StrategyOffset {
		return fmt.Errorf("collect_offset 必须大于 strategy_offset（先收数据再跑策略）")
	}
	if c.Executor.MaxSplits <= 0 || c.Executor.RetriesPerSplit <= 0 {
		return fmt.Errorf("executor 重试参数必须 > 0")
	}
	if c.Feed.CacheSize <= 0 {
		return fmt.Errorf("feed cache_size 必须 > 0：%d", c.Feed.CacheSize)
	}
	return nil
}
