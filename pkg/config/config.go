package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/betbot/copybot/internal/apperr"
	"github.com/betbot/copybot/internal/copystrategy"
)

// 默认值
const (
	DefaultClobHTTPURL   = "https://clob.polymarket.com"
	DefaultDataAPIURL    = "https://data-api.polymarket.com"
	DefaultUSDCContract  = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	DefaultStoreDriver   = "sqlite"
	DefaultStoreDSN      = "data/copybot.db"
	DefaultSnapshotDir   = "data/state"
	DefaultLogFile       = "logs/copybot.log"
	DefaultStatusAddr    = "127.0.0.1:8090"
	DefaultMetricsAddr   = "127.0.0.1:6060"
	DefaultPaperBalance  = "1000"
	defaultFetchInterval = "1"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsValidAddress 0x 开头的 40 位十六进制地址
func IsValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// ClobConfig CLOB 接入配置
type ClobConfig struct {
	HTTPURL       string
	APIKey        string
	APISecret     string
	APIPassphrase string
	SignatureType int // 0=EOA 1=POLY_PROXY 2=GNOSIS_SAFE
}

// AggregationConfig 小额买单聚合
type AggregationConfig struct {
	Enabled     bool
	Window      time.Duration
	MinTotalUSD decimal.Decimal
}

// StoreConfig 交易记录存储
type StoreConfig struct {
	Driver string // memory / sqlite / postgres
	DSN    string
}

// SnapshotConfig 执行器快照
type SnapshotConfig struct {
	Backend string // json / badger
	Dir     string
}

// TelegramConfig 告警
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// Enabled 是否配置了 Telegram
func (t TelegramConfig) Enabled() bool { return t.BotToken != "" }

// Config 应用配置
type Config struct {
	Traders        []string // 跟单的交易员地址（小写）
	ProxyWallet    string   // 自己的代理钱包
	PrivateKey     string
	Mnemonic       string
	DerivationPath string

	Clob         ClobConfig
	DataAPIURL   string
	RPCURL       string
	USDCContract string

	FetchInterval  time.Duration
	RetryLimit     int
	RequestTimeout time.Duration

	Strategy    StrategyFile // 原始策略参数，StrategyConfig() 负责解析
	Aggregation AggregationConfig

	DryRun          bool
	PaperBalanceUSD decimal.Decimal

	Store    StoreConfig
	Snapshot SnapshotConfig
	Telegram TelegramConfig

	LogLevel    string
	LogFile     string
	MetricsAddr string // 为空表示不启动
	StatusAddr  string // 为空表示不启动

	problems []error // 加载阶段的解析错误，Validate 一并报告
}

// StrategyFile 跟单策略参数（文件和环境变量共用的原始文本）
type StrategyFile struct {
	CopyStrategy         string `yaml:"copy_strategy,omitempty" json:"copy_strategy,omitempty"`
	CopySize             string `yaml:"copy_size,omitempty" json:"copy_size,omitempty"`
	AdaptiveMinPercent   string `yaml:"adaptive_min_percent,omitempty" json:"adaptive_min_percent,omitempty"`
	AdaptiveMaxPercent   string `yaml:"adaptive_max_percent,omitempty" json:"adaptive_max_percent,omitempty"`
	AdaptiveThresholdUSD string `yaml:"adaptive_threshold_usd,omitempty" json:"adaptive_threshold_usd,omitempty"`
	TieredMultipliers    string `yaml:"tiered_multipliers,omitempty" json:"tiered_multipliers,omitempty"`
	TradeMultiplier      string `yaml:"trade_multiplier,omitempty" json:"trade_multiplier,omitempty"`
	MaxOrderSizeUSD      string `yaml:"max_order_size_usd,omitempty" json:"max_order_size_usd,omitempty"`
	MinOrderSizeUSD      string `yaml:"min_order_size_usd,omitempty" json:"min_order_size_usd,omitempty"`
	MaxPositionSizeUSD   string `yaml:"max_position_size_usd,omitempty" json:"max_position_size_usd,omitempty"`
	MaxDailyVolumeUSD    string `yaml:"max_daily_volume_usd,omitempty" json:"max_daily_volume_usd,omitempty"`
	CopyPercentage       string `yaml:"copy_percentage,omitempty" json:"copy_percentage,omitempty"` // 旧版配置
}

// ConfigFile 配置文件结构（YAML/JSON）
// 数值字段也按文本读取，和环境变量走同一套解析
type ConfigFile struct {
	Traders        []string `yaml:"traders" json:"traders"`
	ProxyWallet    string   `yaml:"proxy_wallet" json:"proxy_wallet"`
	PrivateKey     string   `yaml:"private_key" json:"private_key"`
	Mnemonic       string   `yaml:"mnemonic" json:"mnemonic"`
	DerivationPath string   `yaml:"derivation_path" json:"derivation_path"`
	Clob           struct {
		HTTPURL       string `yaml:"http_url" json:"http_url"`
		APIKey        string `yaml:"api_key" json:"api_key"`
		APISecret     string `yaml:"api_secret" json:"api_secret"`
		APIPassphrase string `yaml:"api_passphrase" json:"api_passphrase"`
		SignatureType string `yaml:"signature_type" json:"signature_type"`
	} `yaml:"clob" json:"clob"`
	DataAPIURL       string       `yaml:"data_api_url" json:"data_api_url"`
	RPCURL           string       `yaml:"rpc_url" json:"rpc_url"`
	USDCContract     string       `yaml:"usdc_contract_address" json:"usdc_contract_address"`
	FetchInterval    string       `yaml:"fetch_interval" json:"fetch_interval"` // 秒
	RetryLimit       string       `yaml:"retry_limit" json:"retry_limit"`
	RequestTimeoutMS string       `yaml:"request_timeout_ms" json:"request_timeout_ms"`
	Strategy         StrategyFile `yaml:"strategy" json:"strategy"`
	Aggregation      struct {
		Enabled       string `yaml:"enabled" json:"enabled"`
		WindowSeconds string `yaml:"window_seconds" json:"window_seconds"`
		MinTotalUSD   string `yaml:"min_total_usd" json:"min_total_usd"`
	} `yaml:"aggregation" json:"aggregation"`
	DryRun          string `yaml:"dry_run" json:"dry_run"`
	PaperBalanceUSD string `yaml:"paper_balance_usd" json:"paper_balance_usd"`
	Store           struct {
		Driver string `yaml:"driver" json:"driver"`
		DSN    string `yaml:"dsn" json:"dsn"`
	} `yaml:"store" json:"store"`
	Snapshot struct {
		Backend string `yaml:"backend" json:"backend"`
		Dir     string `yaml:"dir" json:"dir"`
	} `yaml:"snapshot" json:"snapshot"`
	Telegram struct {
		BotToken string `yaml:"bot_token" json:"bot_token"`
		ChatID   string `yaml:"chat_id" json:"chat_id"`
	} `yaml:"telegram" json:"telegram"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	LogFile     string `yaml:"log_file" json:"log_file"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	StatusAddr  string `yaml:"status_addr" json:"status_addr"`
}

// Load 读取 .env（存在时）、配置文件（可为空）和环境变量，并校验
// 优先级：配置文件 > 环境变量 > 默认值
func Load(filePath string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, apperr.Configuration("load .env", err)
	}

	var cf ConfigFile
	if filePath != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, apperr.Configuration("load config file", fmt.Errorf("%s: %w", filePath, err))
		}
		cf = *loaded
	}

	cfg := build(&cf)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv 不覆盖已有环境变量，文件不存在时忽略
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return &configFile, nil
}

func build(cf *ConfigFile) *Config {
	p := &parser{}
	c := &Config{
		ProxyWallet:    pick(cf.ProxyWallet, "PROXY_WALLET", ""),
		PrivateKey:     pick(cf.PrivateKey, "PRIVATE_KEY", ""),
		Mnemonic:       pick(cf.Mnemonic, "MNEMONIC", ""),
		DerivationPath: pick(cf.DerivationPath, "DERIVATION_PATH", ""),
		Clob: ClobConfig{
			HTTPURL:       pick(cf.Clob.HTTPURL, "CLOB_HTTP_URL", DefaultClobHTTPURL),
			APIKey:        pick(cf.Clob.APIKey, "CLOB_API_KEY", ""),
			APISecret:     pick(cf.Clob.APISecret, "CLOB_SECRET", ""),
			APIPassphrase: pick(cf.Clob.APIPassphrase, "CLOB_PASSPHRASE", ""),
			SignatureType: p.int("SIGNATURE_TYPE", pick(cf.Clob.SignatureType, "SIGNATURE_TYPE", "0")),
		},
		DataAPIURL:   pick(cf.DataAPIURL, "DATA_API_URL", DefaultDataAPIURL),
		RPCURL:       pick(cf.RPCURL, "RPC_URL", ""),
		USDCContract: pick(cf.USDCContract, "USDC_CONTRACT_ADDRESS", DefaultUSDCContract),

		FetchInterval:  time.Duration(p.int("FETCH_INTERVAL", pick(cf.FetchInterval, "FETCH_INTERVAL", defaultFetchInterval))) * time.Second,
		RetryLimit:     p.int("RETRY_LIMIT", pick(cf.RetryLimit, "RETRY_LIMIT", "3")),
		RequestTimeout: time.Duration(p.int("REQUEST_TIMEOUT_MS", pick(cf.RequestTimeoutMS, "REQUEST_TIMEOUT_MS", "10000"))) * time.Millisecond,

		Strategy: StrategyFile{
			CopyStrategy:         pick(cf.Strategy.CopyStrategy, "COPY_STRATEGY", ""),
			CopySize:             pick(cf.Strategy.CopySize, "COPY_SIZE", "10.0"),
			AdaptiveMinPercent:   pick(cf.Strategy.AdaptiveMinPercent, "ADAPTIVE_MIN_PERCENT", ""),
			AdaptiveMaxPercent:   pick(cf.Strategy.AdaptiveMaxPercent, "ADAPTIVE_MAX_PERCENT", ""),
			AdaptiveThresholdUSD: pick(cf.Strategy.AdaptiveThresholdUSD, "ADAPTIVE_THRESHOLD_USD", "500.0"),
			TieredMultipliers:    pick(cf.Strategy.TieredMultipliers, "TIERED_MULTIPLIERS", ""),
			TradeMultiplier:      pick(cf.Strategy.TradeMultiplier, "TRADE_MULTIPLIER", ""),
			MaxOrderSizeUSD:      pick(cf.Strategy.MaxOrderSizeUSD, "MAX_ORDER_SIZE_USD", "100.0"),
			MinOrderSizeUSD:      pick(cf.Strategy.MinOrderSizeUSD, "MIN_ORDER_SIZE_USD", "1.0"),
			MaxPositionSizeUSD:   pick(cf.Strategy.MaxPositionSizeUSD, "MAX_POSITION_SIZE_USD", ""),
			MaxDailyVolumeUSD:    pick(cf.Strategy.MaxDailyVolumeUSD, "MAX_DAILY_VOLUME_USD", ""),
			CopyPercentage:       pick(cf.Strategy.CopyPercentage, "COPY_PERCENTAGE", ""),
		},
		Aggregation: AggregationConfig{
			Enabled:     p.bool("TRADE_AGGREGATION_ENABLED", pick(cf.Aggregation.Enabled, "TRADE_AGGREGATION_ENABLED", "false")),
			Window:      time.Duration(p.int("TRADE_AGGREGATION_WINDOW_SECONDS", pick(cf.Aggregation.WindowSeconds, "TRADE_AGGREGATION_WINDOW_SECONDS", "300"))) * time.Second,
			MinTotalUSD: p.decimal("TRADE_AGGREGATION_MIN_TOTAL_USD", pick(cf.Aggregation.MinTotalUSD, "TRADE_AGGREGATION_MIN_TOTAL_USD", "1.0")),
		},

		DryRun:          p.bool("DRY_RUN", pick(cf.DryRun, "DRY_RUN", "false")),
		PaperBalanceUSD: p.decimal("PAPER_BALANCE_USD", pick(cf.PaperBalanceUSD, "PAPER_BALANCE_USD", DefaultPaperBalance)),

		Store: StoreConfig{
			Driver: strings.ToLower(pick(cf.Store.Driver, "STORE_DRIVER", DefaultStoreDriver)),
			DSN:    pick(cf.Store.DSN, "STORE_DSN", ""),
		},
		Snapshot: SnapshotConfig{
			Backend: strings.ToLower(pick(cf.Snapshot.Backend, "SNAPSHOT_BACKEND", "json")),
			Dir:     pick(cf.Snapshot.Dir, "SNAPSHOT_DIR", DefaultSnapshotDir),
		},
		Telegram: TelegramConfig{
			BotToken: pick(cf.Telegram.BotToken, "TELEGRAM_BOT_TOKEN", ""),
			ChatID:   p.int64("TELEGRAM_CHAT_ID", pick(cf.Telegram.ChatID, "TELEGRAM_CHAT_ID", "0")),
		},

		LogLevel:    pick(cf.LogLevel, "LOG_LEVEL", "info"),
		LogFile:     pick(cf.LogFile, "LOG_FILE", DefaultLogFile),
		MetricsAddr: pick(cf.MetricsAddr, "METRICS_ADDR", DefaultMetricsAddr),
		StatusAddr:  pick(cf.StatusAddr, "STATUS_ADDR", DefaultStatusAddr),
	}
	if c.Store.DSN == "" && c.Store.Driver == DefaultStoreDriver {
		c.Store.DSN = DefaultStoreDSN
	}

	if len(cf.Traders) > 0 {
		c.Traders = p.addresses("traders", cf.Traders)
	} else if raw := getEnv("USER_ADDRESSES", ""); raw != "" {
		list, err := ParseUserAddresses(raw)
		if err != nil {
			p.errs = append(p.errs, err)
		}
		c.Traders = list
	}

	c.problems = p.errs
	return c
}

// ParseUserAddresses 支持逗号分隔或 JSON 数组，结果转小写
func ParseUserAddresses(input string) ([]string, error) {
	trimmed := strings.TrimSpace(input)
	var parts []string
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		if err := json.Unmarshal([]byte(trimmed), &parts); err != nil {
			return nil, apperr.Validationf("USER_ADDRESSES", "JSON 格式错误: %v", err)
		}
	} else {
		parts = strings.Split(trimmed, ",")
	}

	p := &parser{}
	out := p.addresses("USER_ADDRESSES", parts)
	if len(p.errs) > 0 {
		return nil, p.errs[0]
	}
	return out, nil
}

// StrategyConfig 解析出不可变的跟单策略配置
// COPY_STRATEGY 未设置而 COPY_PERCENTAGE 有值时使用旧版模式
func (c *Config) StrategyConfig() (*copystrategy.Config, error) {
	s := c.Strategy
	p := &parser{}

	var tiers []copystrategy.Tier
	if s.TieredMultipliers != "" {
		parsed, err := copystrategy.ParseTiers(s.TieredMultipliers)
		if err != nil {
			return nil, err
		}
		tiers = parsed
	}
	maxOrder := p.decimal("MAX_ORDER_SIZE_USD", s.MaxOrderSizeUSD)
	minOrder := p.decimal("MIN_ORDER_SIZE_USD", s.MinOrderSizeUSD)
	maxPosition := p.optDecimal("MAX_POSITION_SIZE_USD", s.MaxPositionSizeUSD)
	maxDaily := p.optDecimal("MAX_DAILY_VOLUME_USD", s.MaxDailyVolumeUSD)
	multiplier := p.optDecimal("TRADE_MULTIPLIER", s.TradeMultiplier)

	var out *copystrategy.Config
	if s.CopyStrategy == "" && s.CopyPercentage != "" {
		m := decimal.NewFromInt(1)
		if multiplier != nil {
			m = *multiplier
		}
		out = copystrategy.Legacy(p.decimal("COPY_PERCENTAGE", s.CopyPercentage), m, tiers, maxOrder, minOrder)
	} else {
		name := s.CopyStrategy
		if name == "" {
			name = string(copystrategy.StrategyPercentage)
		}
		strategy, err := copystrategy.ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		copySize := p.decimal("COPY_SIZE", s.CopySize)

		out = &copystrategy.Config{Tiers: tiers, MaxOrderSizeUSD: maxOrder, MinOrderSizeUSD: minOrder}
		switch strategy {
		case copystrategy.StrategyFixed:
			out.Sizing = copystrategy.Fixed{Amount: copySize}
		case copystrategy.StrategyAdaptive:
			out.Sizing = copystrategy.Adaptive{
				CopySize:   copySize,
				MinPercent: p.decimal("ADAPTIVE_MIN_PERCENT", orDefault(s.AdaptiveMinPercent, s.CopySize)),
				MaxPercent: p.decimal("ADAPTIVE_MAX_PERCENT", orDefault(s.AdaptiveMaxPercent, s.CopySize)),
				Threshold:  p.decimal("ADAPTIVE_THRESHOLD_USD", s.AdaptiveThresholdUSD),
			}
		default:
			out.Sizing = copystrategy.Percentage{CopySize: copySize}
		}
		// 只有没有分档时单一倍数才生效
		if len(tiers) == 0 && multiplier != nil && !multiplier.Equal(decimal.NewFromInt(1)) {
			out.TradeMultiplier = multiplier
		}
	}
	out.MaxPositionSizeUSD = maxPosition
	out.MaxDailyVolumeUSD = maxDaily

	if len(p.errs) > 0 {
		return nil, apperr.Join("parse copy strategy", p.errs)
	}
	return out, nil
}

// Validate 收集所有问题，一次性返回 ConfigurationError
func (c *Config) Validate() error {
	errs := append([]error(nil), c.problems...)

	if len(c.Traders) == 0 {
		errs = append(errs, errors.New("USER_ADDRESSES 未配置"))
	}
	if c.ProxyWallet == "" {
		errs = append(errs, errors.New("PROXY_WALLET 未配置"))
	} else if !IsValidAddress(c.ProxyWallet) {
		errs = append(errs, fmt.Errorf("PROXY_WALLET 地址格式错误: %s", c.ProxyWallet))
	}
	if !IsValidAddress(c.USDCContract) {
		errs = append(errs, fmt.Errorf("USDC_CONTRACT_ADDRESS 地址格式错误: %s", c.USDCContract))
	}
	if !strings.HasPrefix(c.Clob.HTTPURL, "http") {
		errs = append(errs, fmt.Errorf("CLOB_HTTP_URL 必须是 HTTP/HTTPS 地址: %s", c.Clob.HTTPURL))
	}
	if !strings.HasPrefix(c.DataAPIURL, "http") {
		errs = append(errs, fmt.Errorf("DATA_API_URL 必须是 HTTP/HTTPS 地址: %s", c.DataAPIURL))
	}
	if c.RPCURL != "" && !strings.HasPrefix(c.RPCURL, "http") {
		errs = append(errs, fmt.Errorf("RPC_URL 必须是 HTTP/HTTPS 地址: %s", c.RPCURL))
	}
	if !c.DryRun {
		// 实盘需要签名和链上余额
		if c.PrivateKey == "" && c.Mnemonic == "" {
			errs = append(errs, errors.New("PRIVATE_KEY 或 MNEMONIC 至少配置一个"))
		}
		if c.RPCURL == "" {
			errs = append(errs, errors.New("RPC_URL 未配置"))
		}
		if c.Clob.APIKey == "" || c.Clob.APISecret == "" || c.Clob.APIPassphrase == "" {
			errs = append(errs, errors.New("CLOB_API_KEY / CLOB_SECRET / CLOB_PASSPHRASE 未配置"))
		}
	} else if !c.PaperBalanceUSD.IsPositive() {
		errs = append(errs, errors.New("PAPER_BALANCE_USD 必须大于 0"))
	}
	if c.Clob.SignatureType < 0 || c.Clob.SignatureType > 2 {
		errs = append(errs, fmt.Errorf("SIGNATURE_TYPE 必须是 0/1/2: %d", c.Clob.SignatureType))
	}

	if c.FetchInterval <= 0 {
		errs = append(errs, errors.New("FETCH_INTERVAL 必须为正整数"))
	}
	if c.RetryLimit < 1 || c.RetryLimit > 10 {
		errs = append(errs, fmt.Errorf("RETRY_LIMIT 必须在 1 到 10 之间: %d", c.RetryLimit))
	}
	if c.RequestTimeout < time.Second {
		errs = append(errs, errors.New("REQUEST_TIMEOUT_MS 至少 1000"))
	}

	if c.Aggregation.Enabled {
		if c.Aggregation.Window <= 0 {
			errs = append(errs, errors.New("TRADE_AGGREGATION_WINDOW_SECONDS 必须为正整数"))
		}
		if !c.Aggregation.MinTotalUSD.IsPositive() {
			errs = append(errs, errors.New("TRADE_AGGREGATION_MIN_TOTAL_USD 必须大于 0"))
		}
	}

	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("STORE_DRIVER=postgres 需要 STORE_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 STORE_DRIVER: %s (可选 memory/sqlite/postgres)", c.Store.Driver))
	}
	switch c.Snapshot.Backend {
	case "json", "badger":
	default:
		errs = append(errs, fmt.Errorf("未知的 SNAPSHOT_BACKEND: %s (可选 json/badger)", c.Snapshot.Backend))
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("配置了 TELEGRAM_BOT_TOKEN 但缺少 TELEGRAM_CHAT_ID"))
	}

	strategy, err := c.StrategyConfig()
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, copystrategy.Validate(strategy)...)
	}

	return apperr.Join("validate config", errs)
}

// MarshalStrategy 把策略配置输出为配置文件中的 strategy 段
func MarshalStrategy(cfg *copystrategy.Config) ([]byte, error) {
	return yaml.Marshal(struct {
		Strategy StrategyFile `yaml:"strategy"`
	}{Strategy: StrategyFileOf(cfg)})
}

// StrategyFileOf 策略配置转回文本形式
func StrategyFileOf(cfg *copystrategy.Config) StrategyFile {
	out := StrategyFile{
		CopyStrategy:      string(cfg.Strategy()),
		TieredMultipliers: copystrategy.FormatTiers(cfg.Tiers),
		MaxOrderSizeUSD:   cfg.MaxOrderSizeUSD.String(),
		MinOrderSizeUSD:   cfg.MinOrderSizeUSD.String(),
	}
	switch s := cfg.Sizing.(type) {
	case copystrategy.Percentage:
		out.CopySize = s.CopySize.String()
	case copystrategy.Fixed:
		out.CopySize = s.Amount.String()
	case copystrategy.Adaptive:
		out.CopySize = s.CopySize.String()
		out.AdaptiveMinPercent = s.MinPercent.String()
		out.AdaptiveMaxPercent = s.MaxPercent.String()
		out.AdaptiveThresholdUSD = s.Threshold.String()
	}
	if cfg.TradeMultiplier != nil {
		out.TradeMultiplier = cfg.TradeMultiplier.String()
	}
	if cfg.MaxPositionSizeUSD != nil {
		out.MaxPositionSizeUSD = cfg.MaxPositionSizeUSD.String()
	}
	if cfg.MaxDailyVolumeUSD != nil {
		out.MaxDailyVolumeUSD = cfg.MaxDailyVolumeUSD.String()
	}
	return out
}

// parser 解析文本值并收集错误
type parser struct {
	errs []error
}

func (p *parser) fail(key, value, want string) {
	p.errs = append(p.errs, apperr.Validationf(key, "%q 不是有效的%s", value, want))
}

func (p *parser) int(key, value string) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, "整数")
	}
	return v
}

func (p *parser) int64(key, value string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		p.fail(key, value, "整数")
	}
	return v
}

func (p *parser) bool(key, value string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, "布尔值")
	}
	return v
}

func (p *parser) decimal(key, value string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, "数字")
		return decimal.Zero
	}
	return v
}

// optDecimal 空值返回 nil
func (p *parser) optDecimal(key, value string) *decimal.Decimal {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := p.decimal(key, value)
	return &v
}

func (p *parser) addresses(key string, list []string) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if !IsValidAddress(a) {
			p.errs = append(p.errs, apperr.Validationf(key, "无效的以太坊地址: %s", a))
			continue
		}
		out = append(out, a)
	}
	return out
}

// pick 配置文件值优先，其次环境变量，最后默认值
func pick(fileValue, envKey, defaultValue string) string {
	if strings.TrimSpace(fileValue) != "" {
		return fileValue
	}
	return getEnv(envKey, defaultValue)
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
