package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/clob"
	"github.com/betbot/copybot/internal/copystrategy"
	"github.com/betbot/copybot/internal/executor"
	"github.com/betbot/copybot/internal/health"
	"github.com/betbot/copybot/internal/notify"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/internal/store"
	"github.com/betbot/copybot/internal/store/memory"
	"github.com/betbot/copybot/internal/store/postgres"
	"github.com/betbot/copybot/internal/store/sqlite"
	"github.com/betbot/copybot/internal/wallet"
	"github.com/betbot/copybot/pkg/config"
	"github.com/betbot/copybot/pkg/persistence"
	"github.com/betbot/copybot/pkg/ratelimit"
)

// components 执行器的外部依赖
type components struct {
	wallet      string
	store       ports.TradeStore
	transport   ports.ExecutionTransport
	balances    ports.BalanceProvider
	myPositions ports.PositionProvider
	dataAPI     *wallet.DataAPI
	chain       *wallet.ChainBalance // dry-run 且未配置 RPC 时为 nil
	notifier    ports.Notifier
}

func wire(ctx context.Context, cfg *config.Config, strategy *copystrategy.Config) (*components, error) {
	limits := ratelimit.NewManager()
	app := &components{
		wallet:  cfg.ProxyWallet,
		dataAPI: wallet.NewDataAPI(cfg.DataAPIURL, cfg.RequestTimeout, limits),
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	app.store = st

	if cfg.RPCURL != "" {
		chain, err := wallet.DialChainBalance(ctx, cfg.RPCURL, cfg.USDCContract)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		app.chain = chain
	}

	if cfg.DryRun {
		books := clob.NewClient(clob.Config{Host: cfg.Clob.HTTPURL, Timeout: cfg.RequestTimeout}, nil, limits)
		paper := clob.NewPaperExchange(books, cfg.PaperBalanceUSD)
		app.transport = paper
		app.balances = paper
		app.myPositions = paper
	} else {
		key, err := clob.LoadKey(cfg.PrivateKey, cfg.Mnemonic, cfg.DerivationPath)
		if err != nil {
			app.close()
			return nil, err
		}
		signer, err := clob.NewSigner(key, clob.SignerConfig{
			Funder:        cfg.ProxyWallet,
			SignatureType: cfg.Clob.SignatureType,
		})
		if err != nil {
			app.close()
			return nil, err
		}
		logrus.Infof("签名地址 %s，代理钱包 %s", signer.Address(), cfg.ProxyWallet)
		app.transport = clob.NewClient(clob.Config{
			Host: cfg.Clob.HTTPURL,
			Creds: clob.Creds{
				Key:        cfg.Clob.APIKey,
				Secret:     cfg.Clob.APISecret,
				Passphrase: cfg.Clob.APIPassphrase,
			},
			Timeout: cfg.RequestTimeout,
		}, signer, limits)
		app.balances = app.chain
		app.myPositions = app.dataAPI
	}

	app.notifier = notify.Log{}
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			// 告警通道不可用不影响交易
			logrus.Warnf("Telegram 初始化失败，告警只写日志: %v", err)
		} else {
			app.notifier = tg
		}
	}

	logrus.Infof("存储: %s，策略: %s", cfg.Store.Driver, copystrategy.Describe(strategy))
	return app, nil
}

func (a *components) close() {
	if a.chain != nil {
		a.chain.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

func (a *components) healthChecker(cfg *config.Config) *health.Checker {
	c := &health.Checker{
		Store:    a.store,
		Balances: a.balances,
		Wallet:   a.wallet,
		DataAPI:  a.dataAPI,
		Timeout:  cfg.RequestTimeout,
	}
	if a.chain != nil {
		c.RPC = a.chain
	}
	return c
}

// machineConfig 状态机参数
// 循环内的剩余金额下限固定为交易所最小下单额，与策略的 MinOrderSizeUSD 无关：
// 后者只决定一笔跟单是否值得开始，已经开始的单要尽量填满
func machineConfig(cfg *config.Config) executor.MachineConfig {
	m := executor.DefaultMachineConfig()
	m.RetryLimit = cfg.RetryLimit
	return m
}

func openStore(ctx context.Context, sc config.StoreConfig) (ports.TradeStore, error) {
	switch sc.Driver {
	case store.DriverMemory:
		return memory.New(), nil
	case store.DriverSQLite:
		return sqlite.Open(sc.DSN)
	case store.DriverPostgres:
		return postgres.Open(ctx, sc.DSN)
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %s", sc.Driver)
	}
}

// openSnapshots 返回快照服务及其关闭函数
func openSnapshots(sc config.SnapshotConfig) (persistence.Service, func() error, error) {
	switch sc.Backend {
	case "badger":
		svc, err := persistence.NewBadgerService(sc.Dir)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.Close, nil
	default:
		return persistence.NewJSONFileService(sc.Dir), func() error { return nil }, nil
	}
}
