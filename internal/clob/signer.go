package clob

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

// CollateralTokenDecimals USDC 精度
const CollateralTokenDecimals = 6

// SignatureType 订单签名类型
const (
	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

// SignerConfig 订单签名参数
type SignerConfig struct {
	ChainID       int64
	Funder        string // 代理钱包地址，为空时 maker = signer
	SignatureType int
	TickSize      TickSize
	NegRisk       bool
}

// Signer 使用 go-order-utils 构建并签名 FOK 订单
type Signer struct {
	key     *ecdsa.PrivateKey
	signer  common.Address
	maker   common.Address
	cfg     SignerConfig
	round   RoundConfig
	builder builder.ExchangeOrderBuilder
}

// NewSigner 创建签名器
func NewSigner(key *ecdsa.PrivateKey, cfg SignerConfig) (*Signer, error) {
	if cfg.ChainID == 0 {
		cfg.ChainID = 137
	}
	if cfg.TickSize == "" {
		cfg.TickSize = TickSize001
	}
	round, ok := RoundingConfig[cfg.TickSize]
	if !ok {
		return nil, fmt.Errorf("不支持的 tick size: %s", cfg.TickSize)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey)
	maker := signer
	if cfg.Funder != "" {
		if !common.IsHexAddress(cfg.Funder) {
			return nil, fmt.Errorf("无效的 funder 地址: %s", cfg.Funder)
		}
		maker = common.HexToAddress(cfg.Funder)
	}
	return &Signer{
		key:     key,
		signer:  signer,
		maker:   maker,
		cfg:     cfg,
		round:   round,
		builder: builder.NewExchangeOrderBuilderImpl(big.NewInt(cfg.ChainID), nil),
	}, nil
}

// Address 签名者地址（L2 头里的 POLY_ADDRESS）
func (s *Signer) Address() string { return s.signer.Hex() }

// MarketAmounts 计算市价单的 maker/taker 金额（人类可读单位）
// BUY: maker 付 USDC(amount)，taker 得 token；SELL: maker 付 token(amount)，taker 得 USDC
func MarketAmounts(side domain.Side, amount, price decimal.Decimal, rc RoundConfig) (maker, taker decimal.Decimal, err error) {
	rawPrice := price.Round(rc.Price)
	if !rawPrice.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("价格无效: %s", price)
	}
	maker = amount.RoundDown(rc.Size)
	if side == domain.SideBuy {
		taker = maker.Div(rawPrice).RoundDown(rc.Amount)
	} else {
		taker = maker.Mul(rawPrice).RoundDown(rc.Amount)
	}
	if !maker.IsPositive() || !taker.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("金额过小: amount=%s price=%s", amount, price)
	}
	return maker, taker, nil
}

// toUnits 转成 6 位精度的整数单位（向下取整）
func toUnits(v decimal.Decimal) string {
	return v.Shift(CollateralTokenDecimals).Truncate(0).String()
}

// Sign 构建并签名一笔订单
func (s *Signer) Sign(req domain.OrderRequest) (*wireOrder, error) {
	maker, taker, err := MarketAmounts(req.Side, req.Amount, req.Price, s.round)
	if err != nil {
		return nil, err
	}
	side := model.BUY
	if req.Side == domain.SideSell {
		side = model.SELL
	}
	contract := model.CTFExchange
	if s.cfg.NegRisk {
		contract = model.NegRiskCTFExchange
	}

	signed, err := s.builder.BuildSignedOrder(s.key, &model.OrderData{
		Maker:         s.maker.Hex(),
		Taker:         common.Address{}.Hex(),
		TokenId:       req.Asset,
		MakerAmount:   toUnits(maker),
		TakerAmount:   toUnits(taker),
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        s.signer.Hex(),
		Expiration:    "0",
		SignatureType: model.SignatureType(s.cfg.SignatureType),
	}, contract)
	if err != nil {
		return nil, fmt.Errorf("签名订单失败: %w", err)
	}

	return &wireOrder{
		Salt:          signed.Salt.Int64(),
		Maker:         signed.Maker.Hex(),
		Signer:        signed.Signer.Hex(),
		Taker:         signed.Taker.Hex(),
		TokenID:       signed.TokenId.String(),
		MakerAmount:   signed.MakerAmount.String(),
		TakerAmount:   signed.TakerAmount.String(),
		Expiration:    signed.Expiration.String(),
		Nonce:         signed.Nonce.String(),
		FeeRateBps:    signed.FeeRateBps.String(),
		Side:          string(req.Side),
		SignatureType: s.cfg.SignatureType,
		Signature:     hexutil.Encode(signed.Signature),
	}, nil
}
