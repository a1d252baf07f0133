package clob

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

// TickSize 价格最小变动单位
type TickSize string

const (
	TickSize01    TickSize = "0.1"
	TickSize001   TickSize = "0.01"
	TickSize0001  TickSize = "0.001"
	TickSize00001 TickSize = "0.0001"
)

// RoundConfig 各字段保留的小数位
type RoundConfig struct {
	Price  int32
	Size   int32
	Amount int32
}

// RoundingConfig 根据 tick size 返回舍入配置
var RoundingConfig = map[TickSize]RoundConfig{
	TickSize01:    {Price: 1, Size: 2, Amount: 3},
	TickSize001:   {Price: 2, Size: 2, Amount: 4},
	TickSize0001:  {Price: 3, Size: 2, Amount: 5},
	TickSize00001: {Price: 4, Size: 2, Amount: 6},
}

// bookLevel /book 返回的价格档位（数值以字符串传输）
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookResponse GET /book?token_id= 的响应
type bookResponse struct {
	Market  string      `json:"market"`
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

func convertLevels(in []bookLevel) ([]domain.BookLevel, error) {
	out := make([]domain.BookLevel, 0, len(in))
	for _, l := range in {
		p, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("价格档位 price=%q 无效: %w", l.Price, err)
		}
		s, err := decimal.NewFromString(l.Size)
		if err != nil {
			return nil, fmt.Errorf("价格档位 size=%q 无效: %w", l.Size, err)
		}
		out = append(out, domain.BookLevel{Price: p, Size: s})
	}
	return out, nil
}

func (r *bookResponse) toDomain(asset string) (*domain.OrderBook, error) {
	bids, err := convertLevels(r.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := convertLevels(r.Asks)
	if err != nil {
		return nil, err
	}
	if r.AssetID != "" {
		asset = r.AssetID
	}
	return &domain.OrderBook{Asset: asset, Bids: bids, Asks: asks}, nil
}

// wireOrder POST /order 中的订单字段
type wireOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// newOrder POST /order 请求体
type newOrder struct {
	Order     wireOrder `json:"order"`
	Owner     string    `json:"owner"`
	OrderType string    `json:"orderType"`
}

// orderResponse POST /order 响应
type orderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}
