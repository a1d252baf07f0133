package domain

import "github.com/shopspring/decimal"

// BookLevel 订单簿档位
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook 订单簿快照
type OrderBook struct {
	Asset string
	Bids  []BookLevel
	Asks  []BookLevel
}

// BestAsk 最低卖价档位，没有卖单返回 false
// 不依赖档位排序
func (b *OrderBook) BestAsk() (BookLevel, bool) {
	if b == nil || len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	best := b.Asks[0]
	for _, l := range b.Asks[1:] {
		if l.Price.LessThan(best.Price) {
			best = l
		}
	}
	return best, true
}

// BestBid 最高买价档位，没有买单返回 false
func (b *OrderBook) BestBid() (BookLevel, bool) {
	if b == nil || len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	best := b.Bids[0]
	for _, l := range b.Bids[1:] {
		if l.Price.GreaterThan(best.Price) {
			best = l
		}
	}
	return best, true
}
