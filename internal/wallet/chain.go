// Package wallet 钱包侧查询：链上 USDC 余额、data-api 持仓
package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/ports"
)

// USDCDecimals Polygon 上 USDC.e 的精度
const USDCDecimals = 6

const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var _ ports.BalanceProvider = (*ChainBalance)(nil)

// Caller 需要的最小 RPC 能力，*ethclient.Client 满足
type Caller interface {
	ethereum.ContractCaller
	BlockNumber(ctx context.Context) (uint64, error)
}

// ChainBalance 通过 balanceOf 读取 USDC 余额
type ChainBalance struct {
	client Caller
	closer func()
	usdc   common.Address
	erc20  abi.ABI
}

// DialChainBalance 连接 RPC 节点
func DialChainBalance(ctx context.Context, rpcURL, usdcAddress string) (*ChainBalance, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接RPC节点失败: %w", err)
	}
	b, err := NewChainBalance(c, usdcAddress)
	if err != nil {
		c.Close()
		return nil, err
	}
	b.closer = c.Close
	return b, nil
}

// NewChainBalance 使用已有的 RPC 客户端
func NewChainBalance(client Caller, usdcAddress string) (*ChainBalance, error) {
	if !common.IsHexAddress(usdcAddress) {
		return nil, fmt.Errorf("无效的 USDC 合约地址 %q", usdcAddress)
	}
	a, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("解析ERC20 ABI失败: %w", err)
	}
	return &ChainBalance{client: client, usdc: common.HexToAddress(usdcAddress), erc20: a}, nil
}

// AvailableBalance 钱包的 USDC 余额
func (b *ChainBalance) AvailableBalance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if !common.IsHexAddress(wallet) {
		return decimal.Zero, fmt.Errorf("无效的钱包地址 %q", wallet)
	}
	data, err := b.erc20.Pack("balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &b.usdc, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("call usdc.balanceOf: %w", err)
	}
	var bal *big.Int
	if err := b.erc20.UnpackIntoInterface(&bal, "balanceOf", raw); err != nil {
		return decimal.Zero, fmt.Errorf("解析 balanceOf 返回值失败: %w", err)
	}
	return decimal.NewFromBigInt(bal, -USDCDecimals), nil
}

// BlockNumber 当前区块高度，健康检查用
func (b *ChainBalance) BlockNumber(ctx context.Context) (uint64, error) {
	return b.client.BlockNumber(ctx)
}

// Close 关闭 RPC 连接
func (b *ChainBalance) Close() {
	if b.closer != nil {
		b.closer()
	}
}
