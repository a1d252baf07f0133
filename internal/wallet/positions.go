package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/pkg/ratelimit"
)

// DefaultDataAPI Polymarket data-api
const DefaultDataAPI = "https://data-api.polymarket.com"

const zeroAddress = "0x0000000000000000000000000000000000000000"

var _ ports.PositionProvider = (*DataAPI)(nil)

// DataAPI 通过 /positions 读取任意钱包的持仓
type DataAPI struct {
	http   *resty.Client
	limits *ratelimit.Manager
}

// NewDataAPI 创建 data-api 客户端
func NewDataAPI(host string, timeout time.Duration, limits *ratelimit.Manager) *DataAPI {
	if host == "" {
		host = DefaultDataAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if limits == nil {
		limits = ratelimit.NewManager()
	}
	hc := resty.New().
		SetBaseURL(strings.TrimSuffix(host, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && (resp.StatusCode() == 429 || resp.StatusCode() >= 500)
		})
	return &DataAPI{http: hc, limits: limits}
}

// Positions 钱包的全部持仓
func (d *DataAPI) Positions(ctx context.Context, user string) ([]domain.Position, error) {
	if err := d.limits.Wait(ctx, ratelimit.DataPositions); err != nil {
		return nil, err
	}
	resp, err := d.http.R().
		SetContext(ctx).
		SetQueryParam("user", user).
		Get("/positions")
	if err != nil {
		return nil, errors.Wrap(err, "请求 data-api positions")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("data-api positions: http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	// 空列表会被当成交易员已清仓，解析失败必须报错
	var out []domain.Position
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errors.Wrap(err, "解析 data-api positions")
	}
	return out, nil
}

// Position 按 conditionId 匹配持仓，没有时返回 nil
func (d *DataAPI) Position(ctx context.Context, wallet, conditionID string) (*domain.Position, error) {
	all, err := d.Positions(ctx, wallet)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.EqualFold(all[i].ConditionID, conditionID) {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Ping 用零地址探测 data-api 是否可用
func (d *DataAPI) Ping(ctx context.Context) error {
	if _, err := d.Positions(ctx, zeroAddress); err != nil {
		return fmt.Errorf("data-api 不可用: %w", err)
	}
	return nil
}
