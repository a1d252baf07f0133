// Package clob Polymarket CLOB 的最小客户端：读订单簿、提交 FOK 订单
package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/pkg/ratelimit"
)

var log = logrus.WithField("component", "clob")

var _ ports.ExecutionTransport = (*Client)(nil)

// Config 客户端配置
type Config struct {
	Host    string
	Creds   Creds
	Timeout time.Duration
}

// Client CLOB 客户端
type Client struct {
	http   *resty.Client // 读请求，带自动重试
	orders *resty.Client // 下单，不自动重试
	signer *Signer
	creds  Creds
	limits *ratelimit.Manager
	now    func() time.Time
}

// NewClient 创建客户端；signer 为 nil 时只能读订单簿
func NewClient(cfg Config, signer *Signer, limits *ratelimit.Manager) *Client {
	host := strings.TrimSuffix(cfg.Host, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if limits == nil {
		limits = ratelimit.NewManager()
	}

	hc := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && (resp.StatusCode() == 429 || resp.StatusCode() >= 500)
		})
	// FOK 订单重发可能重复成交，失败交给状态机计数
	oc := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout)

	return &Client{http: hc, orders: oc, signer: signer, creds: cfg.Creds, limits: limits, now: time.Now}
}

func request(ctx context.Context, hc *resty.Client) *resty.Request {
	return hc.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "copybot")
}

// parseHTTPError 非 2xx 时返回带响应体的错误
func parseHTTPError(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	msg := ExtractOrderError(resp.Body())
	if msg == "" {
		msg = resp.Status()
	}
	return errors.Errorf("http %d: %s", resp.StatusCode(), msg)
}

// OrderBook 获取 token 的订单簿
func (c *Client) OrderBook(ctx context.Context, asset string) (*domain.OrderBook, error) {
	if err := c.limits.Wait(ctx, ratelimit.ClobBook); err != nil {
		return nil, err
	}
	resp, err := request(ctx, c.http).
		SetQueryParam("token_id", asset).
		Get("/book")
	if err := parseHTTPError(resp, err); err != nil {
		return nil, fmt.Errorf("获取订单簿失败 %s: %w", asset, err)
	}
	// 不依赖响应的 Content-Type，解析失败必须报错，不能当成空簿
	var out bookResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errors.Wrapf(err, "解析订单簿失败 %s", asset)
	}
	return out.toDomain(asset)
}

// SubmitOrder 签名并以 FOK 提交订单
// 交易所拒单通过 OrderResult 返回；只有网络/签名问题才返回 error
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("未配置签名私钥，无法下单")
	}
	if c.creds.Empty() {
		return nil, fmt.Errorf("未配置 CLOB API 凭证，无法下单")
	}
	order, err := c.signer.Sign(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(newOrder{Order: *order, Owner: c.creds.Key, OrderType: "FOK"})
	if err != nil {
		return nil, fmt.Errorf("序列化订单失败: %w", err)
	}
	headers, err := l2Headers(c.signer.Address(), c.creds, c.now().Unix(), "POST", "/order", string(body))
	if err != nil {
		return nil, err
	}

	if err := c.limits.Wait(ctx, ratelimit.ClobOrderPost); err != nil {
		return nil, err
	}
	resp, err := request(ctx, c.orders).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/order")
	if err != nil {
		return nil, fmt.Errorf("提交订单失败: %w", err)
	}

	var out orderResponse
	_ = json.Unmarshal(resp.Body(), &out)
	if resp.IsSuccess() && out.Success {
		log.Debugf("订单成交 id=%s status=%s side=%s amount=%s price=%s", out.OrderID, out.Status, req.Side, req.Amount, req.Price)
		return &domain.OrderResult{Success: true, OrderID: out.OrderID}, nil
	}

	msg := ExtractOrderError(resp.Body())
	if msg == "" {
		msg = fmt.Sprintf("http %d", resp.StatusCode())
	}
	return &domain.OrderResult{Success: false, OrderID: out.OrderID, Error: msg}, nil
}
