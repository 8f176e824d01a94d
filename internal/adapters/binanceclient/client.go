package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"cryptoDataPipeline/internal/domain"
	"cryptoDataPipeline/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// Spot /api/v3/klines rejects larger pages.
	MaxPageLimit = 1000
)

// Client implements the ports.ExchangeClient interface using the go-binance spot client.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	BaseURL    string // Overrides the production/testnet URL when set
	UseTestnet bool
	Timeout    time.Duration // HTTP client timeout per request
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	// Klines are a public endpoint, keys are only forwarded when present.
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "timeout": timeout.String()})

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
	}, nil
}

// handleError translates Binance and transport errors into standardized ports errors.
// The mapping decides retry behaviour upstream: API and network failures are
// transient, anything else that reaches here is a payload we could not read.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation}

	var apiErr *common.APIError
	var urlErr *url.Error
	var netErr net.Error
	var mappedErr error
	switch {
	case errors.As(err, &apiErr):
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		if apiErr.Code == -1003 { // Too many requests
			mappedErr = ports.ErrRateLimited
		} else {
			mappedErr = ports.ErrExchangeUnavailable
		}
	case errors.Is(err, context.Canceled):
		mappedErr = ports.ErrContextCanceled
	case errors.Is(err, context.DeadlineExceeded):
		mappedErr = ports.ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		mappedErr = ports.ErrTimeout
	case errors.As(err, &urlErr):
		mappedErr = ports.ErrConnectionFailed
	case errors.Is(err, ports.ErrMalformedResponse):
		c.logger.Warn(ctx, operation+" returned an unreadable payload", map[string]interface{}{"operation": operation, "error": err.Error()})
		return fmt.Errorf("%s failed: %w", operation, err)
	default:
		mappedErr = ports.ErrMalformedResponse
	}

	c.logger.Warn(ctx, operation+" failed", mergeFields(fields, map[string]interface{}{"error": err.Error(), "kind": mappedErr.Error()}))
	return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
}

func mergeFields(a, b map[string]interface{}) map[string]interface{} {
	for k, v := range b {
		a[k] = v
	}
	return a
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetKlines retrieves one page of klines for the query, oldest first.
func (c *Client) GetKlines(ctx context.Context, q ports.KlineQuery) ([]*domain.Kline, error) {
	op := "GetKlines"
	if q.Symbol == "" || q.Interval == "" {
		return nil, fmt.Errorf("%s failed: %w: symbol and interval are required", op, ports.ErrInvalidRequest)
	}
	if q.Limit <= 0 || q.Limit > MaxPageLimit {
		return nil, fmt.Errorf("%s failed: %w: limit %d outside 1..%d", op, ports.ErrInvalidRequest, q.Limit, MaxPageLimit)
	}

	svc := c.spotClient.NewKlinesService().Symbol(q.Symbol).Interval(q.Interval).Limit(q.Limit)
	if !q.StartTime.IsZero() {
		svc = svc.StartTime(q.StartTime.UnixMilli())
	}
	binanceKlines, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, q.Symbol, q.Interval)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		domainKlines = append(domainKlines, dk)
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": q.Symbol, "interval": q.Interval, "count": len(domainKlines)})
	return domainKlines, nil
}

// --- Translation Helpers ---

func translateBinanceKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, fmt.Errorf("%w: received nil historical kline", ports.ErrMalformedResponse)
	}
	open, err := parseDecimal("open price", bk.Open)
	if err != nil {
		return nil, err
	}
	high, err := parseDecimal("high price", bk.High)
	if err != nil {
		return nil, err
	}
	low, err := parseDecimal("low price", bk.Low)
	if err != nil {
		return nil, err
	}
	cls, err := parseDecimal("close price", bk.Close)
	if err != nil {
		return nil, err
	}
	vol, err := parseDecimal("volume", bk.Volume)
	if err != nil {
		return nil, err
	}
	if bk.CloseTime < bk.OpenTime {
		return nil, fmt.Errorf("%w: close time %d before open time %d", ports.ErrMalformedResponse, bk.CloseTime, bk.OpenTime)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime: time.UnixMilli(bk.CloseTime).UTC(),
		Symbol:    symbol, // Use passed symbol as it's not in binance.Kline
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: parsing %s '%s': %v", ports.ErrMalformedResponse, field, raw, err)
	}
	return d, nil
}
