package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrGateway = errors.New("payment gateway error")

type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status,omitempty"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// RazorpayClient creates orders through the Razorpay orders API.
type RazorpayClient struct {
	http *resty.Client
}

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(keyID, keySecret).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &RazorpayClient{http: client}
}

type orderBody struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}

	var order Order
	var failure errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(orderBody{
			Amount:   req.AmountMinor,
			Currency: req.Currency,
			Receipt:  req.Receipt,
		}).
		SetResult(&order).
		SetError(&failure).
		Post("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if resp.IsError() {
		detail := failure.Error.Description
		if detail == "" {
			detail = resp.Status()
		}
		return nil, fmt.Errorf("%w: %s", ErrGateway, detail)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrGateway)
	}
	return &order, nil
}
