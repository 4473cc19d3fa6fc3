package kalshi

import (
	"context"
	"errors"
	"net/http"

	"github.com/fletcherlabs/fletcher/pkg/types"
)

// Order actions, sides, and types accepted by the venue.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"

	SideYes = "yes"
	SideNo  = "no"

	TypeLimit  = "limit"
	TypeMarket = "market"

	TimeInForceFillOrKill = "fill_or_kill"
)

// CreateOrderRequest mirrors POST /portfolio/orders. Exactly one of
// YesPrice/NoPrice must be set for limit orders; BuyMaxCost is required for
// market buys. Prices and costs are integer cents.
type CreateOrderRequest struct {
	Action            string `json:"action"`
	ClientOrderID     string `json:"client_order_id"`
	Count             int64  `json:"count"`
	Side              string `json:"side"`
	Ticker            string `json:"ticker"`
	Type              string `json:"type"`
	TimeInForce       string `json:"time_in_force,omitempty"`
	YesPrice          *int64 `json:"yes_price,omitempty"`
	NoPrice           *int64 `json:"no_price,omitempty"`
	BuyMaxCost        *int64 `json:"buy_max_cost,omitempty"`
	PostOnly          *bool  `json:"post_only,omitempty"`
	ExpirationTs      *int64 `json:"expiration_ts,omitempty"`
	SellPositionFloor *int64 `json:"sell_position_floor,omitempty"`
}

func (r *CreateOrderRequest) validate() error {
	if r.Ticker == "" {
		return errors.New("ticker cannot be empty")
	}
	if r.Count <= 0 {
		return errors.New("count must be positive")
	}
	if r.ClientOrderID == "" {
		return errors.New("client order id cannot be empty")
	}
	switch r.Type {
	case TypeLimit:
		if (r.YesPrice == nil) == (r.NoPrice == nil) {
			return errors.New("limit order requires exactly one of yes_price/no_price")
		}
	case TypeMarket:
		if r.Action == ActionBuy && r.BuyMaxCost == nil {
			return errors.New("market buy requires buy_max_cost")
		}
	default:
		return errors.New("unknown order type")
	}
	return nil
}

// CreateOrder places an order and returns the venue's order object.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*types.KalshiOrder, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.TimeInForce == "" {
		req.TimeInForce = TimeInForceFillOrKill
	}

	var out struct {
		Order types.KalshiOrder `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/portfolio/orders", req, &out); err != nil {
		return nil, err
	}
	return &out.Order, nil
}

// CancelOrder cancels a resting order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("order id cannot be empty")
	}
	return c.do(ctx, http.MethodDelete, apiPrefix+"/portfolio/orders/"+orderID, nil, nil)
}
