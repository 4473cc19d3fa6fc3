// Package polymarket submits EIP-712 signed orders to the CLOB API.
package polymarket

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/pkg/types"
)

const (
	defaultBaseURL = "https://clob.polymarket.com"
	zeroAddress    = "0x0000000000000000000000000000000000000000"

	orderTypeFOK = "FOK"

	// The venue has no market-order primitive; market-like orders are
	// emulated with aggressively priced FOK limits.
	marketSellPrice = "0.01"
	marketBuyPrice  = "0.99"
)

// Side is the CLOB order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Config holds client construction parameters.
type Config struct {
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string
	Address       string // EOA address; derived from the key when empty
	ProxyAddress  string // maker/funder when trading through a proxy wallet
	SignatureType int
	BaseURL       string // override, used in tests
	Logger        *zap.Logger
}

// Client builds, signs, and submits CLOB orders.
type Client struct {
	apiKey        string
	secret        string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string
	proxyAddress  string
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	baseURL       string
	client        *http.Client
	logger        *zap.Logger
}

func New(cfg Config) (*Client, error) {
	privateKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := cfg.Address
	if address == "" {
		publicKey, _ := privateKey.Public().(*ecdsa.PublicKey)
		address = ethcrypto.PubkeyToAddress(*publicKey).Hex()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	chainID := big.NewInt(137) // Polygon mainnet
	return &Client{
		apiKey:        cfg.APIKey,
		secret:        cfg.Secret,
		passphrase:    cfg.Passphrase,
		privateKey:    privateKey,
		address:       address,
		proxyAddress:  cfg.ProxyAddress,
		signatureType: model.SignatureType(cfg.SignatureType),
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(chainID, nil),
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 30 * time.Second},
		logger:        cfg.Logger,
	}, nil
}

// PlaceOrder signs and submits a FOK limit order for size outcome tokens at
// the given price. Returns an error when the venue reports failure.
func (c *Client) PlaceOrder(ctx context.Context, tokenID string, price, size decimal.Decimal, side Side) (*types.PolymarketOrder, error) {
	makerAddress := c.address
	if c.proxyAddress != "" {
		makerAddress = c.proxyAddress
	}

	// BUY spends USDC (price*size) for tokens; SELL spends tokens for USDC.
	usdc := price.Mul(size)
	var makerAmount, takerAmount string
	if side == SideBuy {
		makerAmount = rawAmount(usdc)
		takerAmount = rawAmount(size)
	} else {
		makerAmount = rawAmount(size)
		takerAmount = rawAmount(usdc)
	}

	orderSide := model.BUY
	if side == SideSell {
		orderSide = model.SELL
	}

	orderData := &model.OrderData{
		Maker:         makerAddress,
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          orderSide,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	signedOrder, err := c.orderBuilder.BuildSignedOrder(c.privateKey, orderData, model.CTFExchange)
	if err != nil {
		return nil, fmt.Errorf("build order: %w", err)
	}

	c.logger.Debug("polymarket-order-built",
		zap.String("token", tokenID),
		zap.String("side", string(side)),
		zap.String("price", price.String()),
		zap.String("size", size.String()))

	order, err := c.submitOrder(ctx, signedOrder)
	if err != nil {
		return nil, err
	}
	order.TokenID = tokenID
	if !order.Success {
		return order, fmt.Errorf("order rejected: %s", order.ErrorMsg)
	}
	return order, nil
}

// PlaceMarketOrder emulates a market order with an aggressively priced FOK
// limit: 0.01 for SELL, 0.99 for BUY.
func (c *Client) PlaceMarketOrder(ctx context.Context, tokenID string, size decimal.Decimal, side Side) (*types.PolymarketOrder, error) {
	price := decimal.RequireFromString(marketSellPrice)
	if side == SideBuy {
		price = decimal.RequireFromString(marketBuyPrice)
	}
	return c.PlaceOrder(ctx, tokenID, price, size, side)
}

// signedOrderJSON is the wire form of a signed order. Salt and signatureType
// are integers; everything else is a string.
type signedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

func (c *Client) submitOrder(ctx context.Context, order *model.SignedOrder) (*types.PolymarketOrder, error) {
	sideStr := string(SideBuy)
	if order.Side.Uint64() == uint64(model.SELL) {
		sideStr = string(SideSell)
	}

	// "owner" is the API key, not the maker address.
	orderRequest := map[string]any{
		"order": signedOrderJSON{
			Salt:          order.Salt.Int64(),
			Maker:         order.Maker.Hex(),
			Signer:        order.Signer.Hex(),
			Taker:         order.Taker.Hex(),
			TokenID:       order.TokenId.String(),
			MakerAmount:   order.MakerAmount.String(),
			TakerAmount:   order.TakerAmount.String(),
			Side:          sideStr,
			Expiration:    order.Expiration.String(),
			Nonce:         order.Nonce.String(),
			FeeRateBps:    order.FeeRateBps.String(),
			SignatureType: int(order.SignatureType.Int64()),
			Signature:     "0x" + common.Bytes2Hex(order.Signature),
		},
		"owner":     c.apiKey,
		"orderType": orderTypeFOK,
	}

	reqBody, err := json.Marshal(orderRequest)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	requestPath := "/order"
	signature, err := c.hmacSignature(timestamp, http.MethodPost, requestPath, reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+requestPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("CLOB API error: status %d: %s", resp.StatusCode, body)
	}

	var placed types.PolymarketOrder
	if err := json.Unmarshal(body, &placed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &placed, nil
}

// hmacSignature is the L2 auth signature: URL-safe base64 HMAC-SHA256 over
// timestamp + method + path + body.
func (c *Client) hmacSignature(timestamp, method, requestPath string, body []byte) (string, error) {
	secretBytes, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(timestamp + method + requestPath))
	h.Write(body)
	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

// rawAmount converts a decimal token/USDC amount to the 6-decimal integer
// representation the exchange contracts use.
func rawAmount(amount decimal.Decimal) string {
	return amount.Shift(6).Floor().BigInt().String()
}
