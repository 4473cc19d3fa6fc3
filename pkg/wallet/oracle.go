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
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/pkg/types"
)

// polygonUSDCE is the bridged USDC.e contract Polymarket settles in.
const polygonUSDCE = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

const balanceOfABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// kalshiBalancer is the slice of the Kalshi client the oracle needs.
type kalshiBalancer interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// chainReader is the slice of ethclient the oracle needs; split out so tests
// can fake the chain.
type chainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// OracleConfig configures the balance oracle.
type OracleConfig struct {
	RPCURL  string
	Address common.Address
	Logger  *zap.Logger
}

// Oracle fetches the authoritative venue balances: the Kalshi cash balance
// over HTTP and the Polygon wallet's USDC.e and native POL on chain.
type Oracle struct {
	config OracleConfig
	logger *zap.Logger
	kalshi kalshiBalancer
	chain  chainReader
}

func NewOracle(cfg OracleConfig, kalshiClient kalshiBalancer) *Oracle {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Oracle{config: cfg, logger: cfg.Logger, kalshi: kalshiClient}
}

// NewOracleWithChain injects a chain reader instead of dialing the RPC URL;
// used in tests.
func NewOracleWithChain(cfg OracleConfig, kalshiClient kalshiBalancer, chain chainReader) *Oracle {
	o := NewOracle(cfg, kalshiClient)
	o.chain = chain
	return o
}

// FetchBalances loads all venue balances. Every balance must be present and
// positive; the engine refuses to start on an unfunded wallet.
func (o *Oracle) FetchBalances(ctx context.Context) (Snapshot, error) {
	usd, err := o.kalshi.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("kalshi balance: %w", err)
	}

	chain := o.chain
	if chain == nil {
		client, err := ethclient.DialContext(ctx, o.config.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial polygon rpc: %w", err)
		}
		defer client.Close()
		chain = client
	}

	polWei, err := chain.BalanceAt(ctx, o.config.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("pol balance: %w", err)
	}
	usdceRaw, err := o.erc20Balance(ctx, chain, polygonUSDCE)
	if err != nil {
		return nil, fmt.Errorf("usdc.e balance: %w", err)
	}

	snapshot := Snapshot{
		types.PlatformKalshi: {
			CurrencyUSD: usd,
		},
		types.PlatformPolymarket: {
			CurrencyUSDCE: decimal.NewFromBigInt(usdceRaw, -6),
			CurrencyPOL:   decimal.NewFromBigInt(polWei, -18),
		},
	}

	for platform, byCurrency := range snapshot {
		for currency, amount := range byCurrency {
			balanceGauge.WithLabelValues(string(platform), string(currency)).Set(amount.InexactFloat64())
			if !amount.IsPositive() {
				return nil, fmt.Errorf("%s %s balance is zero", platform, currency)
			}
		}
	}

	o.logger.Info("venue-balances-fetched",
		zap.String("usd", usd.String()),
		zap.String("usdc-e", snapshot[types.PlatformPolymarket][CurrencyUSDCE].String()),
		zap.String("pol", snapshot[types.PlatformPolymarket][CurrencyPOL].String()))

	return snapshot, nil
}

func (o *Oracle) erc20Balance(ctx context.Context, chain chainReader, tokenAddr string) (*big.Int, error) {
	parsedABI, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}
	data, err := parsedABI.Pack("balanceOf", o.config.Address)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	tokenAddress := common.HexToAddress(tokenAddr)
	result, err := chain.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}
